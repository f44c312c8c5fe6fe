package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path"
	"strings"

	"k8s.io/klog/v2"
)

const (
	gcloudBin            = "gcloud"
	healthStatusHealthy  = "HEALTHY"
	notFoundErrorMarker  = "was not found"
	notFoundStatusMarker = "HTTPError 404"
)

// runner executes one external command and returns its stdout.
type runner func(ctx context.Context, bin string, args ...string) ([]byte, error)

// Gcloud implements Provider by shelling out to the gcloud CLI with JSON
// output. It performs no retries and holds no state; wrap it in Caching for
// batch use.
type Gcloud struct {
	bin string
	run runner
}

// NewGcloud returns a Provider backed by the gcloud binary on PATH.
func NewGcloud() *Gcloud {
	return &Gcloud{bin: gcloudBin, run: runCommand}
}

func runCommand(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", bin, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (g *Gcloud) DescribeReservation(ctx context.Context, project, zone, name string) (*ReservationDescription, error) {
	out, err := g.run(ctx, g.bin,
		"beta", "compute", "reservations", "describe", name,
		"--project", project,
		"--zone", zone,
		"--format", "json")
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var desc ReservationDescription
	if err := json.Unmarshal(out, &desc); err != nil {
		return nil, fmt.Errorf("error decoding reservation %s: %w", name, err)
	}
	return &desc, nil
}

func (g *Gcloud) ListBlocks(ctx context.Context, project, zone, reservation string) ([]string, error) {
	out, err := g.run(ctx, g.bin,
		"beta", "compute", "reservations", "blocks", "list",
		"--reservation", reservation,
		"--project", project,
		"--zone", zone,
		"--format", "json")
	if err != nil {
		return nil, err
	}

	var blocks []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(out, &blocks); err != nil {
		return nil, fmt.Errorf("error decoding blocks of reservation %s: %w", reservation, err)
	}

	names := make([]string, 0, len(blocks))
	for _, b := range blocks {
		// Block names come back as full resource paths.
		names = append(names, path.Base(b.Name))
	}
	return names, nil
}

// wireSubBlock is the sub-blocks list element as emitted by the CLI; the
// health information never leaves this package.
type wireSubBlock struct {
	Name       string `json:"name"`
	Count      int64  `json:"count"`
	InUseCount int64  `json:"inUseCount"`
	HealthInfo *struct {
		HealthStatus string `json:"healthStatus"`
	} `json:"healthInfo,omitempty"`
}

func (g *Gcloud) ListHealthySubBlocks(ctx context.Context, project, zone, reservation, block, subBlock string) ([]SubBlock, error) {
	out, err := g.run(ctx, g.bin,
		"beta", "compute", "reservations", "sub-blocks", "list", block,
		"--reservation", reservation,
		"--project", project,
		"--zone", zone,
		"--format", "json")
	if err != nil {
		return nil, err
	}

	var wire []wireSubBlock
	if err := json.Unmarshal(out, &wire); err != nil {
		return nil, fmt.Errorf("error decoding sub-blocks of block %s: %w", block, err)
	}

	var subBlocks []SubBlock
	for _, w := range wire {
		name := path.Base(w.Name)
		if w.HealthInfo == nil || w.HealthInfo.HealthStatus != healthStatusHealthy {
			klog.V(4).InfoS("Skipping unhealthy sub-block", "reservation", reservation, "block", block, "subBlock", name)
			continue
		}
		if subBlock != "" && name != subBlock {
			continue
		}
		subBlocks = append(subBlocks, SubBlock{Name: name, Count: w.Count, InUseCount: w.InUseCount})
	}
	return subBlocks, nil
}

func (g *Gcloud) LookupProjectNumber(ctx context.Context, project string) (string, error) {
	out, err := g.run(ctx, g.bin,
		"projects", "describe", project,
		"--format", "value(projectNumber)")
	if err != nil {
		return "", err
	}

	number := strings.TrimSpace(string(out))
	if number == "" {
		return "", fmt.Errorf("empty project number for project %s", project)
	}
	return number, nil
}

func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, notFoundErrorMarker) || strings.Contains(msg, notFoundStatusMarker)
}
