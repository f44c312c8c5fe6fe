package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	configv1 "github.com/clusterkit/reservation-capacity/api/config/v1"
	"github.com/clusterkit/reservation-capacity/internal/provider"
	"github.com/clusterkit/reservation-capacity/internal/reservation"
	"github.com/clusterkit/reservation-capacity/internal/resolver"
)

func main() {
	c := cli.NewApp()
	c.Name = "capacity-resolver"
	c.Usage = "Resolve how many workload slices a set of compute reservations can admit"
	c.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     "reservations",
			Usage:    "comma-separated reservation paths ([projects/P/reservations/]NAME[/reservationBlocks/B[/reservationSubBlocks/S]])",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "project",
			Usage: "default project for paths without a projects/ prefix",
		},
		&cli.StringFlag{
			Name:     "zone",
			Usage:    "zone of the reservations",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "device-type",
			Usage: "exact machine or accelerator type the workload requires",
		},
		&cli.StringFlag{
			Name:  "category",
			Usage: "accelerator category (homogeneous-machine or discrete-accelerator)",
			Value: string(configv1.CategoryHomogeneousMachine),
		},
		&cli.Int64Flag{
			Name:  "required-hosts",
			Usage: "number of physical hosts one workload slice consumes",
			Value: 1,
		},
		&cli.BoolFlag{
			Name:  "force-sub-block-targeting",
			Usage: "expand reservations and blocks down to their healthy sub-blocks",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "YAML file with requirement and settings, used instead of the requirement flags",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "overall deadline for the resolution batch",
			Value: 5 * time.Minute,
		},
	}
	c.Action = run

	if err := c.Run(os.Args); err != nil {
		klog.Errorf("%v", err)
		os.Exit(1)
	}
}

// row is the JSON output shape, one line of planning input for the caller.
type row struct {
	Reservation     string `json:"reservation"`
	AvailableSlices int64  `json:"availableSlices"`
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	// Path parse errors are hard failures: exit non-zero before any
	// resolution is attempted.
	links, err := reservation.ParseList(c.String("reservations"), c.String("project"), c.String("zone"))
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return fmt.Errorf("no reservations given")
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	res := resolver.New(provider.NewGcloud(), &cfg.Requirement, &cfg.Settings)
	capacities := res.ResolveBatch(ctx, links)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("resolution batch aborted: %w", err)
	}

	rows := make([]row, 0, len(capacities))
	for _, entry := range capacities {
		rows = append(rows, row{Reservation: entry.Link.String(), AvailableSlices: entry.Slices})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func loadConfig(c *cli.Context) (*configv1.Config, error) {
	if path := c.String("config"); path != "" {
		return configv1.LoadConfig(path)
	}

	cfg := &configv1.Config{
		Requirement: configv1.WorkloadRequirement{
			Category:      configv1.AcceleratorCategory(c.String("category")),
			Type:          c.String("device-type"),
			RequiredHosts: c.Int64("required-hosts"),
		},
		Settings: *configv1.GetDefaultResolveSettings(),
	}
	cfg.Settings.ForceSubBlockTargeting = c.Bool("force-sub-block-targeting")
	if err := cfg.Requirement.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
