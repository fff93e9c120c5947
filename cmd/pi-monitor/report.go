package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/arosstale/pi-builder-sub003/internal/monitoring"
)

func newReportCmd(configPath *string) *cobra.Command {
	var (
		format    string
		cpuWindow time.Duration
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Probe dependencies once, evaluate alerts and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath, false)
			if err != nil {
				return err
			}
			defer a.logger.Sync() //nolint:errcheck

			a.monitor.Health.ProbeAll(cmd.Context())
			a.sample(cpuWindow)
			a.monitor.Evaluate()

			return writeReport(cmd.OutOrStdout(), a.monitor.GenerateReport(), format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json | yaml")
	cmd.Flags().DurationVar(&cpuWindow, "cpu-window", 250*time.Millisecond, "window the CPU figure is measured over")
	return cmd
}

func writeReport(w io.Writer, rep monitoring.Report, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}
