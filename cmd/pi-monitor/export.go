package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/arosstale/pi-builder-sub003/internal/monitoring"
)

func newExportCmd(configPath *string) *cobra.Command {
	var (
		format    string
		cpuWindow time.Duration
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the metric exposition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath, false)
			if err != nil {
				return err
			}
			defer a.logger.Sync() //nolint:errcheck

			if format == "" {
				format = a.cfg.Export.Format
			}
			a.sample(cpuWindow)
			return writeExport(cmd.OutOrStdout(), a.monitor, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "legacy", "legacy | prometheus")
	cmd.Flags().DurationVar(&cpuWindow, "cpu-window", 250*time.Millisecond, "window the CPU figure is measured over")
	return cmd
}

// writeExport writes the legacy per-point exposition or the aggregated
// Prometheus text format.
func writeExport(w io.Writer, m *monitoring.Monitor, format string) error {
	switch format {
	case "legacy":
		_, err := io.WriteString(w, m.ExportMetrics())
		return err
	case "prometheus":
		return m.Metrics.WriteText(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	default:
		return fmt.Errorf("unknown export format %q (want legacy or prometheus)", format)
	}
}

// writeTextfile replaces path with the current exposition. The file is
// written next to path and renamed so readers never see a partial write.
func writeTextfile(path string, m *monitoring.Monitor, format string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("textfile: create temp: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := writeExport(tmp, m, format); err != nil {
		tmp.Close()
		return fmt.Errorf("textfile: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("textfile: close: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("textfile: chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("textfile: rename: %w", err)
	}
	return nil
}
