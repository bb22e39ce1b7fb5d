// Command pve-scrape scrapes one Proxmox VE target once and writes the
// metrics in the Prometheus text format to stdout.
//
// Usage: pve-scrape <target> [module]
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/common/expfmt"

	"github.com/mittelab/prometheus-pve-exporter/internal/collector"
	"github.com/mittelab/prometheus-pve-exporter/internal/config"
	"github.com/mittelab/prometheus-pve-exporter/internal/errors"
	"github.com/mittelab/prometheus-pve-exporter/internal/exporter"
	"github.com/mittelab/prometheus-pve-exporter/internal/observability"
)

func main() {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		fmt.Fprintln(os.Stderr, "usage: pve-scrape <target> [module]")
		os.Exit(2)
	}
	target := os.Args[1]
	module := config.DefaultModule
	if len(os.Args) == 3 {
		module = os.Args[2]
	}

	if err := run(context.Background(), target, module); err != nil {
		fmt.Fprintln(os.Stderr, "pve-scrape:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, target, module string) error {
	cfg := config.Load()
	slog.SetDefault(observability.NewLogger(os.Stderr, "warn", cfg.LogFormat))

	modules, err := config.LoadModules(cfg.ConfigFile)
	if err != nil {
		return err
	}
	cfg.Modules = modules

	exp := exporter.NewExporter(&cfg, collector.NewDefaultRegistry(nil), errors.NewErrorCollector(errors.RealClock{}, 0), nil)
	result, err := exp.Scrape(ctx, module, target)
	if err != nil {
		return err
	}

	families, err := result.Gather()
	if err != nil {
		return err
	}

	w := bufio.NewWriter(os.Stdout)
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write %s: %w", mf.GetName(), err)
		}
	}
	return w.Flush()
}
