package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	qsn "github.com/pranav97nair/quantum-sensor-networks"
)

var (
	roundIndex int

	roundCmd = &cobra.Command{
		Use:   "round",
		Short: "Run a single verification round and print its record",
		RunE:  runRound,
	}

	estimateCmd = &cobra.Command{
		Use:   "estimate",
		Short: "Run rounds until enough are accepted and estimate the phase",
		RunE:  runEstimate,
	}

	stabilizersCmd = &cobra.Command{
		Use:   "stabilizers",
		Short: "Print the stabilizers the verifier would test",
		RunE:  runStabilizers,
	}
)

func init() {
	for _, c := range []*cobra.Command{roundCmd, stabilizersCmd} {
		c.Flags().IntVar(&roundIndex, "index", 0, "round index, selects the round generator")
	}
}

type roundReport struct {
	Round       *qsn.RoundResult       `yaml:"round"`
	Target      int                    `yaml:"target"`
	Tested      int                    `yaml:"tested"`
	Discarded   int                    `yaml:"discarded"`
	Threshold   float64                `yaml:"threshold"`
	Statistics  *qsn.FailureStatistics `yaml:"statistics"`
	Measurement []recordRow            `yaml:"record"`
}

type recordRow struct {
	Stabilizer  string `yaml:"stabilizer"`
	Eigenvalues []int  `yaml:"eigenvalues,flow"`
}

type estimateReport struct {
	Summary    *qsn.Summary           `yaml:"summary"`
	Metrics    map[string]interface{} `yaml:"metrics"`
	Collectors map[string]float64     `yaml:"collectors"`
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runRound(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(v)
	if err != nil {
		return err
	}

	round, err := qsn.NewRound(cfg, roundIndex, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := round.Run(ctx)
	if err != nil {
		return err
	}

	report := roundReport{
		Round:      res,
		Target:     round.Assignment.Target(),
		Tested:     round.Assignment.Tested(),
		Discarded:  round.Assignment.Discarded(),
		Threshold:  cfg.ResolvedThreshold(),
		Statistics: res.Stats,
	}
	for row := 0; row < res.Record.Rows(); row++ {
		report.Measurement = append(report.Measurement, recordRow{
			Stabilizer:  res.Record.Key(row),
			Eigenvalues: res.Record.Row(row),
		})
	}
	return writeYAML(cmd.OutOrStdout(), report)
}

func runEstimate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(v)
	if err != nil {
		return err
	}
	if !cfg.Sense {
		return fmt.Errorf("estimation needs sensing enabled")
	}

	reg := prometheus.NewRegistry()
	metrics := qsn.NewMetrics()
	if err := metrics.Register(reg); err != nil {
		return err
	}

	runner, err := qsn.NewRunner(cfg, logger, metrics)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	collectors, err := gathered(reg)
	if err != nil {
		return err
	}
	return writeYAML(cmd.OutOrStdout(), estimateReport{
		Summary:    summary,
		Metrics:    metrics.ExportMetrics(),
		Collectors: collectors,
	})
}

func runStabilizers(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(v)
	if err != nil {
		return err
	}

	rng := qsn.RoundRand(cfg.Seed, roundIndex)

	var set *qsn.StabilizerSet
	if cfg.Closure == qsn.ClosureFull {
		set, err = qsn.FullGroup(cfg.Parties, rng)
	} else {
		set, err = qsn.GeneratorSet(cfg.Parties, rng)
	}
	if err != nil {
		return err
	}

	return writeYAML(cmd.OutOrStdout(), map[string]any{
		"parties":     cfg.Parties,
		"closure":     cfg.Closure,
		"stabilizers": set.Keys(),
	})
}

/*
gathered flattens the registry into one value per series: counters by their
value, histograms by their sample count and sum.
*/
func gathered(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			name := f.GetName()
			for _, l := range m.GetLabel() {
				name += fmt.Sprintf("{%s=%s}", l.GetName(), l.GetValue())
			}

			if c := m.GetCounter(); c != nil {
				out[name] = c.GetValue()
			}
			if h := m.GetHistogram(); h != nil {
				out[name+"_count"] = float64(h.GetSampleCount())
				out[name+"_sum"] = h.GetSampleSum()
			}
		}
	}
	return out, nil
}
