package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	qsn "github.com/pranav97nair/quantum-sensor-networks"
)

var (
	configPath string
	v          = qsn.NewViper()

	rootCmd = &cobra.Command{
		Use:   "qsn",
		Short: "Verified distributed phase sensing over a simulated GHZ network",
		Long: `qsn runs the GHZ verification protocol between a verifier and the
members of a line network, then estimates the parties' phase from the
parities of accepted rounds.`,
		SilenceUsage: true,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&configPath, "config", "c", "", "config file (yaml, toml or json)")
	qsn.AddFlags(f)
	if err := qsn.BindFlags(v, f); err != nil {
		log.Fatal(err)
	}

	rootCmd.AddCommand(roundCmd, estimateCmd, stabilizersCmd)
}

func loadConfig(vp *viper.Viper) (*qsn.Config, qsn.Logger, error) {
	cfg, err := qsn.ConfigFromViper(vp, configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, qsn.NewLogger(os.Stderr, cfg.LogLevel), nil
}
