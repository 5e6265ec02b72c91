package cli

import (
	"github.com/spf13/cobra"

	"paper-exchange/src/config"
	"paper-exchange/src/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "paper-exchange",
	Short: "Single-account paper trading against recorded quotes",
	Long: `paper-exchange simulates one trading account against an exchange fed by
price-level quote snapshots.

Orders reserve cash or shares on the account ledger, rest on the exchange
and fill against each incoming quote. Settled trades update cash and
positions immediately.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "yaml config file")
}

// loadConfig reads the configuration and installs the global logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger.InitLogger(cfg.Log, nil)
	return cfg, nil
}
