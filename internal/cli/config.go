package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iris-network/coordinator/internal/config"
)

func init() {
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate coordinator configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse the configured TOML file and report any errors",
	RunE:  runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	fmt.Printf("config OK: listening on %s, data dir %s\n", cfg.HTTP.ListenAddr, cfg.Data.Dir)
	return nil
}
