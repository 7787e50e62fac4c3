package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change persistent configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every effective config value",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		for _, kv := range cfg.All() {
			fmt.Printf("%s=%s\n", kv.Key, kv.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one config key and persist it",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		return cfg.Save()
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard overrides and restore defaults",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg.ResetToDefaults()
		return cfg.Save()
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configResetCmd)
}
