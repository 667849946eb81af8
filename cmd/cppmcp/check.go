package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and print the effective settings",
		Long: `Load the config file (if any), apply CPPMCP_* environment overrides,
validate the result and print it as YAML.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode configuration: %w", err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "# configuration is valid")
			_, err = w.Write(out)
			return err
		},
	}
}
