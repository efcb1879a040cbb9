package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fighterboy13/WhatsApp/internal/config"
)

var rootCmd = &cobra.Command{
	Use:          "wasender",
	Short:        "HTTP API for pairing WhatsApp sessions and running bulk sends",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (default)",
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAll()
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(cfg.Masked(), "", "  ")
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, configCmd)
}
