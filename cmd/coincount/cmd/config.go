package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/coincount/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and generate configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "yaml", "yml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(a.cfg); err != nil {
					return fmt.Errorf("encoding configuration: %w", err)
				}
				return enc.Close()
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(a.cfg)
			default:
				return fmt.Errorf("unsupported format %q (use yaml or json)", format)
			}
		},
	}
	show.Flags().String("format", "yaml", "output format (yaml, json)")

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file holding every default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ConfigFileName + ".yaml"
			if len(args) == 1 {
				path = args[0]
			}
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o750); err != nil {
					return fmt.Errorf("creating %s: %w", dir, err)
				}
			}
			if err := config.GenerateDefaultConfigFile(path); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")

	info := &cobra.Command{
		Use:   "info",
		Short: "Show where configuration is read from",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			a.loader.PrintConfigInfo(cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(show, initCmd, info)
	return cmd
}
