package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/SakshamDixitSBH/docrag/internal/config"
	"github.com/SakshamDixitSBH/docrag/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage docrag configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/docrag/config.yaml)
  3. Project config (.docrag.yaml)
  4. Environment variables (DOCRAG_*)`,
		Example: `  # Create user config with defaults
  docrag config init

  # Create .docrag.yaml in the project
  docrag config init --project

  # Show effective configuration
  docrag config show

  # Print user config file path
  docrag config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force, project bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file with defaults",
		Long: `Write the default configuration to the user config file
(~/.config/docrag/config.yaml, or $XDG_CONFIG_HOME/docrag/config.yaml).

An existing user config is kept unless --force is given, in which case it
is backed up next to the new file first.

With --project, .docrag.yaml is written to the project root instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if project {
				return runProjectConfigInit(cmd, force)
			}
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")
	cmd.Flags().BoolVar(&project, "project", false, "Write .docrag.yaml in the project root")

	return cmd
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	if config.UserConfigExists() && !force {
		out.Warning("User configuration already exists")
		out.Statusf("📁", "Location: %s", config.GetUserConfigPath())
		out.Status("💡", "Use --force to overwrite it (a backup is kept)")
		return nil
	}

	path, backup, err := config.InitUserConfig(force)
	if err != nil {
		return err
	}

	out.Success("Created user configuration")
	out.Statusf("📁", "Location: %s", path)
	if backup != "" {
		out.Statusf("💾", "Backup: %s", backup)
	}
	return nil
}

func runProjectConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	root, err := projectRoot()
	if err != nil {
		return err
	}
	path := filepath.Join(root, config.ProjectFile)
	if fileExists(path) && !force {
		out.Warning("Project configuration already exists")
		out.Statusf("📁", "Location: %s", path)
		return nil
	}
	if err := config.NewConfig().WriteYAML(path); err != nil {
		return err
	}
	out.Success("Created project configuration")
	out.Statusf("📁", "Location: %s", path)
	return nil
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  `Show the configuration after merging defaults, user config, project config and environment.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, defaults")

	return cmd
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	out := output.New(cmd.OutOrStdout())

	var (
		cfg        *config.Config
		sourceDesc string
	)
	switch source {
	case "merged":
		proj, err := loadProject()
		if err != nil {
			return err
		}
		cfg = proj.Config
		sourceDesc = fmt.Sprintf("merged (defaults + user + %s + env)", filepath.Join(proj.Root, config.ProjectFile))
	case "defaults":
		cfg = config.NewConfig()
		sourceDesc = "defaults"
	default:
		return fmt.Errorf("invalid source: %s (use: merged, defaults)", source)
	}

	if jsonOutput {
		return out.JSON(cfg)
	}

	out.Statusf("📋", "Configuration source: %s", sourceDesc)
	out.Newline()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, _ = fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}
