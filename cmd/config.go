package cmd

import (
	"fmt"
	"runtime"

	"dbvault/internal/config"
	"dbvault/internal/display"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = runtime.Version()
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	if gv != "" && gv != "unknown" {
		goVersion = gv
	}
}

// versionInfo is the machine-readable form of "dbvault version"
type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	BuildTime string `json:"buildTime" yaml:"build_time"`
	GitCommit string `json:"gitCommit" yaml:"git_commit"`
	GoVersion string `json:"goVersion" yaml:"go_version"`
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("output")
			outputFormat, err := display.ParseOutputFormat(format)
			if err != nil {
				return err
			}
			info := versionInfo{Version: version, BuildTime: buildTime, GitCommit: gitCommit, GoVersion: goVersion}
			out := cmd.OutOrStdout()
			return display.Render(out, outputFormat, info, func() {
				fmt.Fprintf(out, "dbvault version %s\n", info.Version)
				fmt.Fprintf(out, "Built: %s\n", info.BuildTime)
				fmt.Fprintf(out, "Commit: %s\n", info.GitCommit)
				fmt.Fprintf(out, "Go version: %s\n", info.GoVersion)
			})
		},
	}
}

func newConfigCommand(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create and inspect configuration",
		Long: `Create and inspect the dbvault configuration.

Configuration is read from a YAML file, then DBVAULT_* environment variables,
then command-line flags, each overriding the previous.

Examples:
  # Write a starter file to ./dbvault.yaml
  dbvault config init

  # Print the effective configuration with secrets masked
  dbvault config show

  # List every environment variable dbvault reads
  dbvault config env`,
	}
	configCmd.AddCommand(
		newConfigInitCommand(),
		newConfigShowCommand(a),
		newConfigEnvCommand(),
	)
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write a commented starter configuration file",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ConfigName + ".yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteTemplate(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format := a.display.Format()
			if format == display.FormatTable {
				format = display.FormatYAML
			}
			if used := a.loader.ConfigFileUsed(); used != "" && format == display.FormatYAML {
				fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", used)
			}
			return display.Render(cmd.OutOrStdout(), format, a.config.Redacted(), nil)
		},
	}
}

func newConfigEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "env",
		Short:       "List the environment variables dbvault reads",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.EnvironmentVariables() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
