package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tenet/internal/config"
	"github.com/steveyegge/tenet/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and change configuration",
	Long: `Show and change configuration.

Values come from, in order of precedence: command-line flags, TENET_*
environment variables, .tenet/config.yaml (searched upward from the working
directory, then $XDG_CONFIG_HOME/tenet/config.yaml) and built-in defaults.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Run: func(cmd *cobra.Command, args []string) {
		s := settings.Redacted()
		if jsonOutput {
			outputJSON(s)
			return
		}
		data, err := s.Marshal()
		FatalIfErr(err)
		if path := config.ConfigFileUsed(); path != "" {
			fmt.Println(ui.RenderMuted("# " + path))
		}
		fmt.Print(string(data))
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		value := config.GetString(args[0])
		if jsonOutput {
			outputJSON(map[string]string{"key": args[0], "value": value})
			return
		}
		fmt.Println(value)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Write a value into the project's config.yaml",
	Long: `Write a value into the project's .tenet/config.yaml, creating it in the
working directory when none is found. Dotted keys such as sweep.stale-after
become nested YAML. Comments and other keys are preserved.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		path, err := config.SetYamlConfig(args[0], args[1])
		FatalIfErr(err)
		if jsonOutput {
			outputJSON(map[string]string{"key": args[0], "value": args[1], "path": path})
			return
		}
		printOK("Set %s = %s in %s", args[0], args[1], path)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configGetCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
