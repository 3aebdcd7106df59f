package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/blobtailer/blobtailer/internal/cli/output"
	"github.com/blobtailer/blobtailer/pkg/config"
)

var configShowOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect blobtailer configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the resolved configuration",
	Long: `Display the fully resolved configuration: environment variables
layered over the config file, with unset fields filled in by defaults.
Credentials are redacted.

Examples:
  # Show resolved config as YAML
  blobtailer config show

  # Show as JSON
  blobtailer config show --output json`,
	RunE: runConfigShow,
}

func init() {
	configShowCmd.Flags().StringVarP(&configShowOutput, "output", "o", "yaml", "Output format (yaml|json)")
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(configShowOutput)
	if err != nil {
		return err
	}

	redacted := cfg.Redacted()

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, redacted)
	default:
		return output.PrintYAML(os.Stdout, redacted)
	}
}
