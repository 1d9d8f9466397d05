package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/beam-cloud/salesmap/pkg/common"
	"github.com/beam-cloud/salesmap/pkg/types"
)

// Build information (injected at compile time via ldflags)
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configPath string
	jsonOutput bool
	verbose    bool
)

// stdout and stderr are swapped out in tests
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

var helpTemplate = `{{with .Long}}{{. | trim}}

{{end}}{{if .HasAvailableSubCommands}}` + `{{.CommandPath}}` + ` ` + `<command>` + `

{{end}}{{if .HasAvailableSubCommands}}Commands:
{{range .Commands}}{{if .IsAvailableCommand}}  {{rpad .Name .NamePadding }}  {{.Short}}
{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}
Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}
`

var rootCmd = &cobra.Command{
	Use:   "salesmap",
	Short: "Per-country sales totals from notification emails",
	Long: lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true).Render("salesmap") + ` - Per-country sales totals from notification emails

Search a mailbox for sale notifications, pull the buyer's country out of
each one and count sales per country.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		SetJSONOutput(jsonOutput)

		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: stderr}).Level(level).With().Timestamp().Logger()
	},
}

func init() {
	rootCmd.SetHelpTemplate(helpTemplate)
	rootCmd.SetVersionTemplate(fmt.Sprintf("  %s version %s (%s)\n", BrandStyle.Render("salesmap"), Version, Commit))

	rootCmd.PersistentFlags().StringVar(&configPath, "config", getEnv("CONFIG_PATH", ""), "Path to a yaml or json config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress at debug level")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		PrintFormattedError("Command failed", err)
	}
	return err
}

// loadConfig layers the --config file over the embedded defaults and env
func loadConfig() (types.AppConfig, error) {
	configManager, err := common.NewConfigManager[types.AppConfig]()
	if err != nil {
		return types.AppConfig{}, err
	}
	if configPath != "" && configPath != os.Getenv("CONFIG_PATH") {
		if err := configManager.LoadFile(configPath); err != nil {
			return types.AppConfig{}, err
		}
	}
	return configManager.GetConfig(), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if PrintJSON(map[string]string{"version": Version, "commit": Commit}) {
			return
		}
		fmt.Fprintf(stdout, "  %s version %s (%s)\n", BrandStyle.Render("salesmap"), Version, Commit)
	},
}
