package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/tabwatt/config"
	"github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/logging"
	"github.com/muesli/termenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// CommandOptions holds common options for tabwatt commands
type CommandOptions struct {
	ConfigFile string
	Verbose    bool
	JSONOutput bool
	NoColor    bool
}

// NewStandardCommand creates a new command with the standard tabwatt flags
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to tabwatt.yml config file")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		ApplyColorMode(GetOptions(cmd).NoColor)
	}

	SetStyledHelp(cmd)
	return cmd
}

// ApplyColorMode switches lipgloss to plain text when asked to, or when
// NO_COLOR is set in the environment.
func ApplyColorMode(noColor bool) {
	if noColor || termenv.EnvNoColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// GetLogger returns the CLI logger adjusted to the command flags
func GetLogger(cmd *cobra.Command) *logrus.Entry {
	entry := logging.NewLogger("tabwatt-cli")

	opts := GetOptions(cmd)
	if opts.Verbose {
		entry.Logger.SetLevel(logrus.DebugLevel)
	}
	if opts.JSONOutput {
		entry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return entry
}

// GetOptions extracts common options from a command
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")

	return CommandOptions{
		ConfigFile: configFile,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
		NoColor:    noColor,
	}
}

// LoadConfig loads the file named by --config, or the default config when
// the flag is empty. The returned path is empty when defaults are in use.
func LoadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path := GetOptions(cmd).ConfigFile
	if path == "" {
		return config.LoadDefault()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Execute runs root with styled help on every subcommand. Errors are printed
// once, with a hint for known error codes, and returned for the exit code.
func Execute(root *cobra.Command) error {
	root.SilenceErrors = true
	root.SilenceUsage = true
	ApplyStyledHelpRecursive(root)

	cmd, err := root.ExecuteC()
	if err == nil {
		return nil
	}
	if cmd == nil {
		cmd = root
	}
	opts := GetOptions(cmd)
	if opts.Verbose || errors.GetCode(err) != "" {
		return NewErrorHandler(opts.Verbose, cmd.ErrOrStderr()).Handle(err)
	}
	PrintError(cmd, err)
	return err
}
