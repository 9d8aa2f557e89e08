package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const (
	maxWidth = 72
	minWidth = 40
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
	sectionStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("208"))
	commandStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	flagStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	italicStyle  = lipgloss.NewStyle().Italic(true)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// terminalWidth returns the stdout width clamped to [minWidth, maxWidth].
func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < minWidth {
		return maxWidth
	}
	return min(width, maxWidth)
}

// wrapText wraps each paragraph of text at width.
func wrapText(text string, width int) string {
	if width <= 0 {
		width = maxWidth
	}
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		if len(paragraph) <= width {
			lines = append(lines, paragraph)
			continue
		}
		line := ""
		for _, word := range strings.Fields(paragraph) {
			switch {
			case line == "":
				line = word
			case len(line)+1+len(word) <= width:
				line += " " + word
			default:
				lines = append(lines, line)
				line = word
			}
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// SetStyledHelp applies the tabwatt help layout to cmd.
func SetStyledHelp(cmd *cobra.Command) {
	cmd.SetHelpFunc(styledHelpFunc)
}

// ApplyStyledHelpRecursive applies the help layout to cmd and every
// subcommand, and silences cobra's usage dump on errors.
func ApplyStyledHelpRecursive(cmd *cobra.Command) {
	cmd.SetHelpFunc(styledHelpFunc)
	cmd.SetUsageFunc(func(*cobra.Command) error { return nil })
	for _, sub := range cmd.Commands() {
		ApplyStyledHelpRecursive(sub)
	}
}

// PrintError prints err with a pointer to the command's help.
func PrintError(cmd *cobra.Command, err error) {
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "%s %s\n", errorStyle.Render("Error:"), err.Error())
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("Run '%s --help' for usage.", cmd.CommandPath())))
}

// splitExamples separates an "Examples:" block from a long description.
func splitExamples(long string) (description, examples string) {
	for _, marker := range []string{"\nExamples:\n", "\nExample:\n"} {
		if idx := strings.Index(long, marker); idx != -1 {
			return strings.TrimSpace(long[:idx]), strings.TrimSpace(long[idx+len(marker):])
		}
	}
	return long, ""
}

type helpWriter struct {
	w     io.Writer
	width int
}

func (h helpWriter) line(s string) { fmt.Fprintln(h.w, " "+s) }

func (h helpWriter) section(name string) {
	fmt.Fprintln(h.w)
	h.line(sectionStyle.Render(name))
}

func (h helpWriter) paragraph(text string, style *lipgloss.Style) {
	for _, l := range strings.Split(wrapText(text, h.width), "\n") {
		if style != nil {
			l = style.Render(l)
		}
		h.line(l)
	}
}

func styledHelpFunc(cmd *cobra.Command, _ []string) {
	h := helpWriter{w: cmd.OutOrStdout(), width: terminalWidth() - 2}
	h.line(titleStyle.Render(strings.ToUpper(cmd.CommandPath())))

	description, examples := splitExamples(cmd.Long)
	if cmd.Short != "" {
		h.paragraph(cmd.Short, &italicStyle)
	}
	if description != "" && description != cmd.Short {
		fmt.Fprintln(h.w)
		h.paragraph(description, nil)
	}

	if cmd.Runnable() || cmd.HasSubCommands() {
		h.section("USAGE")
		if cmd.Runnable() {
			h.line(cmd.UseLine())
		}
		if cmd.HasSubCommands() {
			h.line(cmd.CommandPath() + " [command]")
		}
	}

	renderCommands(h, cmd)
	renderFlags(h, cmd)

	if cmd.Example != "" {
		examples = cmd.Example
	}
	if examples != "" {
		h.section("EXAMPLES")
		root := strings.Fields(cmd.CommandPath())[0]
		for _, l := range strings.Split(examples, "\n") {
			l = strings.TrimSpace(l)
			switch {
			case l == "":
				fmt.Fprintln(h.w)
			case strings.HasPrefix(l, "#"):
				h.line(mutedStyle.Render(l))
			default:
				h.line("  " + styleExample(l, root))
			}
		}
	}

	if cmd.HasSubCommands() {
		fmt.Fprintf(h.w, "\n Use \"%s [command] --help\" for more information.\n", cmd.CommandPath())
	}
}

func renderCommands(h helpWriter, cmd *cobra.Command) {
	if !cmd.HasAvailableSubCommands() {
		return
	}
	width := 0
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			width = max(width, len(sub.Name()))
		}
	}
	h.section("COMMANDS")
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			pad := strings.Repeat(" ", width-len(sub.Name()))
			h.line(commandStyle.Render(sub.Name()) + pad + "  " + sub.Short)
		}
	}
}

func renderFlags(h helpWriter, cmd *cobra.Command) {
	var flags []*pflag.Flag
	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if !f.Hidden {
			flags = append(flags, f)
		}
	})
	if len(flags) == 0 {
		return
	}

	// Parent commands list flag names only; leaf commands get the details.
	if cmd.HasAvailableSubCommands() {
		names := make([]string, 0, len(flags))
		for _, f := range flags {
			names = append(names, "--"+f.Name)
		}
		fmt.Fprintln(h.w)
		h.line(mutedStyle.Render("Flags: " + strings.Join(names, ", ")))
		return
	}

	width := 0
	for _, f := range flags {
		width = max(width, len(flagName(f)))
	}
	h.section("FLAGS")
	for _, f := range flags {
		name := flagName(f)
		usage, choices := parseChoices(f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "[]" && f.DefValue != "0" {
			usage += mutedStyle.Render(fmt.Sprintf(" (default: %s)", f.DefValue))
		}
		h.line(flagStyle.Render(name) + strings.Repeat(" ", width-len(name)) + "  " + usage)
		for _, c := range choices {
			h.line(strings.Repeat(" ", width+2) + mutedStyle.Render("• "+c))
		}
	}
}

func flagName(f *pflag.Flag) string {
	if f.Shorthand != "" {
		return fmt.Sprintf("-%s, --%s", f.Shorthand, f.Name)
	}
	return "    --" + f.Name
}

// styleExample colors the command, subcommand and flags of an example line.
func styleExample(line, root string) string {
	parts := strings.Fields(line)
	for i, p := range parts {
		switch {
		case i == 0 && p == root:
			parts[i] = commandStyle.Render(p)
		case strings.HasPrefix(p, "-"):
			parts[i] = flagStyle.Render(p)
		case i == 1:
			parts[i] = subStyle.Render(p)
		}
	}
	return strings.Join(parts, " ")
}

// parseChoices splits "Range: a, b, or c (default a)" into the description
// and the list of choices. Fewer than three comma-separated values are left
// as plain usage.
func parseChoices(usage string) (string, []string) {
	colon := strings.Index(usage, ": ")
	if colon == -1 {
		return usage, nil
	}
	rest := usage[colon+2:]
	list, suffix := rest, ""
	if idx := strings.Index(rest, " ("); idx != -1 {
		list, suffix = rest[:idx], rest[idx:]
	}
	parts := strings.Split(list, ", ")
	if len(parts) < 3 {
		return usage, nil
	}
	for i, p := range parts {
		parts[i] = strings.TrimSpace(strings.TrimPrefix(p, "or "))
	}
	return usage[:colon+1] + suffix, parts
}
