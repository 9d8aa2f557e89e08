package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/tabwatt/cli"
	"github.com/grovetools/tabwatt/logging"
	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

var (
	logErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	logWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	logInfoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	logMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// NewLogsCmd creates the `logs` command.
func NewLogsCmd() *cobra.Command {
	var (
		component string
		follow    bool
		tailLines int
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		Long: `Prints the log file of a tabwatt component, by default the daemon.

Examples:
  # Follow the daemon log
  tabwatt logs -f

  # Last 100 lines of the CLI log
  tabwatt logs --component tabwatt-cli --tail 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			var logCfg logging.Config
			if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
				return err
			}
			path := logging.FilePath(component, logCfg)

			offset, err := tailOffset(path, tailLines)
			if err != nil {
				if os.IsNotExist(err) && !follow {
					return fmt.Errorf("no log file at %s", path)
				}
				offset = 0
			}

			t, err := tail.TailFile(path, tail.Config{
				Follow:    follow,
				ReOpen:    follow,
				MustExist: !follow,
				Location:  &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
				Logger:    stdlog.New(io.Discard, "", 0),
			})
			if err != nil {
				return fmt.Errorf("cannot tail %s: %w", path, err)
			}
			defer t.Cleanup()

			jsonOut := cli.GetOptions(cmd).JSONOutput
			out := cmd.OutOrStdout()
			done := cmd.Context().Done()
			for {
				select {
				case <-done:
					t.Stop()
					return nil
				case line, ok := <-t.Lines:
					if !ok {
						return nil
					}
					if line.Err != nil {
						continue
					}
					if jsonOut {
						fmt.Fprintln(out, line.Text)
					} else {
						printLogLine(out, line.Text)
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&component, "component", "tabwattd", "Component whose log to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVar(&tailLines, "tail", -1, "Number of lines to show from the end of the log (default: all)")
	return cmd
}

// tailOffset returns the byte offset where the last n lines of path begin.
// A negative n means the whole file.
func tailOffset(path string, n int) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if n < 0 {
		return 0, nil
	}

	var starts []int64
	var pos int64
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			starts = append(starts, pos)
			pos += int64(len(line))
		}
		if err != nil {
			break
		}
	}
	if n == 0 {
		return pos, nil
	}
	if len(starts) <= n {
		return 0, nil
	}
	return starts[len(starts)-n], nil
}

// printLogLine pretty-prints a JSON log line and passes text lines through.
func printLogLine(w io.Writer, line string) {
	var logMap map[string]interface{}
	if err := json.Unmarshal([]byte(line), &logMap); err != nil {
		fmt.Fprintln(w, line)
		return
	}

	ts, _ := logMap["time"].(string)
	level, _ := logMap["level"].(string)
	msg, _ := logMap["msg"].(string)
	component, _ := logMap["component"].(string)

	timeStr := ts
	if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		timeStr = parsed.Format("15:04:05")
	}

	var levelStyle lipgloss.Style
	switch strings.ToLower(level) {
	case "error", "fatal", "panic":
		levelStyle = logErrorStyle
	case "warning":
		levelStyle = logWarnStyle
	case "info":
		levelStyle = logInfoStyle
	default:
		levelStyle = logMutedStyle
	}

	var keys []string
	for k := range logMap {
		switch k {
		case "time", "level", "msg", "component":
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, fmt.Sprintf("%s=%v", logMutedStyle.Render(k), logMap[k]))
	}

	fmt.Fprintf(w, "%s %s [%s] %s %s\n",
		timeStr,
		levelStyle.Render(strings.ToUpper(level)),
		component,
		msg,
		strings.Join(fields, " "),
	)
}
