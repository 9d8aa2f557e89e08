package logging

import (
	"bytes"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
)

const timeLayout = "2006-01-02 15:04:05"

var componentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)

// TextFormatter renders entries as
//
//	2024-05-01 10:00:00 [INFO] [tracker] tab tracked category=video tab_id=7
type TextFormatter struct {
	Config FormatConfig
}

func levelLabel(l logrus.Level) string {
	if l == logrus.WarnLevel {
		return "WARN"
	}
	return strings.ToUpper(l.String())
}

// Format implements logrus.Formatter.
func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var buf bytes.Buffer

	if !f.Config.DisableTimestamp {
		buf.WriteString(entry.Time.Format(timeLayout))
		buf.WriteByte(' ')
	}
	fmt.Fprintf(&buf, "[%s]", levelLabel(entry.Level))

	component, hasComponent := entry.Data["component"]
	if hasComponent && !f.Config.DisableComponent {
		fmt.Fprintf(&buf, " [%s]", componentStyle.Render(fmt.Sprint(component)))
	}
	if entry.HasCaller() {
		fmt.Fprintf(&buf, " [%s:%d]", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}

	buf.WriteByte(' ')
	buf.WriteString(entry.Message)

	for _, key := range slices.Sorted(maps.Keys(entry.Data)) {
		if key == "component" {
			continue
		}
		fmt.Fprintf(&buf, " %s=%v", key, entry.Data[key])
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
