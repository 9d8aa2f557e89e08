package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/version"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardFlags(t *testing.T) {
	cmd := NewStandardCommand("tabwatt", "test")
	require.NoError(t, cmd.ParseFlags([]string{"-v", "--json", "-c", "/tmp/x.yml", "--no-color"}))

	opts := GetOptions(cmd)
	assert.True(t, opts.Verbose)
	assert.True(t, opts.JSONOutput)
	assert.True(t, opts.NoColor)
	assert.Equal(t, "/tmp/x.yml", opts.ConfigFile)
}

func TestStyledHelp(t *testing.T) {
	root := NewStandardCommand("tabwatt", "Estimate browser tab power")
	root.AddCommand(&cobra.Command{Use: "popup", Short: "Show the current tab", Run: func(*cobra.Command, []string) {}})
	ApplyStyledHelpRecursive(root)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--help", "--no-color"})
	require.NoError(t, root.Execute())

	text := out.String()
	assert.Contains(t, text, "TABWATT")
	assert.Contains(t, text, "COMMANDS")
	assert.Contains(t, text, "popup")
}

func TestParseChoices(t *testing.T) {
	desc, choices := parseChoices("Range: 1h, 24h, 7d, or 30d (default 24h)")
	assert.Equal(t, "Range: (default 24h)", desc)
	assert.Equal(t, []string{"1h", "24h", "7d", "30d"}, choices)

	desc, choices = parseChoices("Plain usage")
	assert.Equal(t, "Plain usage", desc)
	assert.Nil(t, choices)
}

func TestWrapText(t *testing.T) {
	wrapped := wrapText("one two three four", 9)
	assert.Equal(t, "one two\nthree\nfour", wrapped)
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"config not found", errors.ConfigNotFound("/x/tabwatt.yml"), "Configuration not found"},
		{"unavailable", errors.New(errors.ErrCodeUnavailable, "socket closed"), "tabwatt daemon status"},
		{"generic", fmt.Errorf("boom"), "Error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := NewErrorHandler(false, &out).Handle(tt.err)
			assert.Equal(t, tt.err, err)
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestVersionCommandJSON(t *testing.T) {
	root := NewStandardCommand("tabwatt", "test")
	root.AddCommand(NewVersionCommand("tabwatt"))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--json"})
	require.NoError(t, root.Execute())

	var info version.Info
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}
