package cmd

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/grovetools/tabwatt/pkg/daemon"
	"github.com/grovetools/tabwatt/pkg/protocol"
	"github.com/spf13/cobra"
)

// NewSettingsCmd reads and updates the persisted settings.
func NewSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read or change tracking and notification settings",
	}
	cmd.PersistentFlags().Bool("notifications", false, "Operate on the notification settings")

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			notif, _ := cmd.Flags().GetBool("notifications")
			var req protocol.Request = protocol.GetSettings{}
			if notif {
				req = protocol.GetNotificationSettings{}
			}
			return withClient(cmd, func(ctx context.Context, c daemon.Client) error {
				return printResult(ctx, cmd, c, req)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key=value>...",
		Short: "Update settings; out-of-range values fall back to their defaults",
		Long: `Updates one or more settings. Values are parsed as booleans, numbers or
strings; nested keys use dots.

Examples:
  tabwatt settings set energyThreshold=60 trackingEnabled=true
  tabwatt settings set --notifications position=bottom-left quietHours.enabled=true`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := parseAssignments(args)
			if err != nil {
				return err
			}
			notif, _ := cmd.Flags().GetBool("notifications")
			var req protocol.Request = protocol.UpdateSettings{Settings: patch}
			if notif {
				req = protocol.UpdateNotificationSettings{Settings: patch}
			}
			return withClient(cmd, func(ctx context.Context, c daemon.Client) error {
				return printResult(ctx, cmd, c, req)
			})
		},
	})
	return cmd
}

func printResult(ctx context.Context, cmd *cobra.Command, c daemon.Client, req protocol.Request) error {
	var result map[string]interface{}
	resp, err := c.Request(ctx, req)
	if err != nil {
		return err
	}
	if err := resp.Decode(&result); err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

// parseAssignments turns key=value arguments into a settings patch. Dotted
// keys build nested objects.
func parseAssignments(args []string) (map[string]interface{}, error) {
	patch := map[string]interface{}{}
	keys := make([]string, 0, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q: expected key=value", arg)
		}
		keys = append(keys, key)

		parts := strings.Split(key, ".")
		node := patch
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]interface{})
			if !ok {
				child = map[string]interface{}{}
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = parseValue(raw)
	}
	sort.Strings(keys)
	for i := 1; i < len(keys); i++ {
		if keys[i] == keys[i-1] {
			return nil, fmt.Errorf("setting %q given twice", keys[i])
		}
	}
	return patch, nil
}

func parseValue(raw string) interface{} {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
