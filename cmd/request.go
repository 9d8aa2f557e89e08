package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/pkg/daemon"
	"github.com/grovetools/tabwatt/pkg/protocol"
	"github.com/spf13/cobra"
)

// NewRequestCmd sends one raw protocol request.
func NewRequestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request <TYPE> [json]",
		Short: "Send a protocol request and print the response",
		Long: `Sends one request to the daemon, or answers it from the local store when
the daemon is not running. Fields are given as a JSON object.

Examples:
  tabwatt request PING
  tabwatt request GET_HISTORY '{"timeRange":"24h"}'
  tabwatt request --list`,
		Args: func(cmd *cobra.Command, args []string) error {
			if list, _ := cmd.Flags().GetBool("list"); list {
				return nil
			}
			return cobra.RangeArgs(1, 2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list, _ := cmd.Flags().GetBool("list"); list {
				for _, t := range protocol.Types() {
					fmt.Fprintln(out, t)
				}
				return nil
			}

			body := ""
			if len(args) == 2 {
				body = args[1]
			}
			req, err := buildRequest(args[0], body)
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c daemon.Client) error {
				resp, err := c.Request(ctx, req)
				if err != nil {
					return err
				}
				return writeJSON(out, resp)
			})
		},
	}
	cmd.Flags().Bool("list", false, "List the request types")
	return cmd
}

// buildRequest merges the type tag into the JSON fields and decodes the
// result as a typed request.
func buildRequest(typ, body string) (protocol.Request, error) {
	fields := map[string]interface{}{}
	if strings.TrimSpace(body) != "" {
		if err := json.Unmarshal([]byte(body), &fields); err != nil {
			return nil, tabwatterrors.Wrap(err, tabwatterrors.ErrCodeInvalidInput, "request fields must be a JSON object")
		}
	}
	fields["type"] = strings.ToUpper(typ)
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeRequest(data)
}
