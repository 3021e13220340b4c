package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/YatsauAliaksei/openapi-mcp/registry"
)

type toolSummary struct {
	Name        string         `json:"name"`
	Service     string         `json:"service"`
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	Tags        []string       `json:"tags,omitempty"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

func newListCmd(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tools compiled from the configured services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, logger, err := setup(cmd.Context(), *configPath, registry.Options{})
			if logger != nil {
				defer func() { _ = logger.Sync() }()
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				summaries := make([]toolSummary, 0, r.Len())
				for _, tool := range r.Tools() {
					summaries = append(summaries, toolSummary{
						Name:        tool.Name,
						Service:     tool.Service,
						Method:      tool.Method,
						Path:        tool.Path,
						Tags:        tool.Tags,
						Description: tool.Description,
						InputSchema: tool.InputSchema(),
					})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summaries)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tMETHOD\tPATH\tSUMMARY")
			for _, tool := range r.Tools() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", tool.Name, tool.Method, tool.Path, firstLine(tool.Description))
			}
			logger.Debug("listed tools", zap.Int("tools", r.Len()))
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print tools with their input schemas as JSON")
	return cmd
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
