package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/novadb/novadb-mcp-demo/mcp"
)

func newToolsCommand(v *viper.Viper) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the MCP tools/list payload without contacting NovaDB",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfigFile(v); err != nil {
				return err
			}
			cfg, _, err := configFromViper(v)
			if err != nil {
				return err
			}
			out, err := mcp.BuildToolsListResponseJSON(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			switch strings.ToLower(strings.TrimSpace(format)) {
			case "json", "":
				_, err = cmd.OutOrStdout().Write(out)
				return err
			case "yaml", "yml":
				// Round-trip through a generic value so the JSON field names
				// carry over.
				var generic any
				if err := json.Unmarshal(out, &generic); err != nil {
					return err
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(generic); err != nil {
					return err
				}
				return enc.Close()
			default:
				return fmt.Errorf("unsupported --format %q (expected json|yaml)", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format (json|yaml)")
	return cmd
}
