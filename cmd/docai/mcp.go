package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docintel/internal/adapters/mcp"
	"github.com/kirillkom/docintel/internal/bootstrap"
)

var mcpTenant string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve document tools over MCP on stdio",
	Long: `Starts an MCP server on stdin/stdout bound to a single tenant.

Tools: ask_documents, document_status, reprocess_document, chunk_stats.

Client configuration:
  {
    "mcpServers": {
      "docintel": {
        "command": "/path/to/docai",
        "args": ["mcp", "--tenant", "org-1"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			tenant := mcpTenant
			if tenant == "" {
				tenant = app.Config.MCPTenantID
			}
			server, err := mcp.NewServer(&mcp.Ports{
				Query:     app.QueryUC,
				Documents: app.DocumentUC,
				Processor: app.ProcessUC,
				TenantID:  tenant,
			}, app.Logger)
			if err != nil {
				return fmt.Errorf("mcp server: %w", err)
			}
			return server.Serve(ctx, os.Stdin, cmd.OutOrStdout())
		})
	},
}

func init() {
	mcpCmd.Flags().StringVarP(&mcpTenant, "tenant", "t", "", "tenant the tools are bound to (default MCP_TENANT_ID)")
}
