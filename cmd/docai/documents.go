package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docintel/internal/bootstrap"
)

var statusCmd = &cobra.Command{
	Use:   "status <document-id>",
	Short: "Show a document's processing state and AI fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			doc, err := app.DocumentUC.GetByID(ctx, args[0], false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Document:  %s (%s)\n", doc.ID, doc.Filename)
			fmt.Fprintf(out, "Tenant:    %s\n", valueOr(doc.TenantID, "personal:"+doc.OwnerID))
			fmt.Fprintf(out, "Status:    %s\n", doc.AI.Status)
			if doc.AI.Category != "" {
				fmt.Fprintf(out, "Category:  %s (%.2f)\n", doc.AI.Category, doc.AI.Confidence)
			}
			if len(doc.AI.Tags) > 0 {
				fmt.Fprintf(out, "Tags:      %s\n", strings.Join(doc.AI.Tags, ", "))
			}
			if doc.AI.Summary != "" {
				fmt.Fprintf(out, "Summary:   %s\n", doc.AI.Summary)
			}
			if doc.AI.Error != "" {
				fmt.Fprintf(out, "Error:     %s\n", doc.AI.Error)
			}
			return nil
		})
	},
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <document-id>...",
	Short: "Queue completed or failed documents for another pipeline run",
	Long: `Moves each document back to pending and schedules it. With
PIPELINE_MODE=inprocess the runs happen in this process and the command
waits for them before exiting.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			var failed int
			for _, id := range args {
				doc, err := app.ProcessUC.Reprocess(ctx, id)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", doc.ID, doc.AI.Status)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents could not be reprocessed", failed, len(args))
			}
			return nil
		})
	},
}

var statsTenant string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count stored chunks and documents",
	Long:  `Without --tenant the counts cover every tenant.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			stats, err := app.QueryUC.Stats(ctx, statsTenant)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tenant=%s chunks=%d documents=%d\n",
				valueOr(statsTenant, "*"), stats.ChunkCount, stats.DocumentCount)
			return nil
		})
	},
}

func init() {
	statsCmd.Flags().StringVarP(&statsTenant, "tenant", "t", "", "tenant id (empty = all tenants)")
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
