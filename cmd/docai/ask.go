package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docintel/internal/bootstrap"
	"github.com/kirillkom/docintel/internal/core/domain"
)

var (
	askTenant   string
	askDocument string
	askK        int
	askVariant  string
	askBudget   int
	askJSON     bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from a tenant's documents",
	Long: `Retrieves the closest chunks of the tenant's documents and asks the
configured model to answer from them.

Examples:
  docai ask --tenant org-1 "What is the refund policy?"
  docai ask --tenant org-1 --document 7f1c... --variant terse "Who signed it?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askTenant, "tenant", "t", "", "tenant id (required)")
	askCmd.Flags().StringVarP(&askDocument, "document", "d", "", "restrict retrieval to one document")
	askCmd.Flags().IntVarP(&askK, "k", "k", 0, "number of chunks to retrieve (0 = configured default)")
	askCmd.Flags().StringVar(&askVariant, "variant", "", "prompt variant: full, terse, conversational, summarization")
	askCmd.Flags().IntVar(&askBudget, "token-budget", 0, "prompt token budget (default: configured budget)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full answer as JSON")
	_ = askCmd.MarkFlagRequired("tenant")
}

func runAsk(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("token-budget") && askBudget <= 0 {
		return domain.ValidationError("--token-budget must be positive, got %d", askBudget)
	}
	return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
		answer, err := app.QueryUC.Answer(ctx, domain.QuestionRequest{
			Question:    strings.Join(args, " "),
			TenantID:    askTenant,
			DocumentID:  askDocument,
			K:           askK,
			Variant:     domain.PromptVariant(strings.ToLower(askVariant)),
			TokenBudget: askBudget,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if askJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(answer)
		}
		fmt.Fprintln(out, answer.Text)
		if len(answer.Sources) > 0 {
			fmt.Fprintln(out, "\nSources:")
			for i, src := range answer.Sources {
				fmt.Fprintf(out, "  [%d] %s#%d (score %.3f)\n", i+1, src.DocumentID, src.ChunkIndex, src.Score)
			}
		}
		if answer.Truncated {
			fmt.Fprintln(out, "\n(context was truncated to fit the token budget)")
		}
		return nil
	})
}
