package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Veraticus/dre-classifier/internal/cli"
	"github.com/Veraticus/dre-classifier/internal/engine"
	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func categorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Categorize a transaction",
		Long: `Categorize one transaction given on the command line. Use the batch
subcommand for JSONL files.`,
		RunE: runCategorize,
	}

	cmd.Flags().String("description", "", "Transaction description (required)")
	cmd.Flags().String("memo", "", "Transaction memo")
	cmd.Flags().String("payee", "", "Payee name")
	cmd.Flags().String("amount", "", "Signed amount; negative for outflows (required)")
	cmd.Flags().String("id", "", "Transaction ID")
	addCategorizeFlags(cmd)
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("amount")

	cmd.AddCommand(categorizeBatchCmd())
	return cmd
}

func addCategorizeFlags(cmd *cobra.Command) {
	cmd.Flags().Int("threshold", 0, "Confidence threshold 0-100 (default from config)")
	cmd.Flags().Bool("no-cache", false, "Skip the result cache")
	cmd.Flags().Bool("no-rules", false, "Skip rules")
	cmd.Flags().Bool("no-history", false, "Skip history matching")
	cmd.Flags().Bool("no-ai", false, "Skip the AI model")
	cmd.Flags().Bool("no-learn", false, "Do not feed confident AI results to rule generation")
	cmd.Flags().Bool("no-save", false, "Do not record accepted results in history")
}

func categorizeOptions(cmd *cobra.Command, defaults engine.Options, tenantID string) engine.Options {
	opts := defaults
	opts.TenantID = tenantID
	if threshold, _ := cmd.Flags().GetInt("threshold"); threshold > 0 {
		opts.ConfidenceThreshold = threshold
	}
	opts.SkipCache, _ = cmd.Flags().GetBool("no-cache")
	opts.SkipRules, _ = cmd.Flags().GetBool("no-rules")
	opts.SkipHistory, _ = cmd.Flags().GetBool("no-history")
	opts.SkipAI, _ = cmd.Flags().GetBool("no-ai")
	opts.SkipAutoLearning, _ = cmd.Flags().GetBool("no-learn")
	return opts
}

func runCategorize(cmd *cobra.Command, _ []string) error {
	tenantID, err := tenant()
	if err != nil {
		return err
	}

	amountText, _ := cmd.Flags().GetString("amount")
	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", amountText, err)
	}
	txn := model.TransactionContext{Amount: amount}
	txn.Description, _ = cmd.Flags().GetString("description")
	txn.Memo, _ = cmd.Flags().GetString("memo")
	txn.PayeeName, _ = cmd.Flags().GetString("payee")
	txn.TransactionID, _ = cmd.Flags().GetString("id")

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	opts := categorizeOptions(cmd, a.settings.Engine, tenantID)
	eng, err := a.engine(!opts.SkipAI)
	if err != nil {
		return err
	}
	defer eng.Wait()

	result, err := eng.Categorize(cmd.Context(), txn, opts)
	if err != nil {
		return err
	}

	if noSave, _ := cmd.Flags().GetBool("no-save"); !noSave {
		if err := a.saveHistory(cmd.Context(), tenantID, txn, result); err != nil {
			return err
		}
	}
	return cli.WriteResult(cmd.OutOrStdout(), result)
}

func categorizeBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Categorize a JSONL file of transactions",
		Long: `Categorize every transaction of a JSONL file ("-" for stdin). Each line is
{"id": "...", "description": "...", "memo": "...", "payee": "...", "amount": "-10.50"}.
Results are written as JSONL in input order.`,
		Args: cobra.ExactArgs(1),
		RunE: runCategorizeBatch,
	}

	cmd.Flags().StringP("output", "o", "-", "Output file (- for stdout)")
	cmd.Flags().Int("concurrency", engine.DefaultBatchConcurrency, "Transactions categorized in parallel")
	addCategorizeFlags(cmd)
	return cmd
}

func runCategorizeBatch(cmd *cobra.Command, args []string) error {
	tenantID, err := tenant()
	if err != nil {
		return err
	}
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	output, _ := cmd.Flags().GetString("output")
	noSave, _ := cmd.Flags().GetBool("no-save")

	txns, err := readInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}
	if len(txns) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatInfo("No transactions to categorize."))
		return nil
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	opts := categorizeOptions(cmd, a.settings.Engine, tenantID)
	eng, err := a.engine(!opts.SkipAI)
	if err != nil {
		return err
	}
	defer eng.Wait()

	ctx := cli.NewInterruptHandler(cmd.ErrOrStderr()).HandleInterrupts(cmd.Context(), "No results were written; rerun the batch.")

	bar := cli.NewProgressBar(cmd.ErrOrStderr(), len(txns), "Categorizing transactions...")
	started := time.Now()
	results, err := eng.CategorizeBatch(ctx, txns, opts, concurrency, func() { _ = bar.Add(1) })
	if err != nil {
		return err
	}

	if !noSave {
		for i := range results {
			if err := a.saveHistory(ctx, tenantID, txns[i], results[i]); err != nil {
				return err
			}
		}
	}

	w, closeOutput, err := openOutput(cmd.OutOrStdout(), output)
	if err != nil {
		return err
	}
	defer closeOutput()
	if err := writeResults(w, txns, results); err != nil {
		return err
	}

	a.logger.Info("Batch categorized", "tenant_id", tenantID, "transactions", len(txns), "duration", time.Since(started))
	return cli.WriteSummary(cmd.ErrOrStderr(), cli.Summarize(results))
}

// saveHistory records an accepted result so later runs can match against it.
func (a *app) saveHistory(ctx context.Context, tenantID string, txn model.TransactionContext, result model.CategorizationResult) error {
	if result.NeedsReview || result.CategoryID == "" {
		return nil
	}
	id := txn.TransactionID
	if id == "" {
		id = uuid.NewString()
	}
	err := a.store.SaveCategorizedTransaction(ctx, &model.CategorizedTransaction{
		ID:            id,
		TenantID:      tenantID,
		Description:   txn.Description,
		Memo:          txn.Memo,
		PayeeName:     txn.PayeeName,
		Amount:        txn.Amount,
		CategoryID:    result.CategoryID,
		CategoryName:  result.CategoryName,
		Confidence:    float64(result.Confidence) / 100,
		Source:        result.Source,
		CategorizedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to save categorization history: %w", err)
	}
	return nil
}

func readInput(stdin io.Reader, path string) ([]model.TransactionContext, error) {
	if path == "-" {
		return readTransactions(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()
	return readTransactions(f)
}

func openOutput(stdout io.Writer, path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
