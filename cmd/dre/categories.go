package main

import (
	"fmt"

	"github.com/Veraticus/dre-classifier/internal/cli"
	"github.com/Veraticus/dre-classifier/internal/seed"
	"github.com/spf13/cobra"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage the chart of accounts",
		Long:  `Import and list the tenant's chart-of-accounts categories.`,
	}

	cmd.AddCommand(listCategoriesCmd())
	cmd.AddCommand(importSeedCmd("import", "Import categories and rules from a YAML seed file"))

	return cmd
}

func listCategoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := tenant()
			if err != nil {
				return err
			}
			all, _ := cmd.Flags().GetBool("all")

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			list := a.store.ListActiveCategories
			if all {
				list = a.store.ListCategories
			}
			categories, err := list(cmd.Context(), tenantID)
			if err != nil {
				return fmt.Errorf("failed to list categories: %w", err)
			}

			if len(categories) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No categories found. Use 'dre categories import' to load a chart of accounts."))
				return nil
			}
			return cli.WriteCategories(cmd.OutOrStdout(), categories)
		},
	}

	cmd.Flags().Bool("all", false, "Include inactive categories")
	return cmd
}

// importSeedCmd loads a seed file; it is registered under both categories and rules.
func importSeedCmd(use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " FILE",
		Short: short,
		Long: `Import a YAML seed file holding a chart of accounts and curated rules:

  tenant: acme
  categories:
    - {id: cat-payroll, name: Salários e Encargos, type: fixed_cost, group: fixed_costs}
  rules:
    - {pattern: SALARIOS, match: exact, category: cat-payroll, confidence: 0.9}

--tenant overrides the file's tenant. Re-importing a file does not duplicate rules.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := seed.LoadFile(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			tenantID, _ := tenant()
			result, err := seed.Apply(cmd.Context(), a.store, f, tenantID, a.logger)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
				"Imported %d categories and %d rules (%d rules already present)",
				result.Categories, result.Rules, result.SkippedRules)))
			return nil
		},
	}
}
