package main

import (
	"fmt"
	"strings"

	"github.com/Veraticus/dre-classifier/internal/cli"
	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/service"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage categorization rules",
		Long: `List rules and drive their lifecycle: confirm or reject hits, refine
patterns, consolidate duplicates and sweep low performers.`,
	}

	cmd.AddCommand(listRulesCmd())
	cmd.AddCommand(importSeedCmd("import", "Import rules (and their categories) from a YAML seed file"))
	cmd.AddCommand(confirmRuleCmd())
	cmd.AddCommand(rejectRuleCmd())
	cmd.AddCommand(refineRuleCmd())
	cmd.AddCommand(consolidateRulesCmd())
	cmd.AddCommand(sweepRulesCmd())

	return cmd
}

func listRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := tenant()
			if err != nil {
				return err
			}
			statuses, _ := cmd.Flags().GetStringSlice("status")
			categoryID, _ := cmd.Flags().GetString("category")

			filter := service.RuleFilter{CategoryID: categoryID}
			for _, s := range statuses {
				status := model.RuleStatus(strings.ToLower(strings.TrimSpace(s)))
				if !status.Valid() {
					return fmt.Errorf("unknown rule status %q", s)
				}
				filter.Statuses = append(filter.Statuses, status)
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rules, err := a.store.ListRules(cmd.Context(), tenantID, filter)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}
			if len(rules) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No rules found."))
				return nil
			}
			return cli.WriteRules(cmd.OutOrStdout(), rules)
		},
	}

	cmd.Flags().StringSlice("status", nil, "Only rules with these statuses (candidate, active, refined, consolidated, inactive)")
	cmd.Flags().String("category", "", "Only rules of this category ID")
	return cmd
}

func confirmRuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm RULE_ID",
		Short: "Record that a rule categorized a transaction correctly",
		Long:  `Counts a confirmed hit. A candidate rule becomes active once it has enough confirmations.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := tenant()
			if err != nil {
				return err
			}
			txnID, _ := cmd.Flags().GetString("transaction")

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rule, err := a.lifecycle.RecordPositiveUse(cmd.Context(), tenantID, args[0], txnID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
				"Rule %s is %s (%d confirmations)", rule.ID, rule.Status, rule.ValidationCount)))
			return nil
		},
	}

	cmd.Flags().String("transaction", "", "Transaction the confirmation refers to")
	return cmd
}

func rejectRuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject RULE_ID",
		Short: "Record that a rule categorized a transaction wrongly",
		Long:  `Counts a correction. A rule is deactivated once corrections outweigh confirmations two to one.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := tenant()
			if err != nil {
				return err
			}
			txnID, _ := cmd.Flags().GetString("transaction")
			corrected, _ := cmd.Flags().GetString("corrected")
			note, _ := cmd.Flags().GetString("note")

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rule, err := a.lifecycle.RecordNegativeUse(cmd.Context(), tenantID, args[0], txnID, corrected, note)
			if err != nil {
				return err
			}

			msg := fmt.Sprintf("Rule %s is %s (%d corrections)", rule.ID, rule.Status, rule.NegativeCount)
			if rule.Status == model.RuleInactive {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(msg))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(msg))
			}
			return nil
		},
	}

	cmd.Flags().String("transaction", "", "Transaction the correction refers to")
	cmd.Flags().String("corrected", "", "Category ID the transaction actually belongs to")
	cmd.Flags().String("note", "", "Free-form note kept with the feedback")
	return cmd
}

func refineRuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refine RULE_ID PATTERN",
		Short: "Replace a rule with a narrower pattern",
		Long:  `Creates a refined child rule with the new pattern and deactivates the original.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := tenant()
			if err != nil {
				return err
			}
			match, _ := cmd.Flags().GetString("match")

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			child, err := a.lifecycle.RefineRule(cmd.Context(), tenantID, args[0], args[1], model.MatchType(match))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
				"Rule %s refined into %s (%s %q)", args[0], child.ID, child.MatchType, child.Pattern)))
			return nil
		},
	}

	cmd.Flags().String("match", "", "Match type of the refined rule (exact, contains, regex); defaults to the original's")
	return cmd
}

func consolidateRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consolidate",
		Short: "Merge near-duplicate rules of the same category",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := tenant()
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			merged, err := a.lifecycle.ConsolidateRules(cmd.Context(), tenantID)
			if err != nil {
				return err
			}
			if len(merged) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No duplicate rules found."))
				return nil
			}
			for _, m := range merged {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
					"Rule %s absorbed %s", m.SurvivorID, strings.Join(m.MergedIDs, ", "))))
			}
			return nil
		},
	}
}

func sweepRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Deactivate imprecise and stale rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := tenant()
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			report, err := a.lifecycle.DeactivateLowPerformingRules(cmd.Context(), tenantID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox("Rule sweep", fmt.Sprintf(
				"Examined:      %d\nLow precision: %d\nStale:         %d",
				report.Examined, len(report.LowPrecision), len(report.Stale))))
			return nil
		},
	}
}
