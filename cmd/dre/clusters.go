package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/Veraticus/dre-classifier/internal/cli"
	"github.com/Veraticus/dre-classifier/internal/clustering"
	"github.com/spf13/cobra"
)

func clustersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "Inspect and process transaction clusters",
		Long: `Confident AI categorizations are grouped into clusters by pattern. Mature
clusters become candidate rules when processed.`,
	}

	cmd.AddCommand(listClustersCmd())
	cmd.AddCommand(processClustersCmd())
	return cmd
}

func listClustersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending clusters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := tenant()
			if err != nil {
				return err
			}
			minSize, _ := cmd.Flags().GetInt("min-size")

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			clusters, err := a.store.ListPendingClusters(cmd.Context(), tenantID, minSize)
			if err != nil {
				return fmt.Errorf("failed to list clusters: %w", err)
			}
			if len(clusters) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No pending clusters."))
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				cli.HeaderStyle.Render("Pattern"),
				cli.HeaderStyle.Render("Category"),
				cli.HeaderStyle.Render("Members"),
				cli.HeaderStyle.Render("Mean conf"))
			for _, c := range clusters {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\n", c.Pattern, c.CategoryName, c.MemberCount, c.MeanConfidence)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Int("min-size", 1, "Only clusters with at least this many members")
	return cmd
}

func processClustersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Mint candidate rules from mature clusters",
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

			report, err := a.generator.ProcessPendingClusters(cmd.Context(), tenantID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox("Cluster processing", clusterReport(report)))
			return nil
		},
	}
}

func clusterReport(r clustering.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Examined: %d\nMinted:   %d\nArchived: %d\nFailed:   %d",
		r.Examined, len(r.MintedRules), len(r.ArchivedClusters), r.Failed)
	for _, id := range r.MintedRules {
		fmt.Fprintf(&b, "\n  + %s", id)
	}
	return b.String()
}
