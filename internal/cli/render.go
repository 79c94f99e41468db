package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/schollz/progressbar/v3"
)

// WriteResult prints one categorization.
func WriteResult(w io.Writer, r model.CategorizationResult) error {
	status := SuccessStyle.Render("accepted")
	if r.NeedsReview {
		status = WarningStyle.Render("needs review")
	}

	lines := []string{
		fmt.Sprintf("Category:   %s", r.CategoryName),
		fmt.Sprintf("Confidence: %d (%s)", r.Confidence, status),
		fmt.Sprintf("Source:     %s", r.Source),
		fmt.Sprintf("Movement:   %s", r.MovementType),
		fmt.Sprintf("Reason:     %s %s", r.Reason.Code, SubtleStyle.Render(r.Reason.Message)),
	}
	if r.RuleID != "" {
		lines = append(lines, fmt.Sprintf("Rule:       %s", r.RuleID))
	}

	_, err := fmt.Fprintln(w, RenderBox("Categorization", strings.Join(lines, "\n")))
	return err
}

// WriteCategories prints a category table.
func WriteCategories(w io.Writer, categories []model.Category) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
		HeaderStyle.Render("ID"),
		HeaderStyle.Render("Name"),
		HeaderStyle.Render("Type"),
		HeaderStyle.Render("Group"),
		HeaderStyle.Render("Active"))
	for _, c := range categories {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", c.ID, c.Name, c.Type, c.DREGroup, c.IsActive)
	}
	return tw.Flush()
}

// WriteRules prints a rule table with precision figures.
func WriteRules(w io.Writer, rules []model.Rule) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		HeaderStyle.Render("ID"),
		HeaderStyle.Render("Pattern"),
		HeaderStyle.Render("Match"),
		HeaderStyle.Render("Category"),
		HeaderStyle.Render("Status"),
		HeaderStyle.Render("Conf"),
		HeaderStyle.Render("Used/OK/Bad"))
	for _, r := range rules {
		category := r.CategoryName
		if category == "" {
			category = r.CategoryID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.2f\t%d/%d/%d\n",
			r.ID, r.Pattern, r.MatchType, category, r.Status, r.Confidence,
			r.UsageCount, r.ValidationCount, r.NegativeCount)
	}
	return tw.Flush()
}

// BatchSummary tallies a batch run.
type BatchSummary struct {
	BySource    map[model.Source]int
	Total       int
	Accepted    int
	NeedsReview int
}

// Summarize tallies results.
func Summarize(results []model.CategorizationResult) BatchSummary {
	s := BatchSummary{BySource: make(map[model.Source]int), Total: len(results)}
	for _, r := range results {
		s.BySource[r.Source]++
		if r.NeedsReview {
			s.NeedsReview++
		} else {
			s.Accepted++
		}
	}
	return s
}

// WriteSummary prints a batch summary box.
func WriteSummary(w io.Writer, s BatchSummary) error {
	sources := make([]string, 0, len(s.BySource))
	for source := range s.BySource {
		sources = append(sources, string(source))
	}
	sort.Strings(sources)

	var b strings.Builder
	fmt.Fprintf(&b, "Transactions: %d\n", s.Total)
	fmt.Fprintf(&b, "Accepted:     %s\n", SuccessStyle.Render(fmt.Sprint(s.Accepted)))
	fmt.Fprintf(&b, "Needs review: %s", WarningStyle.Render(fmt.Sprint(s.NeedsReview)))
	for _, source := range sources {
		fmt.Fprintf(&b, "\n  %-8s %d", source, s.BySource[model.Source(source)])
	}

	_, err := fmt.Fprintln(w, RenderBox("Batch complete", b.String()))
	return err
}

// NewProgressBar creates the batch progress bar.
func NewProgressBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(w); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}
