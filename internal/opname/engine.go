// Package opname holds the pure parts of the stock-opname reconciliation
// engine: the display/commit ordering contract, the pre-commit summary, and
// the text report. Persistence and ledger effects live in the service.
package opname

import (
	"fmt"
	"sort"
	"strings"

	"stokku/backend/internal/domain"
)

// SortLines orders lines by category, then by name within each category.
// Items without a category land in the fixed "uncategorized" bucket, which
// sorts by its bucket name like any other category. Reports, summaries and
// commit processing all rely on this exact ordering.
func SortLines(lines []domain.OpnameLine) []domain.OpnameLine {
	sorted := make([]domain.OpnameLine, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := Bucket(sorted[i].Category), Bucket(sorted[j].Category)
		if ci != cj {
			return ci < cj
		}
		return strings.ToLower(sorted[i].Name) < strings.ToLower(sorted[j].Name)
	})
	return sorted
}

// Bucket maps an item category to its report bucket.
func Bucket(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return domain.UncategorizedBucket
	}
	return category
}

// Summarize partitions lines into matching (counted equals system) and
// mismatching. Purely informational; used for the pre-commit confirmation.
func Summarize(lines []domain.OpnameLine) domain.OpnameSummary {
	summary := domain.OpnameSummary{TotalItems: len(lines)}
	for _, line := range lines {
		if line.Difference() == 0 {
			summary.MatchingCount++
		} else {
			summary.MismatchingCount++
		}
	}
	return summary
}

// RenderReport produces the grouped text report for a session. Column order
// (code, name, system, counted, difference) and the category grouping follow
// the SortLines contract.
func RenderReport(session domain.OpnameSession) string {
	lines := SortLines(session.Lines)
	summary := Summarize(lines)

	var b strings.Builder
	fmt.Fprintf(&b, "STOCK OPNAME REPORT (%s)\n", session.Mode)
	fmt.Fprintf(&b, "Session: %s\n", session.ID)
	b.WriteString("========================================\n")

	currentBucket := ""
	for _, line := range lines {
		bucket := Bucket(line.Category)
		if bucket != currentBucket {
			if currentBucket != "" {
				b.WriteString("\n")
			}
			currentBucket = bucket
			fmt.Fprintf(&b, "[%s]\n", bucket)
			fmt.Fprintf(&b, "%-10s %-28s %8s %8s %6s\n", "CODE", "NAME", "SYSTEM", "COUNTED", "DIFF")
		}
		fmt.Fprintf(&b, "%-10s %-28s %8d %8d %+6d\n",
			line.Code, truncate(line.Name, 28), line.SystemQty, line.CountedQty, line.Difference())
	}

	b.WriteString("========================================\n")
	fmt.Fprintf(&b, "Total items : %d\n", summary.TotalItems)
	fmt.Fprintf(&b, "Matching    : %d\n", summary.MatchingCount)
	fmt.Fprintf(&b, "Mismatching : %d\n", summary.MismatchingCount)
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// FailedLine is one line whose ledger adjustment could not be applied during
// a commit, paired with the reason.
type FailedLine struct {
	Line   domain.OpnameLine `json:"line"`
	Reason string            `json:"reason"`
}

// PartialCommitError reports a commit that applied some adjustments but not
// all. Applied movements are never rolled back; the failed lines stay in the
// session draft so only they are retried.
type PartialCommitError struct {
	SessionID string                 `json:"session_id"`
	Applied   []domain.StockMovement `json:"applied"`
	Failed    []FailedLine           `json:"failed"`
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("opname commit partially applied: %d movement(s) committed, %d line(s) failed", len(e.Applied), len(e.Failed))
}
