package opname

import (
	"strings"
	"testing"

	"stokku/backend/internal/domain"
)

func TestSortLinesByBucketThenName(t *testing.T) {
	lines := []domain.OpnameLine{
		{Code: "B1", Name: "Zed", Category: "beta"},
		{Code: "A1", Name: "Alpha", Category: "alpha"},
		{Code: "B2", Name: "Beta", Category: "beta"},
	}

	sorted := SortLines(lines)
	got := []string{sorted[0].Name, sorted[1].Name, sorted[2].Name}
	want := []string{"Alpha", "Beta", "Zed"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v, want %v", i, got, want)
		}
	}

	// Input order is untouched.
	if lines[0].Name != "Zed" {
		t.Fatalf("SortLines mutated its input")
	}
}

func TestSortLinesUncategorizedBucket(t *testing.T) {
	lines := []domain.OpnameLine{
		{Code: "X1", Name: "Loose Item", Category: ""},
		{Code: "Z1", Name: "Zz Item", Category: "zzz"},
		{Code: "S1", Name: "Snack", Category: "snack"},
	}

	sorted := SortLines(lines)
	// "snack" < "uncategorized" < "zzz".
	if sorted[0].Code != "S1" || sorted[1].Code != "X1" || sorted[2].Code != "Z1" {
		t.Fatalf("unexpected bucket order: %+v", sorted)
	}
	if Bucket("") != domain.UncategorizedBucket {
		t.Fatalf("empty category must map to the fixed bucket")
	}
}

func TestSummarize(t *testing.T) {
	lines := make([]domain.OpnameLine, 0, 10)
	for i := 0; i < 7; i++ {
		lines = append(lines, domain.OpnameLine{SystemQty: 5, CountedQty: 5})
	}
	for i := 0; i < 3; i++ {
		lines = append(lines, domain.OpnameLine{SystemQty: 5, CountedQty: 4})
	}

	summary := Summarize(lines)
	if summary.MatchingCount != 7 || summary.MismatchingCount != 3 || summary.TotalItems != 10 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestRenderReportGroupsByCategory(t *testing.T) {
	session := domain.OpnameSession{
		ID:   "so-test",
		Mode: domain.OpnameModeGrand,
		Lines: []domain.OpnameLine{
			{Code: "SNK01", Name: "Keripik", Category: "snack", SystemQty: 30, CountedQty: 28},
			{Code: "BEV01", Name: "Kopi", Category: "beverage", SystemQty: 200, CountedQty: 200},
			{Code: "MISC1", Name: "Loose Bolt", Category: "", SystemQty: 4, CountedQty: 4},
		},
	}

	report := RenderReport(session)

	bev := strings.Index(report, "[beverage]")
	snk := strings.Index(report, "[snack]")
	unc := strings.Index(report, "[uncategorized]")
	if bev == -1 || snk == -1 || unc == -1 {
		t.Fatalf("missing category header in report:\n%s", report)
	}
	if !(bev < snk && snk < unc) {
		t.Fatalf("category headers out of order:\n%s", report)
	}
	if !strings.Contains(report, "Mismatching : 1") {
		t.Fatalf("summary footer missing:\n%s", report)
	}
	if !strings.Contains(report, "-2") {
		t.Fatalf("signed difference missing:\n%s", report)
	}
}

func TestRenderReportTruncatesLongNames(t *testing.T) {
	session := domain.OpnameSession{
		ID:   "so-test",
		Mode: domain.OpnameModePartial,
		Lines: []domain.OpnameLine{
			{Code: "GRO01", Name: strings.Repeat("x", 60), Category: "grocery"},
		},
	}
	report := RenderReport(session)
	if strings.Contains(report, strings.Repeat("x", 29)) {
		t.Fatalf("name was not truncated:\n%s", report)
	}
	if !strings.Contains(report, "...") {
		t.Fatalf("truncation marker missing:\n%s", report)
	}
}

func TestPartialCommitErrorMessage(t *testing.T) {
	err := &PartialCommitError{
		SessionID: "so-1",
		Applied:   []domain.StockMovement{{ID: "mv-1"}},
		Failed:    []FailedLine{{Reason: "storage unavailable"}},
	}
	msg := err.Error()
	if !strings.Contains(msg, "1 movement(s) committed") || !strings.Contains(msg, "1 line(s) failed") {
		t.Fatalf("unexpected message: %s", msg)
	}
}
