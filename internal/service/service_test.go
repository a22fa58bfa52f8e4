package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"stokku/backend/internal/allocator"
	"stokku/backend/internal/config"
	"stokku/backend/internal/domain"
	"stokku/backend/internal/opname"
	"stokku/backend/internal/store"
	"stokku/backend/internal/store/memory"
)

func testThresholds() config.MonitoringThresholds {
	return config.MonitoringThresholds{
		WarnConsecutive: 2,
		CritConsecutive: 3,
		WarnValueCents:  500000,
		CritValueCents:  2000000,
	}
}

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	svc := New(repo, nil, time.Second, testThresholds(), zap.NewNop())
	return svc, repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func TestApplyMovementUpdatesBalance(t *testing.T) {
	svc, repo := newTestService()
	ctx := adminCtx()

	resp, err := svc.ApplyMovement(ctx, "GRO02", domain.ApplyMovementRequest{
		Type: domain.MovementTypeIn, Quantity: 10, UnitPriceCents: 23000, Reason: "restock",
	})
	if err != nil {
		t.Fatalf("in movement failed: %v", err)
	}
	if resp.Item.Quantity != 50 {
		t.Fatalf("expected balance 50 after +10, got %d", resp.Item.Quantity)
	}
	if resp.Movement.Quantity != 10 {
		t.Fatalf("expected stored quantity +10, got %d", resp.Movement.Quantity)
	}

	resp, err = svc.ApplyMovement(ctx, "GRO02", domain.ApplyMovementRequest{
		Type: domain.MovementTypeOut, Quantity: 25, UnitPriceCents: 26500, Reason: "damaged goods",
	})
	if err != nil {
		t.Fatalf("out movement failed: %v", err)
	}
	if resp.Item.Quantity != 25 {
		t.Fatalf("expected balance 25 after -25, got %d", resp.Item.Quantity)
	}
	if resp.Movement.Quantity != -25 {
		t.Fatalf("expected out movement stored as -25, got %d", resp.Movement.Quantity)
	}

	movements, err := svc.ListMovements(ctx, "GRO02", time.Time{}, time.Time{}, 0)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	sum := 0
	for _, m := range movements {
		sum += m.Quantity
	}
	item, err := repo.GetItemByCode(ctx, "GRO02")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if sum != item.Quantity {
		t.Fatalf("ledger sum %d does not match balance %d", sum, item.Quantity)
	}
}

func TestApplyMovementInsufficientStock(t *testing.T) {
	svc, repo := newTestService()
	ctx := adminCtx()

	before, _ := repo.GetItemByCode(ctx, "DRY01")
	beforeMoves, _ := repo.ListMovements(ctx, "DRY01", time.Time{}, time.Time{}, 0)

	_, err := svc.ApplyMovement(ctx, "DRY01", domain.ApplyMovementRequest{
		Type: domain.MovementTypeOut, Quantity: before.Quantity + 1, Reason: "oversell attempt",
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	after, _ := repo.GetItemByCode(ctx, "DRY01")
	if after.Quantity != before.Quantity {
		t.Fatalf("balance changed on rejected movement: %d -> %d", before.Quantity, after.Quantity)
	}
	afterMoves, _ := repo.ListMovements(ctx, "DRY01", time.Time{}, time.Time{}, 0)
	if len(afterMoves) != len(beforeMoves) {
		t.Fatalf("rejected movement was appended to the ledger")
	}
}

func TestApplyMovementValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	cases := []domain.ApplyMovementRequest{
		{Type: "transfer", Quantity: 1, Reason: "x"},
		{Type: domain.MovementTypeIn, Quantity: 0, Reason: "x"},
		{Type: domain.MovementTypeOut, Quantity: -3, Reason: "x"},
		{Type: domain.MovementTypeAdjustment, Quantity: 0, Reason: "x"},
		{Type: domain.MovementTypeIn, Quantity: 1, Reason: ""},
		{Type: domain.MovementTypeIn, Quantity: 1, Reason: "x", UnitPriceCents: -1},
	}
	for i, req := range cases {
		if _, err := svc.ApplyMovement(ctx, "GRO01", req); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}

	plain := WithActor(context.Background(), domain.Actor{Username: "kasir", Role: "cashier"})
	if _, err := svc.ApplyMovement(plain, "GRO01", domain.ApplyMovementRequest{
		Type: domain.MovementTypeIn, Quantity: 1, Reason: "x",
	}); err == nil {
		t.Fatalf("expected cashier movement to be rejected")
	}
}

func TestCreateItemAllocatesLowestSequence(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	item, err := svc.CreateItem(ctx, domain.ItemCreateRequest{
		Name: "Beras 5kg", CategoryName: "grocery", PriceCents: 78000, CostCents: 69000,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if item.Code != "GRO04" {
		t.Fatalf("expected code GRO04, got %s", item.Code)
	}

	item, err = svc.CreateItem(ctx, domain.ItemCreateRequest{
		Name: "Keju Lembaran", CategoryName: "dairy", PriceCents: 21000, CostCents: 16000,
	})
	if err != nil {
		t.Fatalf("create dairy item: %v", err)
	}
	if item.Code != "DRY02" {
		t.Fatalf("expected code DRY02, got %s", item.Code)
	}
}

func TestCreateItemUnknownCategory(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateItem(adminCtx(), domain.ItemCreateRequest{
		Name: "Obat Batuk", CategoryName: "pharmacy", PriceCents: 14000,
	})
	if !errors.Is(err, allocator.ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestCreateItemInitialStockGoesThroughLedger(t *testing.T) {
	svc, repo := newTestService()
	ctx := adminCtx()

	item, err := svc.CreateItem(ctx, domain.ItemCreateRequest{
		Name: "Yogurt Cup", CategoryName: "dairy", PriceCents: 9500, CostCents: 6800, InitialStock: 12,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if item.Quantity != 12 {
		t.Fatalf("expected initial balance 12, got %d", item.Quantity)
	}

	movements, err := repo.ListMovements(ctx, item.Code, time.Time{}, time.Time{}, 0)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 1 || movements[0].Type != domain.MovementTypeIn || movements[0].Quantity != 12 {
		t.Fatalf("expected a single +12 in movement, got %+v", movements)
	}
}

// duplicateOnceRepo makes the first CreateItem fail with a unique-index
// conflict, simulating a concurrent insert winning the same code.
type duplicateOnceRepo struct {
	*memory.Store
	failed bool
}

func (r *duplicateOnceRepo) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if !r.failed {
		r.failed = true
		return nil, store.ErrDuplicateCode
	}
	return r.Store.CreateItem(ctx, item)
}

func TestCreateItemRetriesOnDuplicateCode(t *testing.T) {
	repo := &duplicateOnceRepo{Store: memory.NewSeeded()}
	svc := New(repo, nil, time.Second, testThresholds(), zap.NewNop())

	item, err := svc.CreateItem(adminCtx(), domain.ItemCreateRequest{
		Name: "Sarden Kaleng", CategoryName: "grocery", PriceCents: 15500, CostCents: 12000,
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if item.Code != "GRO04" {
		t.Fatalf("expected retried allocation GRO04, got %s", item.Code)
	}
	if !repo.failed {
		t.Fatalf("fake repo never triggered the duplicate")
	}
}

func TestStartGrandOpnamePreloadsSortedLines(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	session, err := svc.StartOpname(ctx, "device-a", domain.OpnameModeGrand)
	if err != nil {
		t.Fatalf("start grand opname: %v", err)
	}
	if len(session.Lines) != 11 {
		t.Fatalf("expected 11 pre-loaded lines, got %d", len(session.Lines))
	}
	for i, line := range session.Lines {
		if line.CountedQty != 0 {
			t.Fatalf("line %d pre-loaded with nonzero count %d", i, line.CountedQty)
		}
	}
	sorted := opname.SortLines(session.Lines)
	for i := range sorted {
		if sorted[i].Code != session.Lines[i].Code {
			t.Fatalf("pre-loaded lines not in report order at index %d", i)
		}
	}

	if _, err := svc.StartOpname(ctx, "device-a", domain.OpnameModePartial); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive for second session, got %v", err)
	}
	if _, err := svc.StartOpname(ctx, "device-b", domain.OpnameModePartial); err != nil {
		t.Fatalf("other device should be able to start its own session: %v", err)
	}
}

func TestOpnameDraftRoundTrip(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	if _, err := svc.StartOpname(ctx, "device-a", domain.OpnameModePartial); err != nil {
		t.Fatalf("start opname: %v", err)
	}
	// Scan by SKU, count by code: both resolve to the same line.
	if _, err := svc.UpsertOpnameLine(ctx, "device-a", domain.OpnameLineRequest{Code: "8990011001", CountedQty: 118}, false); err != nil {
		t.Fatalf("add line by sku: %v", err)
	}
	session, err := svc.UpsertOpnameLine(ctx, "device-a", domain.OpnameLineRequest{Code: "SNK01", CountedQty: 30}, false)
	if err != nil {
		t.Fatalf("add line by code: %v", err)
	}

	session.Lines[0].CountedQty = 119
	saved, err := svc.SaveOpnameDraft(ctx, "device-a", domain.OpnameDraftRequest{
		Lines:    session.Lines,
		LastView: domain.OpnameViewComparison,
	})
	if err != nil {
		t.Fatalf("save draft: %v", err)
	}

	loaded, err := svc.LoadOpname(ctx, "device-a")
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if loaded.ID != saved.ID || loaded.LastView != domain.OpnameViewComparison {
		t.Fatalf("session identity or resume view lost: %+v", loaded)
	}
	if len(loaded.Lines) != 2 {
		t.Fatalf("expected 2 lines after reload, got %d", len(loaded.Lines))
	}
	if loaded.Lines[0].Code != "GRO01" || loaded.Lines[0].CountedQty != 119 || loaded.Lines[0].SystemQty != 120 {
		t.Fatalf("line state not reproduced exactly: %+v", loaded.Lines[0])
	}
}

func TestUpsertLineDuplicateNeedsOverwrite(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	if _, err := svc.StartOpname(ctx, "device-a", domain.OpnameModePartial); err != nil {
		t.Fatalf("start opname: %v", err)
	}
	if _, err := svc.UpsertOpnameLine(ctx, "device-a", domain.OpnameLineRequest{Code: "GRO01", CountedQty: 100}, false); err != nil {
		t.Fatalf("first count: %v", err)
	}

	_, err := svc.UpsertOpnameLine(ctx, "device-a", domain.OpnameLineRequest{Code: "GRO01", CountedQty: 90}, false)
	if !errors.Is(err, ErrLineExists) {
		t.Fatalf("expected ErrLineExists, got %v", err)
	}

	session, err := svc.UpsertOpnameLine(ctx, "device-a", domain.OpnameLineRequest{Code: "GRO01", CountedQty: 90}, true)
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if len(session.Lines) != 1 || session.Lines[0].CountedQty != 90 {
		t.Fatalf("overwrite did not replace the counted quantity: %+v", session.Lines)
	}
	if session.Lines[0].SystemQty != 120 {
		t.Fatalf("system snapshot changed on overwrite: %d", session.Lines[0].SystemQty)
	}
}

func TestOpnameSummaryCounts(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	if _, err := svc.StartOpname(ctx, "device-a", domain.OpnameModeGrand); err != nil {
		t.Fatalf("start opname: %v", err)
	}
	session, err := svc.LoadOpname(ctx, "device-a")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	// 7 matching, 3 mismatching, one left uncounted (also a mismatch).
	for i := range session.Lines {
		switch {
		case i < 7:
			session.Lines[i].CountedQty = session.Lines[i].SystemQty
		case i < 10:
			session.Lines[i].CountedQty = session.Lines[i].SystemQty - 2
		}
	}
	if _, err := svc.SaveOpnameDraft(ctx, "device-a", domain.OpnameDraftRequest{Lines: session.Lines}); err != nil {
		t.Fatalf("save draft: %v", err)
	}

	summary, err := svc.OpnameSummary(ctx, "device-a")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.MatchingCount != 7 || summary.MismatchingCount != 4 || summary.TotalItems != 11 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestCommitAppliesAdjustments(t *testing.T) {
	svc, repo := newTestService()
	ctx := adminCtx()

	if _, err := svc.StartOpname(ctx, "device-a", domain.OpnameModePartial); err != nil {
		t.Fatalf("start opname: %v", err)
	}
	// BEV02 system 48, counted 40: deficit of 8.
	if _, err := svc.UpsertOpnameLine(ctx, "device-a", domain.OpnameLineRequest{Code: "BEV02", CountedQty: 40}, false); err != nil {
		t.Fatalf("count line: %v", err)
	}
	session, err := svc.LoadOpname(ctx, "device-a")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}

	resp, err := svc.CommitOpname(ctx, "device-a")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(resp.Movements) != 1 {
		t.Fatalf("expected 1 adjustment, got %d", len(resp.Movements))
	}
	m := resp.Movements[0]
	if m.Type != domain.MovementTypeAdjustment || m.Quantity != -8 {
		t.Fatalf("unexpected adjustment: %+v", m)
	}
	if m.Reference != session.ID || m.Reason != domain.OpnameAdjustmentReason {
		t.Fatalf("adjustment not linked to the session: %+v", m)
	}

	item, _ := repo.GetItemByCode(ctx, "BEV02")
	if item.Quantity != 40 {
		t.Fatalf("expected balance 40 after commit, got %d", item.Quantity)
	}

	if _, err := svc.LoadOpname(ctx, "device-a"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("session should be cleared after commit, got %v", err)
	}

	record, err := repo.GetLatestMonitoringRecord(ctx, "BEV02")
	if err != nil {
		t.Fatalf("monitoring record: %v", err)
	}
	if record.SOCount != 1 || record.ConsecutiveSOCount != 1 || record.TotalDifference != -8 {
		t.Fatalf("unexpected monitoring record: %+v", record)
	}
}

func TestCommitAllMatchingClearsWithoutMovements(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	if _, err := svc.StartOpname(ctx, "device-a", domain.OpnameModePartial); err != nil {
		t.Fatalf("start opname: %v", err)
	}
	if _, err := svc.UpsertOpnameLine(ctx, "device-a", domain.OpnameLineRequest{Code: "GRO01", CountedQty: 120}, false); err != nil {
		t.Fatalf("count line: %v", err)
	}
	if _, err := svc.UpsertOpnameLine(ctx, "device-a", domain.OpnameLineRequest{Code: "SNK02", CountedQty: 44}, false); err != nil {
		t.Fatalf("count line: %v", err)
	}

	resp, err := svc.CommitOpname(ctx, "device-a")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(resp.Movements) != 0 {
		t.Fatalf("matching counts must not produce movements, got %d", len(resp.Movements))
	}
	if resp.Summary.MatchingCount != 2 || resp.Summary.MismatchingCount != 0 {
		t.Fatalf("unexpected summary: %+v", resp.Summary)
	}
	if _, err := svc.LoadOpname(ctx, "device-a"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("session should be cleared, got %v", err)
	}
}

// failingItemRepo rejects movements for one item code, so a commit can be
// driven into a partial failure.
type failingItemRepo struct {
	*memory.Store
	failCode string
	armed    bool
}

func (r *failingItemRepo) AppendMovement(ctx context.Context, movement domain.StockMovement) (*domain.Item, error) {
	if r.armed && movement.ItemCode == r.failCode {
		return nil, fmt.Errorf("storage unavailable")
	}
	return r.Store.AppendMovement(ctx, movement)
}

func TestCommitPartialFailureKeepsFailedLines(t *testing.T) {
	repo := &failingItemRepo{Store: memory.NewSeeded(), failCode: "SNK01", armed: true}
	svc := New(repo, nil, time.Second, testThresholds(), zap.NewNop())
	ctx := adminCtx()

	if _, err := svc.StartOpname(ctx, "device-a", domain.OpnameModePartial); err != nil {
		t.Fatalf("start opname: %v", err)
	}
	if _, err := svc.UpsertOpnameLine(ctx, "device-a", domain.OpnameLineRequest{Code: "GRO03", CountedQty: 30}, false); err != nil {
		t.Fatalf("count line: %v", err)
	}
	if _, err := svc.UpsertOpnameLine(ctx, "device-a", domain.OpnameLineRequest{Code: "SNK01", CountedQty: 25}, false); err != nil {
		t.Fatalf("count line: %v", err)
	}

	_, err := svc.CommitOpname(ctx, "device-a")
	var partial *opname.PartialCommitError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialCommitError, got %v", err)
	}
	if len(partial.Applied) != 1 || len(partial.Failed) != 1 {
		t.Fatalf("expected 1 applied and 1 failed, got %d/%d", len(partial.Applied), len(partial.Failed))
	}
	if partial.Failed[0].Line.Code != "SNK01" {
		t.Fatalf("wrong failed line: %+v", partial.Failed[0])
	}

	// The applied adjustment stays applied.
	item, _ := repo.GetItemByCode(ctx, "GRO03")
	if item.Quantity != 30 {
		t.Fatalf("applied adjustment rolled back: %d", item.Quantity)
	}

	// Only the failed line survives as the draft, so a retry cannot
	// double-apply the successful one.
	session, err := svc.LoadOpname(ctx, "device-a")
	if err != nil {
		t.Fatalf("remaining draft: %v", err)
	}
	if len(session.Lines) != 1 || session.Lines[0].Code != "SNK01" {
		t.Fatalf("remaining draft wrong: %+v", session.Lines)
	}

	repo.armed = false
	resp, err := svc.CommitOpname(ctx, "device-a")
	if err != nil {
		t.Fatalf("retry commit: %v", err)
	}
	if len(resp.Movements) != 1 || resp.Movements[0].ItemCode != "SNK01" {
		t.Fatalf("retry should apply only the failed line: %+v", resp.Movements)
	}
	item, _ = repo.GetItemByCode(ctx, "GRO03")
	if item.Quantity != 30 {
		t.Fatalf("retry re-applied an already applied line: %d", item.Quantity)
	}
}

func TestMonitoringEscalationAndReset(t *testing.T) {
	svc, repo := newTestService()
	ctx := adminCtx()

	count := func(countedDelta int) {
		t.Helper()
		item, err := repo.GetItemByCode(ctx, "HHD01")
		if err != nil {
			t.Fatalf("get item: %v", err)
		}
		if _, err := svc.StartOpname(ctx, "device-a", domain.OpnameModePartial); err != nil {
			t.Fatalf("start opname: %v", err)
		}
		if _, err := svc.UpsertOpnameLine(ctx, "device-a", domain.OpnameLineRequest{Code: "HHD01", CountedQty: item.Quantity + countedDelta}, false); err != nil {
			t.Fatalf("count line: %v", err)
		}
		if _, err := svc.CommitOpname(ctx, "device-a"); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	count(-1)
	count(-1)
	status, err := svc.ItemMonitoringStatus(ctx, "HHD01")
	if err != nil || status != domain.MonitoringStatusWarning {
		t.Fatalf("expected warning after 2 consecutive discrepancies, got %q (%v)", status, err)
	}

	count(-1)
	status, _ = svc.ItemMonitoringStatus(ctx, "HHD01")
	if status != domain.MonitoringStatusCritical {
		t.Fatalf("expected critical after 3 consecutive discrepancies, got %q", status)
	}

	record, _ := repo.GetLatestMonitoringRecord(ctx, "HHD01")
	if record.ConsecutiveSOCount != 3 || record.SOCount != 3 {
		t.Fatalf("unexpected record after escalation: %+v", record)
	}

	// A matching count breaks the streak.
	count(0)
	record, _ = repo.GetLatestMonitoringRecord(ctx, "HHD01")
	if record.ConsecutiveSOCount != 0 {
		t.Fatalf("consecutive counter not reset: %+v", record)
	}
	status, _ = svc.ItemMonitoringStatus(ctx, "HHD01")
	if status != domain.MonitoringStatusNormal {
		t.Fatalf("expected normal after reset, got %q", status)
	}
}

func TestMonitoringValueThresholdEscalates(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	// DRY01 sells at 18900 cents; a deficit of 27 crosses the warning value
	// threshold of 500000 in a single session.
	if _, err := svc.ApplyMovement(ctx, "DRY01", domain.ApplyMovementRequest{
		Type: domain.MovementTypeIn, Quantity: 10, UnitPriceCents: 13600, Reason: "restock",
	}); err != nil {
		t.Fatalf("restock: %v", err)
	}
	if _, err := svc.StartOpname(ctx, "device-a", domain.OpnameModePartial); err != nil {
		t.Fatalf("start opname: %v", err)
	}
	if _, err := svc.UpsertOpnameLine(ctx, "device-a", domain.OpnameLineRequest{Code: "DRY01", CountedQty: 9}, false); err != nil {
		t.Fatalf("count line: %v", err)
	}
	if _, err := svc.CommitOpname(ctx, "device-a"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	status, err := svc.ItemMonitoringStatus(ctx, "DRY01")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != domain.MonitoringStatusWarning {
		t.Fatalf("expected warning from value threshold, got %q", status)
	}
}

func TestLookupItemResolvesCodeAndSKU(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	byCode, err := svc.LookupItem(ctx, "BEV01")
	if err != nil {
		t.Fatalf("lookup by code: %v", err)
	}
	bySKU, err := svc.LookupItem(ctx, "8990022001")
	if err != nil {
		t.Fatalf("lookup by sku: %v", err)
	}
	if byCode.Code != bySKU.Code {
		t.Fatalf("code and sku lookups disagree: %s vs %s", byCode.Code, bySKU.Code)
	}

	if _, err := svc.LookupItem(ctx, "NOPE99"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCancelOpnameDropsDraft(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	if _, err := svc.StartOpname(ctx, "device-a", domain.OpnameModePartial); err != nil {
		t.Fatalf("start opname: %v", err)
	}
	if err := svc.CancelOpname(ctx, "device-a"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.LoadOpname(ctx, "device-a"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected cleared session, got %v", err)
	}
	if err := svc.CancelOpname(ctx, "device-a"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("cancelling nothing should report not found, got %v", err)
	}
}
