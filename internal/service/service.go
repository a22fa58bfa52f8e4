package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"stokku/backend/internal/allocator"
	"stokku/backend/internal/cache"
	"stokku/backend/internal/config"
	"stokku/backend/internal/domain"
	"stokku/backend/internal/opname"
	"stokku/backend/internal/store"
	"stokku/backend/internal/xid"
)

var (
	// ErrSessionActive is returned when starting an opname while a draft for
	// the same device is still open; the operator must resume or cancel it.
	ErrSessionActive = errors.New("an opname session is already active")
	// ErrLineExists is returned when a partial-opname scan hits an item that
	// was already counted and the caller did not ask to overwrite.
	ErrLineExists = errors.New("item already counted in this session")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	lookup     cache.ItemLookupCache
	lookupTTL  time.Duration
	thresholds config.MonitoringThresholds
	logger     *zap.Logger
}

func New(repo store.Repository, lookup cache.ItemLookupCache, lookupTTL time.Duration, thresholds config.MonitoringThresholds, logger *zap.Logger) *Service {
	if lookup == nil {
		lookup = cache.NoopItemLookupCache{}
	}
	if lookupTTL <= 0 {
		lookupTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:       repo,
		lookup:     lookup,
		lookupTTL:  lookupTTL,
		thresholds: thresholds,
		logger:     logger,
	}
}

func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.repo.ListActiveItems(ctx)
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

// LookupItem resolves a scanned barcode or a manually entered code. The two
// are treated identically: item code first, SKU second, cached briefly since
// partial counting resolves the same items repeatedly.
func (s *Service) LookupItem(ctx context.Context, value string) (domain.Item, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.Item{}, store.ErrInvalidInput
	}

	if cached, ok, err := s.lookup.Get(ctx, value); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		s.logger.Warn("item lookup cache read failed", zap.String("key", value), zap.Error(err))
	}

	item, err := s.repo.GetItemBySKUOrCode(ctx, value)
	if err != nil {
		return domain.Item{}, err
	}

	if err := s.lookup.Set(ctx, value, item, s.lookupTTL); err != nil {
		s.logger.Warn("item lookup cache write failed", zap.String("key", value), zap.Error(err))
	}
	return *item, nil
}

// CreateItem allocates a code for the item's category and inserts it. The
// allocator only suggests; the storage unique index decides. A duplicate-code
// conflict is retried once with a fresh allocation before surfacing, so the
// operator sees conflicts only when two retries in a row lose the race.
func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.Item, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Item{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.TrimSpace(req.SKU)
	req.Supplier = strings.TrimSpace(req.Supplier)
	if req.Name == "" || req.PriceCents < 0 || req.CostCents < 0 || req.ReorderLevel < 0 || req.InitialStock < 0 {
		return domain.Item{}, store.ErrInvalidInput
	}

	categoryCode, err := s.repo.GetCategoryCode(ctx, req.CategoryName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Item{}, fmt.Errorf("%w: unknown category %q", allocator.ErrInvalidCategory, req.CategoryName)
		}
		return domain.Item{}, err
	}

	var created *domain.Item
	for attempt := 0; attempt < 2; attempt++ {
		codes, err := s.repo.ListItemCodes(ctx)
		if err != nil {
			return domain.Item{}, err
		}
		code, err := allocator.Allocate(categoryCode, codes)
		if err != nil {
			return domain.Item{}, err
		}

		created, err = s.repo.CreateItem(ctx, domain.Item{
			Code:         code,
			SKU:          req.SKU,
			Name:         req.Name,
			Category:     strings.ToLower(strings.TrimSpace(req.CategoryName)),
			PriceCents:   req.PriceCents,
			CostCents:    req.CostCents,
			ReorderLevel: req.ReorderLevel,
			Supplier:     req.Supplier,
		})
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrDuplicateCode) && attempt == 0 {
			s.logger.Info("item code collided, re-allocating", zap.String("code", code))
			continue
		}
		return domain.Item{}, err
	}

	s.logger.Info("item created",
		zap.String("code", created.Code),
		zap.String("category", created.Category),
		zap.String("by", actor.Username))

	if req.InitialStock > 0 {
		resp, err := s.ApplyMovement(ctx, created.Code, domain.ApplyMovementRequest{
			Type:           domain.MovementTypeIn,
			Quantity:       req.InitialStock,
			UnitPriceCents: req.CostCents,
			Reason:         "initial stock",
		})
		if err != nil {
			return domain.Item{}, err
		}
		return resp.Item, nil
	}

	return *created, nil
}

func (s *Service) UpdateItem(ctx context.Context, code string, req domain.ItemUpdateRequest) (domain.Item, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Item{}, fmt.Errorf("admin role required")
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Item{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetItemByCode(ctx, code)
	if err != nil {
		return domain.Item{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Item{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.SKU != nil {
		updated.SKU = strings.TrimSpace(*req.SKU)
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.Item{}, store.ErrInvalidInput
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.CostCents != nil {
		if *req.CostCents < 0 {
			return domain.Item{}, store.ErrInvalidInput
		}
		updated.CostCents = *req.CostCents
	}
	if req.ReorderLevel != nil {
		if *req.ReorderLevel < 0 {
			return domain.Item{}, store.ErrInvalidInput
		}
		updated.ReorderLevel = *req.ReorderLevel
	}
	if req.Supplier != nil {
		updated.Supplier = strings.TrimSpace(*req.Supplier)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateItem(ctx, updated)
	if err != nil {
		return domain.Item{}, err
	}

	s.invalidateLookup(ctx, existing.Code, existing.SKU, saved.SKU)
	s.logger.Info("item updated", zap.String("code", saved.Code), zap.String("by", actor.Username))
	return *saved, nil
}

// ApplyMovement appends one immutable ledger movement and returns the item
// with its new balance. The request quantity is a positive magnitude for in
// and out; the type determines the sign. Adjustments carry their own sign.
func (s *Service) ApplyMovement(ctx context.Context, code string, req domain.ApplyMovementRequest) (domain.ApplyMovementResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.ApplyMovementResponse{}, fmt.Errorf("admin role required")
	}

	code = strings.TrimSpace(code)
	req.Type = strings.ToLower(strings.TrimSpace(req.Type))
	req.Reason = strings.TrimSpace(req.Reason)
	if code == "" || req.Reason == "" || req.UnitPriceCents < 0 {
		return domain.ApplyMovementResponse{}, store.ErrInvalidInput
	}

	var signed int
	switch req.Type {
	case domain.MovementTypeIn:
		if req.Quantity < 1 {
			return domain.ApplyMovementResponse{}, store.ErrInvalidInput
		}
		signed = req.Quantity
	case domain.MovementTypeOut:
		if req.Quantity < 1 {
			return domain.ApplyMovementResponse{}, store.ErrInvalidInput
		}
		signed = -req.Quantity
	case domain.MovementTypeAdjustment:
		if req.Quantity == 0 {
			return domain.ApplyMovementResponse{}, store.ErrInvalidInput
		}
		signed = req.Quantity
	default:
		return domain.ApplyMovementResponse{}, store.ErrInvalidInput
	}

	movement := domain.StockMovement{
		ID:             xid.New("mv"),
		ItemCode:       code,
		Type:           req.Type,
		Quantity:       signed,
		UnitPriceCents: req.UnitPriceCents,
		Reason:         req.Reason,
		Reference:      strings.TrimSpace(req.Reference),
		CreatedBy:      actor.Username,
		CreatedAt:      time.Now().UTC(),
	}

	item, err := s.repo.AppendMovement(ctx, movement)
	if err != nil {
		return domain.ApplyMovementResponse{}, err
	}

	s.invalidateLookup(ctx, item.Code, item.SKU)
	s.logger.Info("movement applied",
		zap.String("item", item.Code),
		zap.String("type", movement.Type),
		zap.Int("quantity", movement.Quantity),
		zap.Int("balance", item.Quantity),
		zap.String("by", actor.Username))

	return domain.ApplyMovementResponse{Item: *item, Movement: movement}, nil
}

func (s *Service) ListMovements(ctx context.Context, code string, from, to time.Time, limit int) ([]domain.StockMovement, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListMovements(ctx, code, from, to, limit)
}

// StartOpname opens a new count session for the device. A grand opname
// pre-loads every active item with counted quantity 0; an uncounted line
// therefore reads as a full deficit until the operator enters a real count.
func (s *Service) StartOpname(ctx context.Context, deviceID string, mode string) (domain.OpnameSession, error) {
	deviceID = strings.TrimSpace(deviceID)
	mode = strings.ToLower(strings.TrimSpace(mode))
	if deviceID == "" || (mode != domain.OpnameModePartial && mode != domain.OpnameModeGrand) {
		return domain.OpnameSession{}, store.ErrInvalidInput
	}

	if _, err := s.repo.GetActiveSession(ctx, deviceID); err == nil {
		return domain.OpnameSession{}, ErrSessionActive
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.OpnameSession{}, err
	}

	lines := []domain.OpnameLine{}
	if mode == domain.OpnameModeGrand {
		items, err := s.repo.ListActiveItems(ctx)
		if err != nil {
			return domain.OpnameSession{}, err
		}
		lines = make([]domain.OpnameLine, 0, len(items))
		for _, item := range items {
			lines = append(lines, domain.OpnameLine{
				Code:           item.Code,
				Name:           item.Name,
				SKU:            item.SKU,
				Category:       item.Category,
				SystemQty:      item.Quantity,
				CountedQty:     0,
				UnitPriceCents: item.PriceCents,
			})
		}
		lines = opname.SortLines(lines)
	}

	now := time.Now().UTC()
	session := domain.OpnameSession{
		ID:        xid.New("so"),
		DeviceID:  deviceID,
		Mode:      mode,
		Lines:     lines,
		LastView:  domain.OpnameViewCount,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.SaveSession(ctx, session); err != nil {
		return domain.OpnameSession{}, err
	}

	s.logger.Info("opname session started",
		zap.String("session", session.ID),
		zap.String("device", deviceID),
		zap.String("mode", mode),
		zap.Int("lines", len(lines)))
	return session, nil
}

func (s *Service) LoadOpname(ctx context.Context, deviceID string) (domain.OpnameSession, error) {
	session, err := s.repo.GetActiveSession(ctx, strings.TrimSpace(deviceID))
	if err != nil {
		return domain.OpnameSession{}, err
	}
	return *session, nil
}

// SaveOpnameDraft overwrites the session's line list and resume marker with
// the caller's snapshot. Debouncing belongs to the caller; this method only
// guarantees idempotent last-write-wins persistence.
func (s *Service) SaveOpnameDraft(ctx context.Context, deviceID string, req domain.OpnameDraftRequest) (domain.OpnameSession, error) {
	session, err := s.repo.GetActiveSession(ctx, strings.TrimSpace(deviceID))
	if err != nil {
		return domain.OpnameSession{}, err
	}

	for _, line := range req.Lines {
		if strings.TrimSpace(line.Code) == "" || line.CountedQty < 0 {
			return domain.OpnameSession{}, store.ErrInvalidInput
		}
	}
	if req.LastView != "" && req.LastView != domain.OpnameViewCount && req.LastView != domain.OpnameViewComparison {
		return domain.OpnameSession{}, store.ErrInvalidInput
	}

	session.Lines = req.Lines
	if req.LastView != "" {
		session.LastView = req.LastView
	}
	session.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveSession(ctx, *session); err != nil {
		return domain.OpnameSession{}, err
	}
	return *session, nil
}

// UpsertOpnameLine adds or updates one counted line, resolving the item by
// code or SKU. In a partial opname, re-adding an already counted item
// requires overwrite=true so the operator explicitly chooses between
// replacing the earlier count and cancelling; grand-mode lines are pre-loaded
// and always update in place.
func (s *Service) UpsertOpnameLine(ctx context.Context, deviceID string, req domain.OpnameLineRequest, overwrite bool) (domain.OpnameSession, error) {
	session, err := s.repo.GetActiveSession(ctx, strings.TrimSpace(deviceID))
	if err != nil {
		return domain.OpnameSession{}, err
	}
	if req.CountedQty < 0 {
		return domain.OpnameSession{}, store.ErrInvalidInput
	}

	item, err := s.LookupItem(ctx, req.Code)
	if err != nil {
		return domain.OpnameSession{}, err
	}

	for i, line := range session.Lines {
		if line.Code != item.Code {
			continue
		}
		if session.Mode == domain.OpnameModePartial && !overwrite {
			return domain.OpnameSession{}, ErrLineExists
		}
		// Overwrite replaces the counted quantity; the system snapshot from
		// the first scan is kept so the whole session reconciles against one
		// point in time per line.
		session.Lines[i].CountedQty = req.CountedQty
		session.UpdatedAt = time.Now().UTC()
		if err := s.repo.SaveSession(ctx, *session); err != nil {
			return domain.OpnameSession{}, err
		}
		return *session, nil
	}

	if session.Mode == domain.OpnameModeGrand {
		// A grand session covers all active items; an unknown line here means
		// the item was created after the session started.
		return domain.OpnameSession{}, store.ErrNotFound
	}

	session.Lines = append(session.Lines, domain.OpnameLine{
		Code:           item.Code,
		Name:           item.Name,
		SKU:            item.SKU,
		Category:       item.Category,
		SystemQty:      item.Quantity,
		CountedQty:     req.CountedQty,
		UnitPriceCents: item.PriceCents,
	})
	session.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveSession(ctx, *session); err != nil {
		return domain.OpnameSession{}, err
	}
	return *session, nil
}

// CancelOpname drops the draft on explicit operator request. This and a
// successful commit are the only paths that clear a session.
func (s *Service) CancelOpname(ctx context.Context, deviceID string) error {
	session, err := s.repo.GetActiveSession(ctx, strings.TrimSpace(deviceID))
	if err != nil {
		return err
	}
	if err := s.repo.ClearSession(ctx, session.DeviceID); err != nil {
		return err
	}
	s.logger.Info("opname session cancelled",
		zap.String("session", session.ID),
		zap.String("device", session.DeviceID))
	return nil
}

func (s *Service) OpnameSummary(ctx context.Context, deviceID string) (domain.OpnameSummary, error) {
	session, err := s.repo.GetActiveSession(ctx, strings.TrimSpace(deviceID))
	if err != nil {
		return domain.OpnameSummary{}, err
	}
	return opname.Summarize(session.Lines), nil
}

func (s *Service) OpnameReport(ctx context.Context, deviceID string) (string, error) {
	session, err := s.repo.GetActiveSession(ctx, strings.TrimSpace(deviceID))
	if err != nil {
		return "", err
	}
	return opname.RenderReport(*session), nil
}

// CommitOpname turns counted quantities into ledger truth. Lines are
// processed sequentially in the sort-contract order: each nonzero difference
// becomes one adjustment movement referencing the session; matched lines
// produce no movement but still reset the item's consecutive-discrepancy
// counter. Applied movements are never rolled back. If any line fails, the
// failed lines are saved back as the remaining draft and a
// PartialCommitError reports both halves so only the failures are retried.
func (s *Service) CommitOpname(ctx context.Context, deviceID string) (domain.OpnameCommitResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.OpnameCommitResponse{}, fmt.Errorf("admin role required")
	}

	session, err := s.repo.GetActiveSession(ctx, strings.TrimSpace(deviceID))
	if err != nil {
		return domain.OpnameCommitResponse{}, err
	}

	lines := opname.SortLines(session.Lines)
	summary := opname.Summarize(lines)
	today := time.Now().UTC().Format("2006-01-02")

	applied := make([]domain.StockMovement, 0, summary.MismatchingCount)
	failed := make([]opname.FailedLine, 0)

	for _, line := range lines {
		diff := line.Difference()
		if diff == 0 {
			// Counted and matched: no movement, but the match resets the
			// escalation counter.
			if err := s.resetMonitoring(ctx, line.Code, today); err != nil {
				s.logger.Warn("monitoring reset failed", zap.String("item", line.Code), zap.Error(err))
			}
			continue
		}

		movement := domain.StockMovement{
			ID:             xid.New("mv"),
			ItemCode:       line.Code,
			Type:           domain.MovementTypeAdjustment,
			Quantity:       diff,
			UnitPriceCents: line.UnitPriceCents,
			Reason:         domain.OpnameAdjustmentReason,
			Reference:      session.ID,
			CreatedBy:      actor.Username,
			CreatedAt:      time.Now().UTC(),
		}
		if _, err := s.repo.AppendMovement(ctx, movement); err != nil {
			failed = append(failed, opname.FailedLine{Line: line, Reason: err.Error()})
			s.logger.Warn("opname adjustment failed",
				zap.String("session", session.ID),
				zap.String("item", line.Code),
				zap.Error(err))
			continue
		}
		applied = append(applied, movement)
		s.invalidateLookup(ctx, line.Code, line.SKU)

		if err := s.recordDiscrepancy(ctx, line, today); err != nil {
			s.logger.Warn("monitoring record failed", zap.String("item", line.Code), zap.Error(err))
		}
	}

	if len(failed) > 0 {
		remaining := make([]domain.OpnameLine, 0, len(failed))
		for _, f := range failed {
			remaining = append(remaining, f.Line)
		}
		session.Lines = remaining
		session.UpdatedAt = time.Now().UTC()
		if err := s.repo.SaveSession(ctx, *session); err != nil {
			s.logger.Error("failed to save remaining opname draft", zap.String("session", session.ID), zap.Error(err))
		}
		return domain.OpnameCommitResponse{}, &opname.PartialCommitError{
			SessionID: session.ID,
			Applied:   applied,
			Failed:    failed,
		}
	}

	if err := s.repo.ClearSession(ctx, session.DeviceID); err != nil {
		return domain.OpnameCommitResponse{}, err
	}

	s.logger.Info("opname session committed",
		zap.String("session", session.ID),
		zap.Int("movements", len(applied)),
		zap.Int("matching", summary.MatchingCount),
		zap.Int("mismatching", summary.MismatchingCount))

	return domain.OpnameCommitResponse{
		SessionID: session.ID,
		Movements: applied,
		Summary:   summary,
	}, nil
}

func (s *Service) ListMonitoringRecords(ctx context.Context, date string, limit int) ([]domain.MonitoringRecord, error) {
	return s.repo.ListMonitoringRecords(ctx, strings.TrimSpace(date), limit)
}

// ItemMonitoringStatus reports the current escalation status for an item.
// Items with no recorded discrepancies are normal.
func (s *Service) ItemMonitoringStatus(ctx context.Context, code string) (string, error) {
	record, err := s.repo.GetLatestMonitoringRecord(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.MonitoringStatusNormal, nil
		}
		return "", err
	}
	return record.Status, nil
}

// recordDiscrepancy folds one nonzero difference into the item's monitoring
// record for the day. The consecutive counter carries over from the item's
// latest record regardless of date.
func (s *Service) recordDiscrepancy(ctx context.Context, line domain.OpnameLine, date string) error {
	diff := line.Difference()
	valueDiff := int64(diff) * line.UnitPriceCents

	record := domain.MonitoringRecord{ItemCode: line.Code, Date: date}
	latest, err := s.repo.GetLatestMonitoringRecord(ctx, line.Code)
	switch {
	case err == nil && latest.Date == date:
		record = *latest
	case err == nil:
		record.ConsecutiveSOCount = latest.ConsecutiveSOCount
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	record.SOCount++
	record.TotalDifference += diff
	record.TotalValueDifferenceCents += valueDiff
	record.ConsecutiveSOCount++
	record.Status = s.statusFor(record.ConsecutiveSOCount, record.TotalValueDifferenceCents)
	return s.repo.UpsertMonitoringRecord(ctx, record)
}

// resetMonitoring zeroes the consecutive counter after a matching count. An
// item with no history needs nothing.
func (s *Service) resetMonitoring(ctx context.Context, itemCode string, date string) error {
	latest, err := s.repo.GetLatestMonitoringRecord(ctx, itemCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if latest.ConsecutiveSOCount == 0 {
		return nil
	}

	record := *latest
	if latest.Date != date {
		record = domain.MonitoringRecord{ItemCode: itemCode, Date: date}
	}
	record.ConsecutiveSOCount = 0
	record.Status = s.statusFor(0, record.TotalValueDifferenceCents)
	return s.repo.UpsertMonitoringRecord(ctx, record)
}

func (s *Service) statusFor(consecutive int, valueDiffCents int64) string {
	abs := valueDiffCents
	if abs < 0 {
		abs = -abs
	}
	switch {
	case consecutive >= s.thresholds.CritConsecutive || abs >= s.thresholds.CritValueCents:
		return domain.MonitoringStatusCritical
	case consecutive >= s.thresholds.WarnConsecutive || abs >= s.thresholds.WarnValueCents:
		return domain.MonitoringStatusWarning
	default:
		return domain.MonitoringStatusNormal
	}
}

func (s *Service) invalidateLookup(ctx context.Context, keys ...string) {
	filtered := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.TrimSpace(key) != "" {
			filtered = append(filtered, key)
		}
	}
	if len(filtered) == 0 {
		return
	}
	if err := s.lookup.Invalidate(ctx, filtered...); err != nil {
		s.logger.Warn("item lookup cache invalidation failed", zap.Strings("keys", filtered), zap.Error(err))
	}
}
