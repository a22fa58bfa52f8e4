package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stokku/backend/internal/domain"
	"stokku/backend/internal/store"
	"stokku/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	items            map[string]domain.Item
	movementsByItem  map[string][]domain.StockMovement
	sessionsByDevice map[string]domain.OpnameSession
	monitoringByItem map[string][]domain.MonitoringRecord
	categoriesByName map[string]domain.Category
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		items:            make(map[string]domain.Item),
		movementsByItem:  make(map[string][]domain.StockMovement),
		sessionsByDevice: make(map[string]domain.OpnameSession),
		monitoringByItem: make(map[string][]domain.MonitoringRecord),
		categoriesByName: make(map[string]domain.Category),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning. These credentials are never used in production (the backend uses
// PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()

	categories := []domain.Category{
		{Code: "GRO", Name: "grocery"},
		{Code: "BEV", Name: "beverage"},
		{Code: "SNK", Name: "snack"},
		{Code: "DRY", Name: "dairy"},
		{Code: "HHD", Name: "household"},
	}
	for _, c := range categories {
		s.categoriesByName[c.Name] = c
	}

	now := time.Now().UTC()
	items := []domain.Item{
		{Code: "GRO01", SKU: "8990011001", Name: "Mie Goreng Instan", Category: "grocery", PriceCents: 3500, CostCents: 2700, ReorderLevel: 24, Supplier: "PT Sumber Pangan"},
		{Code: "GRO02", SKU: "8990011002", Name: "Telur 10 Butir", Category: "grocery", PriceCents: 26500, CostCents: 23000, ReorderLevel: 10, Supplier: "PT Sumber Pangan"},
		{Code: "GRO03", SKU: "8990011003", Name: "Gula 1kg", Category: "grocery", PriceCents: 17400, CostCents: 15300, ReorderLevel: 12, Supplier: "PT Sumber Pangan"},
		{Code: "BEV01", SKU: "8990022001", Name: "Kopi Sachet", Category: "beverage", PriceCents: 2600, CostCents: 1700, ReorderLevel: 48, Supplier: "CV Minuman Segar"},
		{Code: "BEV02", SKU: "8990022002", Name: "Teh Celup", Category: "beverage", PriceCents: 9800, CostCents: 7200, ReorderLevel: 20, Supplier: "CV Minuman Segar"},
		{Code: "BEV03", SKU: "8990022003", Name: "Air Mineral 600ml", Category: "beverage", PriceCents: 3900, CostCents: 3200, ReorderLevel: 60, Supplier: "CV Minuman Segar"},
		{Code: "SNK01", SKU: "8990033001", Name: "Keripik Singkong", Category: "snack", PriceCents: 12800, CostCents: 8000, ReorderLevel: 16, Supplier: "UD Camilan Jaya"},
		{Code: "SNK02", SKU: "8990033002", Name: "Coklat Batang", Category: "snack", PriceCents: 8600, CostCents: 5600, ReorderLevel: 16, Supplier: "UD Camilan Jaya"},
		{Code: "DRY01", SKU: "8990044001", Name: "Susu UHT 1L", Category: "dairy", PriceCents: 18900, CostCents: 13600, ReorderLevel: 12, Supplier: "PT Susu Nusantara"},
		{Code: "HHD01", SKU: "8990055001", Name: "Sabun Mandi", Category: "household", PriceCents: 7400, CostCents: 5000, ReorderLevel: 18, Supplier: "PT Rumah Bersih"},
		{Code: "HHD02", SKU: "8990055002", Name: "Shampoo Sachet", Category: "household", PriceCents: 3200, CostCents: 2100, ReorderLevel: 36, Supplier: "PT Rumah Bersih"},
	}
	seedStock := map[string]int{
		"GRO01": 120, "GRO02": 40, "GRO03": 35,
		"BEV01": 200, "BEV02": 48, "BEV03": 150,
		"SNK01": 30, "SNK02": 44,
		"DRY01": 26,
		"HHD01": 52, "HHD02": 90,
	}
	for _, item := range items {
		item.Active = true
		item.CreatedAt = now
		item.UpdatedAt = now
		s.items[item.Code] = item
	}
	// Seed stock through the ledger so the balance invariant holds from the
	// first movement on.
	ctx := context.Background()
	for code, qty := range seedStock {
		item := s.items[code]
		_, err := s.AppendMovement(ctx, domain.StockMovement{
			ID:             xid.New("mv"),
			ItemCode:       code,
			Type:           domain.MovementTypeIn,
			Quantity:       qty,
			UnitPriceCents: item.CostCents,
			Reason:         "initial stock",
			CreatedBy:      "seed",
			CreatedAt:      now,
		})
		if err != nil {
			log.Fatalf("[memory-store] failed to seed stock for %s: %v", code, err)
		}
	}

	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) ListActiveItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.items))
	for _, item := range s.items {
		if item.Active {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Category != items[j].Category {
			return items[i].Category < items[j].Category
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

func (s *Store) ListItemCodes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]string, 0, len(s.items))
	for code := range s.items {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

func (s *Store) GetItemByCode(_ context.Context, code string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := item
	return &found, nil
}

func (s *Store) GetItemBySKUOrCode(_ context.Context, value string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if item, ok := s.items[value]; ok {
		found := item
		return &found, nil
	}
	for _, item := range s.items {
		if item.SKU != "" && item.SKU == value {
			found := item
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	if item.Code == "" || item.Name == "" || item.PriceCents < 0 || item.CostCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.Code]; exists {
		return nil, store.ErrDuplicateCode
	}

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	item.Quantity = 0
	item.Active = true
	s.items[item.Code] = item

	created := item
	return &created, nil
}

func (s *Store) UpdateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	if item.Code == "" || item.Name == "" || item.PriceCents < 0 || item.CostCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[item.Code]
	if !ok {
		return nil, store.ErrNotFound
	}

	// Quantity is ledger-owned: attribute updates never touch it.
	item.Quantity = existing.Quantity
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = time.Now().UTC()
	s.items[item.Code] = item

	updated := item
	return &updated, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categoriesByName))
	for _, c := range s.categoriesByName {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

func (s *Store) GetCategoryCode(_ context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categoriesByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", store.ErrNotFound
	}
	return c.Code, nil
}

func (s *Store) AppendMovement(_ context.Context, movement domain.StockMovement) (*domain.Item, error) {
	if movement.ItemCode == "" || movement.Quantity == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[movement.ItemCode]
	if !ok {
		return nil, store.ErrNotFound
	}

	newBalance := item.Quantity + movement.Quantity
	if newBalance < 0 {
		return nil, store.ErrInsufficientStock
	}

	if movement.ID == "" {
		movement.ID = xid.New("mv")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}

	// Single critical section: the movement append and the balance update
	// are one unit, mirroring the postgres transaction.
	s.movementsByItem[movement.ItemCode] = append(s.movementsByItem[movement.ItemCode], movement)
	item.Quantity = newBalance
	item.UpdatedAt = time.Now().UTC()
	s.items[movement.ItemCode] = item

	updated := item
	return &updated, nil
}

func (s *Store) ListMovements(_ context.Context, itemCode string, from, to time.Time, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.items[itemCode]; !ok {
		return nil, store.ErrNotFound
	}

	history := s.movementsByItem[itemCode]
	movements := make([]domain.StockMovement, 0, limit)
	// Newest first.
	for i := len(history) - 1; i >= 0 && len(movements) < limit; i-- {
		mv := history[i]
		if !from.IsZero() && mv.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !mv.CreatedAt.Before(to) {
			continue
		}
		movements = append(movements, mv)
	}
	return movements, nil
}

func (s *Store) GetActiveSession(_ context.Context, deviceID string) (*domain.OpnameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessionsByDevice[deviceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := session
	found.Lines = append([]domain.OpnameLine(nil), session.Lines...)
	return &found, nil
}

func (s *Store) SaveSession(_ context.Context, session domain.OpnameSession) error {
	if session.ID == "" || session.DeviceID == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Whole-snapshot overwrite, idempotent by design: redundant saves of the
	// same draft are harmless and last write wins.
	session.Lines = append([]domain.OpnameLine(nil), session.Lines...)
	session.UpdatedAt = time.Now().UTC()
	s.sessionsByDevice[session.DeviceID] = session
	return nil
}

func (s *Store) ClearSession(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessionsByDevice, deviceID)
	return nil
}

func (s *Store) GetLatestMonitoringRecord(_ context.Context, itemCode string) (*domain.MonitoringRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.monitoringByItem[itemCode]
	if len(records) == 0 {
		return nil, store.ErrNotFound
	}
	latest := records[len(records)-1]
	return &latest, nil
}

func (s *Store) UpsertMonitoringRecord(_ context.Context, record domain.MonitoringRecord) error {
	if record.ItemCode == "" || record.Date == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record.UpdatedAt = time.Now().UTC()
	records := s.monitoringByItem[record.ItemCode]
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Date == record.Date {
			records[i] = record
			s.monitoringByItem[record.ItemCode] = records
			return nil
		}
	}
	s.monitoringByItem[record.ItemCode] = append(records, record)
	return nil
}

func (s *Store) ListMonitoringRecords(_ context.Context, date string, limit int) ([]domain.MonitoringRecord, error) {
	if limit < 1 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.MonitoringRecord, 0, limit)
	for _, history := range s.monitoringByItem {
		for _, record := range history {
			if date != "" && record.Date != date {
				continue
			}
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date > records[j].Date
		}
		return records[i].ItemCode < records[j].ItemCode
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := user
	return &found, nil
}
