package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"stokku/backend/internal/domain"
	"stokku/backend/internal/store"
	"stokku/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListActiveItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, COALESCE(sku,''), name, category, price_cents, cost_cents, quantity,
			reorder_level, COALESCE(supplier,''), active, created_at, updated_at
		FROM items
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 128)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListItemCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code FROM items ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := make([]string, 0, 256)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return codes, nil
}

func (s *Store) GetItemByCode(ctx context.Context, code string) (*domain.Item, error) {
	return s.getItem(ctx, `code = $1`, code)
}

func (s *Store) GetItemBySKUOrCode(ctx context.Context, value string) (*domain.Item, error) {
	return s.getItem(ctx, `(code = $1 OR sku = $1)`, value)
}

func (s *Store) getItem(ctx context.Context, where string, arg string) (*domain.Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT code, COALESCE(sku,''), name, category, price_cents, cost_cents, quantity,
			reorder_level, COALESCE(supplier,''), active, created_at, updated_at
		FROM items
		WHERE `+where, arg)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.Code == "" || item.Name == "" || item.PriceCents < 0 || item.CostCents < 0 {
		return nil, store.ErrInvalidInput
	}

	item.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (code, sku, name, category, price_cents, cost_cents, quantity,
			reorder_level, supplier, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,$7,$8,true,now(),now())
	`, item.Code, nullIfEmpty(item.SKU), item.Name, item.Category, item.PriceCents,
		item.CostCents, item.ReorderLevel, nullIfEmpty(item.Supplier))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateCode
		}
		return nil, err
	}

	return s.GetItemByCode(ctx, item.Code)
}

func (s *Store) UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.Code == "" || item.Name == "" || item.PriceCents < 0 || item.CostCents < 0 {
		return nil, store.ErrInvalidInput
	}

	// Quantity is deliberately absent from the SET list: only AppendMovement
	// writes it.
	res, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET sku = $2, name = $3, price_cents = $4, cost_cents = $5,
			reorder_level = $6, supplier = $7, active = $8, updated_at = now()
		WHERE code = $1
	`, item.Code, nullIfEmpty(item.SKU), item.Name, item.PriceCents, item.CostCents,
		item.ReorderLevel, nullIfEmpty(item.Supplier), item.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetItemByCode(ctx, item.Code)
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.Code, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) GetCategoryCode(ctx context.Context, name string) (string, error) {
	var code string
	err := s.db.QueryRowContext(ctx, `
		SELECT code FROM categories WHERE lower(name) = lower($1)
	`, strings.TrimSpace(name)).Scan(&code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", err
	}
	return code, nil
}

// AppendMovement inserts the ledger row and moves the item balance in one
// serializable transaction. The WHERE guard on the balance update makes the
// insufficient-stock check race-free even outside the single-writer
// assumption.
func (s *Store) AppendMovement(ctx context.Context, movement domain.StockMovement) (*domain.Item, error) {
	if movement.ItemCode == "" || movement.Quantity == 0 {
		return nil, store.ErrInvalidInput
	}
	if movement.ID == "" {
		movement.ID = xid.New("mv")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM items WHERE code = $1)
	`, movement.ItemCode).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE items
		SET quantity = quantity + $2, updated_at = now()
		WHERE code = $1 AND quantity + $2 >= 0
	`, movement.ItemCode, movement.Quantity)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrInsufficientStock
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, item_code, type, quantity, unit_price_cents,
			reason, reference, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, movement.ID, movement.ItemCode, movement.Type, movement.Quantity,
		movement.UnitPriceCents, movement.Reason, nullIfEmpty(movement.Reference),
		movement.CreatedBy, movement.CreatedAt)
	if err != nil {
		return nil, err
	}

	var item domain.Item
	row := tx.QueryRowContext(ctx, `
		SELECT code, COALESCE(sku,''), name, category, price_cents, cost_cents, quantity,
			reorder_level, COALESCE(supplier,''), active, created_at, updated_at
		FROM items
		WHERE code = $1
	`, movement.ItemCode)
	item, err = scanItem(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListMovements(ctx context.Context, itemCode string, from, to time.Time, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM items WHERE code = $1)
	`, itemCode).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	query := `
		SELECT id, item_code, type, quantity, unit_price_cents, reason,
			COALESCE(reference,''), created_by, created_at
		FROM stock_movements
		WHERE item_code = $1
	`
	args := []any{itemCode}
	if !from.IsZero() {
		args = append(args, from)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += ` AND created_at < $` + strconv.Itoa(len(args))
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var mv domain.StockMovement
		if err := rows.Scan(&mv.ID, &mv.ItemCode, &mv.Type, &mv.Quantity, &mv.UnitPriceCents,
			&mv.Reason, &mv.Reference, &mv.CreatedBy, &mv.CreatedAt); err != nil {
			return nil, err
		}
		mv.CreatedAt = mv.CreatedAt.UTC()
		movements = append(movements, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) GetActiveSession(ctx context.Context, deviceID string) (*domain.OpnameSession, error) {
	var session domain.OpnameSession
	var linesJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, mode, lines, last_view, created_at, updated_at
		FROM opname_sessions
		WHERE device_id = $1
	`, deviceID).Scan(&session.ID, &session.DeviceID, &session.Mode, &linesJSON,
		&session.LastView, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(linesJSON, &session.Lines); err != nil {
		return nil, err
	}
	session.CreatedAt = session.CreatedAt.UTC()
	session.UpdatedAt = session.UpdatedAt.UTC()
	return &session, nil
}

func (s *Store) SaveSession(ctx context.Context, session domain.OpnameSession) error {
	if session.ID == "" || session.DeviceID == "" {
		return store.ErrInvalidInput
	}
	if session.Lines == nil {
		session.Lines = []domain.OpnameLine{}
	}
	linesJSON, err := json.Marshal(session.Lines)
	if err != nil {
		return err
	}

	// One row per device, overwritten wholesale on every save. Redundant
	// saves of the same snapshot are idempotent.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO opname_sessions (id, device_id, mode, lines, last_view, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
		ON CONFLICT (device_id)
		DO UPDATE SET id = EXCLUDED.id, mode = EXCLUDED.mode, lines = EXCLUDED.lines,
			last_view = EXCLUDED.last_view, updated_at = now()
	`, session.ID, session.DeviceID, session.Mode, linesJSON, session.LastView, session.CreatedAt)
	return err
}

func (s *Store) ClearSession(ctx context.Context, deviceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM opname_sessions WHERE device_id = $1`, deviceID)
	return err
}

func (s *Store) GetLatestMonitoringRecord(ctx context.Context, itemCode string) (*domain.MonitoringRecord, error) {
	var record domain.MonitoringRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT item_code, date, so_count, total_difference, total_value_difference_cents,
			consecutive_so_count, status, COALESCE(notes,''), updated_at
		FROM so_monitoring
		WHERE item_code = $1
		ORDER BY date DESC
		LIMIT 1
	`, itemCode).Scan(&record.ItemCode, &record.Date, &record.SOCount, &record.TotalDifference,
		&record.TotalValueDifferenceCents, &record.ConsecutiveSOCount, &record.Status,
		&record.Notes, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	record.UpdatedAt = record.UpdatedAt.UTC()
	return &record, nil
}

func (s *Store) UpsertMonitoringRecord(ctx context.Context, record domain.MonitoringRecord) error {
	if record.ItemCode == "" || record.Date == "" {
		return store.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO so_monitoring (item_code, date, so_count, total_difference,
			total_value_difference_cents, consecutive_so_count, status, notes, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		ON CONFLICT (item_code, date)
		DO UPDATE SET so_count = EXCLUDED.so_count,
			total_difference = EXCLUDED.total_difference,
			total_value_difference_cents = EXCLUDED.total_value_difference_cents,
			consecutive_so_count = EXCLUDED.consecutive_so_count,
			status = EXCLUDED.status,
			notes = EXCLUDED.notes,
			updated_at = now()
	`, record.ItemCode, record.Date, record.SOCount, record.TotalDifference,
		record.TotalValueDifferenceCents, record.ConsecutiveSOCount, record.Status,
		nullIfEmpty(record.Notes))
	return err
}

func (s *Store) ListMonitoringRecords(ctx context.Context, date string, limit int) ([]domain.MonitoringRecord, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_code, date, so_count, total_difference, total_value_difference_cents,
			consecutive_so_count, status, COALESCE(notes,''), updated_at
		FROM so_monitoring
		WHERE ($1 = '' OR date = $1)
		ORDER BY date DESC, item_code
		LIMIT $2
	`, date, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.MonitoringRecord, 0, limit)
	for rows.Next() {
		var record domain.MonitoringRecord
		if err := rows.Scan(&record.ItemCode, &record.Date, &record.SOCount, &record.TotalDifference,
			&record.TotalValueDifferenceCents, &record.ConsecutiveSOCount, &record.Status,
			&record.Notes, &record.UpdatedAt); err != nil {
			return nil, err
		}
		record.UpdatedAt = record.UpdatedAt.UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		WHERE username = lower($1)
	`, strings.TrimSpace(username)).Scan(&user.Username, &user.Password, &user.Role,
		&user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.Item, error) {
	var item domain.Item
	err := row.Scan(&item.Code, &item.SKU, &item.Name, &item.Category, &item.PriceCents,
		&item.CostCents, &item.Quantity, &item.ReorderLevel, &item.Supplier, &item.Active,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return domain.Item{}, err
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
