package store

import (
	"context"
	"errors"
	"time"

	"stokku/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateCode     = errors.New("duplicate item code")
	ErrInvalidInput      = errors.New("invalid input")
)

// Repository is the persistence boundary for the stock ledger and opname
// engine. Implementations must make AppendMovement atomic: the movement row
// and the item balance either both land or neither does, even if the process
// is killed in between. Any error that is not one of the sentinels above is a
// transient storage error and safe for the caller to retry.
type Repository interface {
	ListActiveItems(ctx context.Context) ([]domain.Item, error)
	ListItemCodes(ctx context.Context) ([]string, error)
	GetItemByCode(ctx context.Context, code string) (*domain.Item, error)
	GetItemBySKUOrCode(ctx context.Context, value string) (*domain.Item, error)
	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error)

	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategoryCode(ctx context.Context, name string) (string, error)

	// AppendMovement inserts one immutable movement and moves the item
	// balance by movement.Quantity in the same transaction. It returns the
	// updated item. ErrInsufficientStock is returned, with no mutation, when
	// the new balance would be negative.
	AppendMovement(ctx context.Context, movement domain.StockMovement) (*domain.Item, error)
	ListMovements(ctx context.Context, itemCode string, from, to time.Time, limit int) ([]domain.StockMovement, error)

	GetActiveSession(ctx context.Context, deviceID string) (*domain.OpnameSession, error)
	SaveSession(ctx context.Context, session domain.OpnameSession) error
	ClearSession(ctx context.Context, deviceID string) error

	GetLatestMonitoringRecord(ctx context.Context, itemCode string) (*domain.MonitoringRecord, error)
	UpsertMonitoringRecord(ctx context.Context, record domain.MonitoringRecord) error
	ListMonitoringRecords(ctx context.Context, date string, limit int) ([]domain.MonitoringRecord, error)

	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
}
