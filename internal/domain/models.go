package domain

import "time"

// Item is an inventory item. Quantity is on-hand stock and is never written
// directly: it always equals the net sum of ledger movements applied to the
// item since creation.
type Item struct {
	Code         string    `json:"code"`
	SKU          string    `json:"sku,omitempty"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	PriceCents   int64     `json:"price_cents"`
	CostCents    int64     `json:"cost_cents"`
	Quantity     int       `json:"quantity"`
	ReorderLevel int       `json:"reorder_level"`
	Supplier     string    `json:"supplier,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ItemCreateRequest struct {
	Name         string `json:"name"`
	CategoryName string `json:"category_name"`
	SKU          string `json:"sku,omitempty"`
	PriceCents   int64  `json:"price_cents"`
	CostCents    int64  `json:"cost_cents"`
	ReorderLevel int    `json:"reorder_level"`
	Supplier     string `json:"supplier,omitempty"`
	InitialStock int    `json:"initial_stock"`
}

type ItemUpdateRequest struct {
	Name         *string `json:"name,omitempty"`
	SKU          *string `json:"sku,omitempty"`
	PriceCents   *int64  `json:"price_cents,omitempty"`
	CostCents    *int64  `json:"cost_cents,omitempty"`
	ReorderLevel *int    `json:"reorder_level,omitempty"`
	Supplier     *string `json:"supplier,omitempty"`
	Active       *bool   `json:"active,omitempty"`
}

type Category struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// StockMovement is one append-only ledger row. Quantity is the signed effect
// on the item balance. Rows are never mutated or deleted; corrections are new
// offsetting movements.
type StockMovement struct {
	ID             string    `json:"id"`
	ItemCode       string    `json:"item_code"`
	Type           string    `json:"type"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Reason         string    `json:"reason"`
	Reference      string    `json:"reference,omitempty"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

type ApplyMovementRequest struct {
	Type           string `json:"type"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Reason         string `json:"reason"`
	Reference      string `json:"reference,omitempty"`
}

type ApplyMovementResponse struct {
	Item     Item          `json:"item"`
	Movement StockMovement `json:"movement"`
}

// OpnameLine is one counted row in a stock opname session. SystemQty is a
// snapshot of on-hand quantity taken when the line was added; CountedQty
// defaults to 0, never to the snapshot, so an uncounted item reads as a full
// deficit until the operator enters a real count.
type OpnameLine struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	SKU            string `json:"sku,omitempty"`
	Category       string `json:"category"`
	SystemQty      int    `json:"system_qty"`
	CountedQty     int    `json:"counted_qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// Difference is the signed gap between the physical count and the system
// snapshot. Positive is surplus, negative is deficit.
func (l OpnameLine) Difference() int {
	return l.CountedQty - l.SystemQty
}

// OpnameSession is a draft physical-count session. Exactly one may be active
// per device key; it survives process restarts until committed or cancelled.
type OpnameSession struct {
	ID        string       `json:"id"`
	DeviceID  string       `json:"device_id"`
	Mode      string       `json:"mode"`
	Lines     []OpnameLine `json:"lines"`
	LastView  string       `json:"last_view"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type OpnameStartRequest struct {
	Mode string `json:"mode"`
}

type OpnameLineRequest struct {
	Code       string `json:"code"`
	CountedQty int    `json:"counted_qty"`
}

type OpnameDraftRequest struct {
	Lines    []OpnameLine `json:"lines"`
	LastView string       `json:"last_view"`
}

type OpnameSummary struct {
	MatchingCount    int `json:"matching_count"`
	MismatchingCount int `json:"mismatching_count"`
	TotalItems       int `json:"total_items"`
}

type OpnameCommitResponse struct {
	SessionID string          `json:"session_id"`
	Movements []StockMovement `json:"movements"`
	Summary   OpnameSummary   `json:"summary"`
}

// MonitoringRecord aggregates opname discrepancies for one item on one day.
// ConsecutiveSOCount carries over from the item's previous record and resets
// to zero the first time a session yields a matching count for the item.
type MonitoringRecord struct {
	ItemCode                  string    `json:"item_code"`
	Date                      string    `json:"date"`
	SOCount                   int       `json:"so_count"`
	TotalDifference           int       `json:"total_difference"`
	TotalValueDifferenceCents int64     `json:"total_value_difference_cents"`
	ConsecutiveSOCount        int       `json:"consecutive_so_count"`
	Status                    string    `json:"status"`
	Notes                     string    `json:"notes,omitempty"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	MovementTypeIn         = "in"
	MovementTypeOut        = "out"
	MovementTypeAdjustment = "adjustment"
)

const (
	OpnameModePartial = "partial"
	OpnameModeGrand   = "grand"
)

const (
	MonitoringStatusNormal   = "normal"
	MonitoringStatusWarning  = "warning"
	MonitoringStatusCritical = "critical"
)

const (
	OpnameViewCount      = "count"
	OpnameViewComparison = "comparison"
)

// UncategorizedBucket is the fixed display bucket for items without a
// category. It sorts like any other category name.
const UncategorizedBucket = "uncategorized"

// OpnameAdjustmentReason tags ledger movements produced by a commit so they
// are distinguishable from receiving and sale movements in the history.
const OpnameAdjustmentReason = "stock opname adjustment"
