package services

import (
	"time"

	"lotkeeper/internal/models"
	"lotkeeper/internal/pagination"
)

// AccountServicer defines the contract for account-related business logic.
type AccountServicer interface {
	CreateAccount(name, description, broker, accountNumber, currency string) (*models.Account, error)
	GetAccounts(page pagination.PageRequest) (*pagination.PageResponse[models.Account], error)
	GetAccountByID(accountID string) (*models.Account, error)
}

// SecurityServicer defines the contract for security and market-price logic.
// Prices are an input to the engine, never computed by it.
type SecurityServicer interface {
	CreateSecurity(symbol, name string, assetType models.AssetType, currency, exchange string) (*models.Security, error)
	GetSecurities(page pagination.PageRequest, search string) (*pagination.PageResponse[models.Security], error)
	GetSecurityByID(securityID string) (*models.Security, error)
	RecordPrice(securityID string, price int64, recordedAt *time.Time) (*models.SecurityPrice, error)
	LatestPrice(securityID string) (*models.SecurityPrice, error)
}

// LotCreate describes a lot to be created through the lot API.
type LotCreate struct {
	Source           models.LotSource
	AcquisitionDate  *time.Time
	CostBasisPerUnit *int64
	Quantity         float64
	Notes            string
}

// LotUpdate describes an edit to an existing lot. Nil fields are left
// unchanged; Quantity edits the lot's original quantity.
type LotUpdate struct {
	LotID            string
	AcquisitionDate  *time.Time
	CostBasisPerUnit *int64
	Quantity         *float64
	Notes            *string
}

// LotView is a lot annotated with read-side derived values. The gain/loss
// fields are present only when a market price is known for the security.
type LotView struct {
	models.Lot
	TotalCost          *int64   `json:"total_cost"`
	UnrealizedGainLoss *int64   `json:"unrealized_gain_loss,omitempty"`
	GainLossPct        *float64 `json:"gain_loss_pct,omitempty"`
}

// HoldingLots is the full lot listing for one (account, security) holding.
type HoldingLots struct {
	AccountID       string    `json:"account_id"`
	SecurityID      string    `json:"security_id"`
	Lots            []LotView `json:"lots"`
	TotalQuantity   float64   `json:"total_quantity"`
	CoveragePercent int       `json:"coverage_percent"`
	Partial         bool      `json:"partial"`
	MarketPrice     *int64    `json:"market_price,omitempty"`
	PriceStale      bool      `json:"price_stale"`
}

// LotServicer defines the contract for the lot ledger: creating, editing and
// deleting lots, listing them with derived values, and atomic batch saves
// with remainder reconciliation.
type LotServicer interface {
	CreateLot(accountID, securityID string, create LotCreate) (*models.Lot, error)
	EditLot(lotID string, update LotUpdate) (*models.Lot, error)
	DeleteLot(lotID string) error
	ListLotsBySecurity(accountID, securityID string) (*HoldingLots, error)
	SaveBatch(accountID, securityID string, holdingQuantity float64, updates []LotUpdate, creates []LotCreate) ([]models.Lot, error)
}

// AssignmentInput is a caller-supplied (lot, quantity) consumption pair.
// Lot selection policy (FIFO, specific-lot, ...) is the caller's business;
// the engine only validates and applies it.
type AssignmentInput struct {
	LotID    string  `json:"lot_id"`
	Quantity float64 `json:"quantity"`
}

// DisposalView is a disposal group annotated with its realized gain/loss.
// RealizedGainLoss is nil when any consumed lot has an unknown cost basis.
type DisposalView struct {
	models.DisposalGroup
	RealizedGainLoss *int64 `json:"realized_gain_loss"`
}

// DisposalServicer defines the contract for recording disposals and
// correcting their lot consumption after the fact.
type DisposalServicer interface {
	RecordDisposal(accountID, securityID string, date time.Time, totalQuantity float64, proceedsPerUnit int64, assignments []AssignmentInput) (*DisposalView, error)
	ReassignDisposal(disposalGroupID string, assignments []AssignmentInput) (*DisposalView, error)
	DeleteDisposal(disposalGroupID string) error
	GetDisposalGroup(disposalGroupID string) (*DisposalView, error)
	ListDisposalsBySecurity(accountID, securityID string, page pagination.PageRequest) (*pagination.PageResponse[DisposalView], error)
	ReassignmentCandidates(disposalGroupID string) ([]models.Lot, error)
}

// HoldingValuation aggregates a holding's cost basis and gain/loss. Pointer
// fields are nil when no market price is known — unavailable, never zero.
type HoldingValuation struct {
	AccountID             string   `json:"account_id"`
	SecurityID            string   `json:"security_id"`
	TotalQuantity         float64  `json:"total_quantity"`
	TotalCostBasis        int64    `json:"total_cost_basis"`
	MarketPrice           *int64   `json:"market_price,omitempty"`
	PriceStale            bool     `json:"price_stale"`
	MarketValue           *int64   `json:"market_value,omitempty"`
	UnrealizedGainLoss    *int64   `json:"unrealized_gain_loss,omitempty"`
	UnrealizedGainLossPct *float64 `json:"unrealized_gain_loss_pct,omitempty"`
	CoveragePercent       int      `json:"coverage_percent"`
	Partial               bool     `json:"partial"`
}

// RealizedSummary aggregates realized gain/loss over a calendar year.
type RealizedSummary struct {
	Year                   int    `json:"year"`
	RealizedGainLoss       int64  `json:"realized_gain_loss"`
	Groups                 int    `json:"groups"`
	GroupsWithUnknownBasis int    `json:"groups_with_unknown_basis"`
	AccountID              string `json:"account_id"`
	SecurityID             string `json:"security_id,omitempty"`
}

// ValuationServicer defines the read-side projections over the lot ledger.
type ValuationServicer interface {
	HoldingValuation(accountID, securityID string) (*HoldingValuation, error)
	RealizedGainLossYTD(accountID string, securityID string, year int) (*RealizedSummary, error)
}

// AuditServicer records engine mutations for after-the-fact review.
type AuditServicer interface {
	Log(action, resourceType, resourceID string, changes map[string]any)
}
