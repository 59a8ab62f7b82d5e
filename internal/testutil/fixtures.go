package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"lotkeeper/internal/locking"
	"lotkeeper/internal/models"

	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// NewTestLocks creates a keyed lock with a short timeout suitable for tests.
func NewTestLocks() *locking.KeyedLock {
	return locking.NewKeyedLock(time.Second)
}

// CreateTestAccount creates a brokerage account.
func CreateTestAccount(t *testing.T, db *gorm.DB) *models.Account {
	t.Helper()

	account := &models.Account{
		Name:     fmt.Sprintf("Brokerage %d", nextID()),
		Broker:   "Test Broker",
		Currency: "USD",
		IsActive: true,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return account
}

// CreateTestSecurity creates a security with a unique symbol.
func CreateTestSecurity(t *testing.T, db *gorm.DB) *models.Security {
	t.Helper()

	n := nextID()
	security := &models.Security{
		Symbol:    fmt.Sprintf("TST%d", n),
		Name:      fmt.Sprintf("Test Security %d", n),
		AssetType: models.AssetTypeStock,
		Currency:  "USD",
		Exchange:  "NASDAQ",
	}
	if err := db.Create(security).Error; err != nil {
		t.Fatalf("failed to create test security: %v", err)
	}
	return security
}

// CreateTestLot creates an open manual lot with a known cost basis.
func CreateTestLot(t *testing.T, db *gorm.DB, account *models.Account, security *models.Security, quantity float64, basisCents int64) *models.Lot {
	t.Helper()
	return createLot(t, db, account, security, quantity, &basisCents, models.LotSourceManual)
}

// CreateTestActivityLot creates a lot as the activity-ingestion pipeline
// would: immutable from the lot API's perspective.
func CreateTestActivityLot(t *testing.T, db *gorm.DB, account *models.Account, security *models.Security, quantity float64, basisCents int64) *models.Lot {
	t.Helper()
	return createLot(t, db, account, security, quantity, &basisCents, models.LotSourceActivity)
}

// CreateTestUnknownBasisLot creates an activity lot whose cost basis is not
// known — the case that drives partial coverage.
func CreateTestUnknownBasisLot(t *testing.T, db *gorm.DB, account *models.Account, security *models.Security, quantity float64) *models.Lot {
	t.Helper()
	return createLot(t, db, account, security, quantity, nil, models.LotSourceActivity)
}

func createLot(t *testing.T, db *gorm.DB, account *models.Account, security *models.Security, quantity float64, basisCents *int64, source models.LotSource) *models.Lot {
	t.Helper()

	acquired := time.Date(2023, time.March, 15, 0, 0, 0, 0, time.UTC)
	lot := &models.Lot{
		AccountID:        account.ID,
		SecurityID:       security.ID,
		Ticker:           security.Symbol,
		AcquisitionDate:  &acquired,
		CostBasisPerUnit: basisCents,
		OriginalQuantity: quantity,
		CurrentQuantity:  quantity,
		Source:           source,
	}
	if err := db.Create(lot).Error; err != nil {
		t.Fatalf("failed to create test lot: %v", err)
	}
	return lot
}

// CreateTestPrice records a fresh market price for a security.
func CreateTestPrice(t *testing.T, db *gorm.DB, security *models.Security, priceCents int64) *models.SecurityPrice {
	t.Helper()
	return CreateTestPriceAt(t, db, security, priceCents, time.Now())
}

// CreateTestPriceAt records a market price with an explicit timestamp.
func CreateTestPriceAt(t *testing.T, db *gorm.DB, security *models.Security, priceCents int64, recordedAt time.Time) *models.SecurityPrice {
	t.Helper()

	price := &models.SecurityPrice{
		SecurityID: security.ID,
		Price:      priceCents,
		RecordedAt: recordedAt,
	}
	if err := db.Create(price).Error; err != nil {
		t.Fatalf("failed to create test price: %v", err)
	}
	return price
}
