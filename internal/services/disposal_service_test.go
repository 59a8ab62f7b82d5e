package services

import (
	"testing"
	"time"

	"lotkeeper/internal/models"
	"lotkeeper/internal/pagination"
	"lotkeeper/internal/testutil"
)

type disposalFixture struct {
	deps     *testDeps
	svc      DisposalServicer
	lots     LotServicer
	account  *models.Account
	security *models.Security
	lotA     *models.Lot
	lotB     *models.Lot
}

// newDisposalFixture builds the holding used throughout: lot A of 50 units at
// a basis of 15000 cents/unit and lot B of 30 units at 17000 cents/unit.
func newDisposalFixture(t *testing.T) *disposalFixture {
	t.Helper()
	deps := newTestDeps(t)
	audit := NewAuditService(deps.db)
	account := testutil.CreateTestAccount(t, deps.db)
	security := testutil.CreateTestSecurity(t, deps.db)
	return &disposalFixture{
		deps:     deps,
		svc:      NewDisposalService(deps.db, deps.locks, audit),
		lots:     NewLotService(deps.db, deps.locks, audit),
		account:  account,
		security: security,
		lotA:     testutil.CreateTestLot(t, deps.db, account, security, 50, 15000),
		lotB:     testutil.CreateTestLot(t, deps.db, account, security, 30, 17000),
	}
}

func (f *disposalFixture) reloadLot(t *testing.T, id string) *models.Lot {
	t.Helper()
	var lot models.Lot
	if err := f.deps.db.First(&lot, "id = ?", id).Error; err != nil {
		t.Fatalf("reload lot %s: %v", id, err)
	}
	return &lot
}

func TestRecordDisposal(t *testing.T) {
	t.Run("single_lot", func(t *testing.T) {
		f := newDisposalFixture(t)
		defer f.deps.teardown(t)

		view, err := f.svc.RecordDisposal(f.account.ID, f.security.ID, time.Now(), 20, 20000,
			[]AssignmentInput{{LotID: f.lotA.ID, Quantity: 20}})
		testutil.AssertNoError(t, err)

		lotA := f.reloadLot(t, f.lotA.ID)
		testutil.AssertQuantity(t, 30, lotA.CurrentQuantity)
		testutil.AssertQuantity(t, 50, lotA.OriginalQuantity)
		if lotA.Closed {
			t.Error("lot A still has quantity, must stay open")
		}

		// 20 × (20000 − 15000) = 100000 cents realized
		if view.RealizedGainLoss == nil || *view.RealizedGainLoss != 100000 {
			t.Errorf("expected realized 100000, got %v", view.RealizedGainLoss)
		}
		if len(view.Assignments) != 1 {
			t.Fatalf("expected 1 assignment, got %d", len(view.Assignments))
		}
	})

	t.Run("split_across_lots", func(t *testing.T) {
		f := newDisposalFixture(t)
		defer f.deps.teardown(t)

		view, err := f.svc.RecordDisposal(f.account.ID, f.security.ID, time.Now(), 60, 20000,
			[]AssignmentInput{
				{LotID: f.lotA.ID, Quantity: 50},
				{LotID: f.lotB.ID, Quantity: 10},
			})
		testutil.AssertNoError(t, err)

		lotA := f.reloadLot(t, f.lotA.ID)
		if !lotA.Closed {
			t.Error("fully consumed lot must close")
		}
		testutil.AssertQuantity(t, 0, lotA.CurrentQuantity)
		testutil.AssertQuantity(t, 20, f.reloadLot(t, f.lotB.ID).CurrentQuantity)

		// 50 × 5000 + 10 × 3000 = 280000
		if view.RealizedGainLoss == nil || *view.RealizedGainLoss != 280000 {
			t.Errorf("expected realized 280000, got %v", view.RealizedGainLoss)
		}
	})

	t.Run("quantity_mismatch", func(t *testing.T) {
		f := newDisposalFixture(t)
		defer f.deps.teardown(t)

		_, err := f.svc.RecordDisposal(f.account.ID, f.security.ID, time.Now(), 20, 20000,
			[]AssignmentInput{{LotID: f.lotA.ID, Quantity: 15}})
		testutil.AssertAppError(t, err, "QUANTITY_MISMATCH")
	})

	t.Run("insufficient_lot_quantity", func(t *testing.T) {
		f := newDisposalFixture(t)
		defer f.deps.teardown(t)

		_, err := f.svc.RecordDisposal(f.account.ID, f.security.ID, time.Now(), 60, 20000,
			[]AssignmentInput{{LotID: f.lotA.ID, Quantity: 60}})
		testutil.AssertAppError(t, err, "INSUFFICIENT_LOT_QUANTITY")

		// The failed transaction must not have touched the lot.
		testutil.AssertQuantity(t, 50, f.reloadLot(t, f.lotA.ID).CurrentQuantity)
		var groups int64
		f.deps.db.Model(&models.DisposalGroup{}).Count(&groups)
		if groups != 0 {
			t.Errorf("expected no disposal groups after rollback, got %d", groups)
		}
	})

	t.Run("duplicate_lot_rejected", func(t *testing.T) {
		f := newDisposalFixture(t)
		defer f.deps.teardown(t)

		_, err := f.svc.RecordDisposal(f.account.ID, f.security.ID, time.Now(), 20, 20000,
			[]AssignmentInput{
				{LotID: f.lotA.ID, Quantity: 10},
				{LotID: f.lotA.ID, Quantity: 10},
			})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("foreign_lot_rejected", func(t *testing.T) {
		f := newDisposalFixture(t)
		defer f.deps.teardown(t)
		other := testutil.CreateTestSecurity(t, f.deps.db)
		foreign := testutil.CreateTestLot(t, f.deps.db, f.account, other, 100, 1000)

		_, err := f.svc.RecordDisposal(f.account.ID, f.security.ID, time.Now(), 20, 20000,
			[]AssignmentInput{{LotID: foreign.ID, Quantity: 20}})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("unknown_basis_lot", func(t *testing.T) {
		f := newDisposalFixture(t)
		defer f.deps.teardown(t)
		unknown := testutil.CreateTestUnknownBasisLot(t, f.deps.db, f.account, f.security, 10)

		view, err := f.svc.RecordDisposal(f.account.ID, f.security.ID, time.Now(), 15, 20000,
			[]AssignmentInput{
				{LotID: f.lotA.ID, Quantity: 5},
				{LotID: unknown.ID, Quantity: 10},
			})
		testutil.AssertNoError(t, err)
		if view.RealizedGainLoss != nil {
			t.Error("realized gain/loss must be unavailable when a consumed lot has unknown basis")
		}
	})
}

func TestReassignDisposal(t *testing.T) {
	t.Run("move_between_lots", func(t *testing.T) {
		f := newDisposalFixture(t)
		defer f.deps.teardown(t)

		view, err := f.svc.RecordDisposal(f.account.ID, f.security.ID, time.Now(), 20, 20000,
			[]AssignmentInput{{LotID: f.lotA.ID, Quantity: 20}})
		testutil.AssertNoError(t, err)

		// Reassign to 15 from A and 5 from B.
		view, err = f.svc.ReassignDisposal(view.ID, []AssignmentInput{
			{LotID: f.lotA.ID, Quantity: 15},
			{LotID: f.lotB.ID, Quantity: 5},
		})
		testutil.AssertNoError(t, err)

		testutil.AssertQuantity(t, 35, f.reloadLot(t, f.lotA.ID).CurrentQuantity)
		testutil.AssertQuantity(t, 25, f.reloadLot(t, f.lotB.ID).CurrentQuantity)

		// 15 × 5000 + 5 × 3000 = 90000
		if view.RealizedGainLoss == nil || *view.RealizedGainLoss != 90000 {
			t.Errorf("expected realized 90000, got %v", view.RealizedGainLoss)
		}
		if len(view.Assignments) != 2 {
			t.Fatalf("expected 2 assignments, got %d", len(view.Assignments))
		}
	})

	t.Run("identical_reassignment_is_noop", func(t *testing.T) {
		f := newDisposalFixture(t)
		defer f.deps.teardown(t)

		view, err := f.svc.RecordDisposal(f.account.ID, f.security.ID, time.Now(), 20, 20000,
			[]AssignmentInput{{LotID: f.lotA.ID, Quantity: 20}})
		testutil.AssertNoError(t, err)

		_, err = f.svc.ReassignDisposal(view.ID, []AssignmentInput{{LotID: f.lotA.ID, Quantity: 20}})
		testutil.AssertNoError(t, err)

		testutil.AssertQuantity(t, 30, f.reloadLot(t, f.lotA.ID).CurrentQuantity)
		testutil.AssertQuantity(t, 30, f.reloadLot(t, f.lotB.ID).CurrentQuantity)
	})

	t.Run("reassign_out_of_closed_lot", func(t *testing.T) {
		f := newDisposalFixture(t)
		defer f.deps.teardown(t)

		// Consume all of A, closing it.
		view, err := f.svc.RecordDisposal(f.account.ID, f.security.ID, time.Now(), 50, 20000,
			[]AssignmentInput{{LotID: f.lotA.ID, Quantity: 50}})
		testutil.AssertNoError(t, err)
		if !f.reloadLot(t, f.lotA.ID).Closed {
			t.Fatal("lot A should be closed")
		}

		// Moving 30 units of the disposal onto B reopens A at 30.
		_, err = f.svc.ReassignDisposal(view.ID, []AssignmentInput{
			{LotID: f.lotA.ID, Quantity: 20},
			{LotID: f.lotB.ID, Quantity: 30},
		})
		testutil.AssertNoError(t, err)

		lotA := f.reloadLot(t, f.lotA.ID)
		testutil.AssertQuantity(t, 30, lotA.CurrentQuantity)
		if lotA.Closed {
			t.Error("lot A must reopen after reassignment returned quantity")
		}
		lotB := f.reloadLot(t, f.lotB.ID)
		testutil.AssertQuantity(t, 0, lotB.CurrentQuantity)
		if !lotB.Closed {
			t.Error("lot B fully consumed, must close")
		}
	})

	t.Run("failure_rolls_back_reversal", func(t *testing.T) {
		f := newDisposalFixture(t)
		defer f.deps.teardown(t)

		view, err := f.svc.RecordDisposal(f.account.ID, f.security.ID, time.Now(), 20, 20000,
			[]AssignmentInput{{LotID: f.lotA.ID, Quantity: 20}})
		testutil.AssertNoError(t, err)

		// A second disposal leaves B with only 15 units.
		_, err = f.svc.RecordDisposal(f.account.ID, f.security.ID, time.Now(), 15, 20000,
			[]AssignmentInput{{LotID: f.lotB.ID, Quantity: 15}})
		testutil.AssertNoError(t, err)

		// Moving the first disposal's 20 units onto B must fail; the reversal
		// of A's consumption inside the transaction must roll back with it.
		_, err = f.svc.ReassignDisposal(view.ID, []AssignmentInput{{LotID: f.lotB.ID, Quantity: 20}})
		testutil.AssertAppError(t, err, "INSUFFICIENT_LOT_QUANTITY")

		_, err = f.svc.ReassignDisposal(view.ID, []AssignmentInput{{LotID: f.lotB.ID, Quantity: 35}})
		testutil.AssertAppError(t, err, "QUANTITY_MISMATCH")

		testutil.AssertQuantity(t, 30, f.reloadLot(t, f.lotA.ID).CurrentQuantity)
		testutil.AssertQuantity(t, 15, f.reloadLot(t, f.lotB.ID).CurrentQuantity)

		reloaded, err := f.svc.GetDisposalGroup(view.ID)
		testutil.AssertNoError(t, err)
		if len(reloaded.Assignments) != 1 || reloaded.Assignments[0].LotID != f.lotA.ID {
			t.Error("original assignments must survive a failed reassignment")
		}
	})

	t.Run("changed_total_rejected", func(t *testing.T) {
		f := newDisposalFixture(t)
		defer f.deps.teardown(t)

		view, err := f.svc.RecordDisposal(f.account.ID, f.security.ID, time.Now(), 20, 20000,
			[]AssignmentInput{{LotID: f.lotA.ID, Quantity: 20}})
		testutil.AssertNoError(t, err)

		_, err = f.svc.ReassignDisposal(view.ID, []AssignmentInput{{LotID: f.lotA.ID, Quantity: 10}})
		testutil.AssertAppError(t, err, "QUANTITY_MISMATCH")
	})

	t.Run("not_found", func(t *testing.T) {
		f := newDisposalFixture(t)
		defer f.deps.teardown(t)

		_, err := f.svc.ReassignDisposal("00000000-0000-0000-0000-000000000000",
			[]AssignmentInput{{LotID: f.lotA.ID, Quantity: 20}})
		testutil.AssertAppError(t, err, "DISPOSAL_NOT_FOUND")
	})
}

func TestDeleteDisposal(t *testing.T) {
	f := newDisposalFixture(t)
	defer f.deps.teardown(t)

	view, err := f.svc.RecordDisposal(f.account.ID, f.security.ID, time.Now(), 50, 20000,
		[]AssignmentInput{{LotID: f.lotA.ID, Quantity: 50}})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, f.svc.DeleteDisposal(view.ID))

	lotA := f.reloadLot(t, f.lotA.ID)
	testutil.AssertQuantity(t, 50, lotA.CurrentQuantity)
	if lotA.Closed {
		t.Error("lot must reopen after the disposal is deleted")
	}

	_, err = f.svc.GetDisposalGroup(view.ID)
	testutil.AssertAppError(t, err, "DISPOSAL_NOT_FOUND")
}

func TestListDisposalsBySecurity(t *testing.T) {
	f := newDisposalFixture(t)
	defer f.deps.teardown(t)

	older := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	_, err := f.svc.RecordDisposal(f.account.ID, f.security.ID, older, 10, 16000,
		[]AssignmentInput{{LotID: f.lotA.ID, Quantity: 10}})
	testutil.AssertNoError(t, err)
	_, err = f.svc.RecordDisposal(f.account.ID, f.security.ID, newer, 5, 21000,
		[]AssignmentInput{{LotID: f.lotB.ID, Quantity: 5}})
	testutil.AssertNoError(t, err)

	page, err := f.svc.ListDisposalsBySecurity(f.account.ID, f.security.ID, pagination.PageRequest{})
	testutil.AssertNoError(t, err)

	if page.TotalItems != 2 {
		t.Fatalf("expected 2 disposals, got %d", page.TotalItems)
	}
	if !page.Data[0].Date.After(page.Data[1].Date) {
		t.Error("expected newest disposal first")
	}
	// 5 × (21000 − 17000) = 20000
	if page.Data[0].RealizedGainLoss == nil || *page.Data[0].RealizedGainLoss != 20000 {
		t.Errorf("expected realized 20000, got %v", page.Data[0].RealizedGainLoss)
	}
}

func TestReassignmentCandidates(t *testing.T) {
	f := newDisposalFixture(t)
	defer f.deps.teardown(t)

	// Close lot A via a full disposal, then add a third open lot.
	view, err := f.svc.RecordDisposal(f.account.ID, f.security.ID, time.Now(), 50, 20000,
		[]AssignmentInput{{LotID: f.lotA.ID, Quantity: 50}})
	testutil.AssertNoError(t, err)
	lotC := testutil.CreateTestLot(t, f.deps.db, f.account, f.security, 40, 18000)

	// Close lot C with a separate disposal so only B stays open besides the
	// group's own lot A.
	_, err = f.svc.RecordDisposal(f.account.ID, f.security.ID, time.Now(), 40, 20000,
		[]AssignmentInput{{LotID: lotC.ID, Quantity: 40}})
	testutil.AssertNoError(t, err)

	candidates, err := f.svc.ReassignmentCandidates(view.ID)
	testutil.AssertNoError(t, err)

	ids := make(map[string]bool, len(candidates))
	for _, lot := range candidates {
		ids[lot.ID] = true
	}
	if !ids[f.lotA.ID] {
		t.Error("currently consumed lot A must be a candidate even though closed")
	}
	if !ids[f.lotB.ID] {
		t.Error("open lot B must be a candidate")
	}
	if ids[lotC.ID] {
		t.Error("lot C is closed by another disposal, must not be a candidate")
	}
}
