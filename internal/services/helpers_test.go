package services

import (
	"testing"

	"gorm.io/gorm"

	"lotkeeper/internal/locking"
	"lotkeeper/internal/testutil"
)

type testDeps struct {
	db    *gorm.DB
	locks *locking.KeyedLock
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()
	return &testDeps{
		db:    testutil.SetupTestDB(t),
		locks: testutil.NewTestLocks(),
	}
}

func (d *testDeps) teardown(t *testing.T) {
	t.Helper()
	testutil.TeardownTestDB(t, d.db)
}
