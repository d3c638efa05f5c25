package store

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// TestCreateTxInsertsRow mirrors the teacher's sqlmock-backed recorder
// test (internal/db/transaction_recorder_test.go): a mocked *sql.DB wired
// into gorm so the INSERT/transaction shape can be asserted without a real
// file-backed database.
func TestCreateTxInsertsRow(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	gormDB, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	s := &Store{db: gormDB}
	txID, err := s.CreateTx(&types.TransactionRecord{UserID: "u1", ChainID: 1, From: "0xa", To: "0xb"})
	require.NoError(t, err)
	assert.NotEmpty(t, txID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func openMemStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	s, err := OpenWithDB(db)
	require.NoError(t, err)
	return s
}

func TestGetUserLimitsReturnsDefaultWhenMissing(t *testing.T) {
	s := openMemStore(t)
	limits, err := s.GetUserLimits("nobody")
	require.NoError(t, err)
	assert.Equal(t, types.DefaultUserLimits("nobody"), limits)
}

func TestTransitionEnforcesDAG(t *testing.T) {
	s := openMemStore(t)
	txID, err := s.CreateTx(&types.TransactionRecord{UserID: "u1", ChainID: 1, From: "0xa", To: "0xb"})
	require.NoError(t, err)

	require.NoError(t, s.Transition(txID, types.StatusSimulated, TransitionOpts{}))
	require.NoError(t, s.Transition(txID, types.StatusFailed, TransitionOpts{}))

	err = s.Transition(txID, types.StatusConfirmed, TransitionOpts{})
	assert.Error(t, err, "failed is terminal; Transition must not allow leaving it")
}

func TestReconcileTimeoutOnlyMatchesFailedTimeoutRows(t *testing.T) {
	s := openMemStore(t)
	txID, err := s.CreateTx(&types.TransactionRecord{UserID: "u1", ChainID: 1, From: "0xa", To: "0xb"})
	require.NoError(t, err)
	require.NoError(t, s.Transition(txID, types.StatusSimulated, TransitionOpts{}))

	// Not yet failed/timeout: reconcile must refuse.
	err = s.ReconcileTimeout(txID, types.StatusConfirmed, TransitionOpts{})
	assert.Error(t, err)

	errMsg := "timeout"
	require.NoError(t, s.Transition(txID, types.StatusFailed, TransitionOpts{Error: &errMsg}))

	gasUsed := uint64(21000)
	require.NoError(t, s.ReconcileTimeout(txID, types.StatusConfirmed, TransitionOpts{GasUsed: &gasUsed}))

	rec, err := s.GetTx(txID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusConfirmed, rec.Status)
}

func TestClaimDailyCopySlotResetsOnNewDay(t *testing.T) {
	s := openMemStore(t)
	id, err := s.CreateWhaleWatch(&types.WhaleWatch{UserID: "u1", ChainID: 1, Address: "0xwhale", ThresholdUSD: 1000, AutoCopy: true, CopyMaxDaily: 1})
	require.NoError(t, err)

	today := time.Now().UTC().Format("2006-01-02")
	ok, err := s.ClaimDailyCopySlot(id, today)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimDailyCopySlot(id, today)
	require.NoError(t, err)
	assert.False(t, ok, "second claim on the same day must be refused")

	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	ok, err = s.ClaimDailyCopySlot(id, tomorrow)
	require.NoError(t, err)
	assert.True(t, ok, "a new day resets the claim counter")
}
