package ledger

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/forge/errors"
	"github.com/c360/forge/natsclient"
)

type memKV struct {
	mu       sync.Mutex
	entries  map[string][]byte
	revision map[string]uint64
	next     uint64
}

func newMemKV() *memKV {
	return &memKV{
		entries:  make(map[string][]byte),
		revision: make(map[string]uint64),
	}
}

func (m *memKV) Get(_ context.Context, key string) (*natsclient.KVEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.entries[key]
	if !ok {
		return nil, natsclient.ErrKVKeyNotFound
	}
	return &natsclient.KVEntry{Key: key, Value: value, Revision: m.revision[key]}, nil
}

func (m *memKV) Create(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; exists {
		return 0, natsclient.ErrKVConflict
	}
	m.next++
	m.entries[key] = value
	m.revision[key] = m.next
	return m.next, nil
}

func (m *memKV) Update(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, exists := m.revision[key]; !exists || current != revision {
		return 0, natsclient.ErrKVConflict
	}
	m.next++
	m.entries[key] = value
	m.revision[key] = m.next
	return m.next, nil
}

func testLedger() *Ledger {
	now := time.Date(2025, time.June, 2, 9, 30, 0, 0, time.UTC)
	return newLedgerWithKV(newMemKV(), func() time.Time { return now })
}

func sampleRun() *Run {
	return &Run{
		DedupeKey:  "cron:29162970",
		RuleID:     "rule-001",
		UserID:     "user-001",
		ActionType: "queue-quest",
	}
}

func TestLedger_ReserveOnce(t *testing.T) {
	l := testLedger()
	run := sampleRun()

	revision, err := l.Reserve(context.Background(), run)
	require.NoError(t, err)
	assert.NotZero(t, revision)
	assert.Equal(t, RunReserved, run.State)
	assert.False(t, run.ReservedAt.IsZero())
}

func TestLedger_ReserveDuplicate(t *testing.T) {
	l := testLedger()
	_, err := l.Reserve(context.Background(), sampleRun())
	require.NoError(t, err)

	_, err = l.Reserve(context.Background(), sampleRun())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDuplicateRun)
}

func TestLedger_ReserveEmptyKey(t *testing.T) {
	l := testLedger()
	run := sampleRun()
	run.DedupeKey = ""
	_, err := l.Reserve(context.Background(), run)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestLedger_ResolveCompleted(t *testing.T) {
	l := testLedger()
	run := sampleRun()
	revision, err := l.Reserve(context.Background(), run)
	require.NoError(t, err)

	require.NoError(t, l.Resolve(context.Background(), run, revision, nil))

	stored, err := l.Lookup(context.Background(), run.DedupeKey)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, stored.State)
	assert.Empty(t, stored.Error)
	assert.False(t, stored.ResolvedAt.IsZero())
}

func TestLedger_ResolveFailed(t *testing.T) {
	l := testLedger()
	run := sampleRun()
	revision, err := l.Reserve(context.Background(), run)
	require.NoError(t, err)

	execErr := stderrors.New("executor exploded")
	require.NoError(t, l.Resolve(context.Background(), run, revision, execErr))

	stored, err := l.Lookup(context.Background(), run.DedupeKey)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, stored.State)
	assert.Equal(t, "executor exploded", stored.Error)
}

func TestLedger_FailedRunStaysClaimed(t *testing.T) {
	l := testLedger()
	run := sampleRun()
	revision, err := l.Reserve(context.Background(), run)
	require.NoError(t, err)
	require.NoError(t, l.Resolve(context.Background(), run, revision, stderrors.New("boom")))

	_, err = l.Reserve(context.Background(), sampleRun())
	assert.ErrorIs(t, err, errors.ErrDuplicateRun)
}

func TestLedger_LookupMissing(t *testing.T) {
	l := testLedger()
	_, err := l.Lookup(context.Background(), "never-reserved")
	assert.ErrorIs(t, err, errors.ErrRunNotFound)
}
