// Package ledger records action runs in a NATS KV bucket and enforces
// at-most-once execution per dedupe key. The reservation is a create-only
// KV write, so two dispatchers racing on the same key cannot both win.
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/forge/errors"
	"github.com/c360/forge/natsclient"
)

// BucketName is the KV bucket holding run records keyed by dedupe key.
const BucketName = "forge_runs"

// defaultTTL bounds how long a reservation blocks re-execution. Dedupe
// keys for cron rules change every minute, so old records are only
// noise after a day.
const defaultTTL = 24 * time.Hour

// RunState tracks a record through its lifecycle.
type RunState string

const (
	// RunReserved means the key is claimed but the action has not
	// finished.
	RunReserved RunState = "reserved"
	// RunCompleted means the action executed successfully.
	RunCompleted RunState = "completed"
	// RunFailed means the action exhausted its retries.
	RunFailed RunState = "failed"
)

// Run is the persisted record for one reservation.
type Run struct {
	DedupeKey  string    `json:"dedupeKey"`
	RuleID     string    `json:"ruleId"`
	UserID     string    `json:"userId"`
	ActionType string    `json:"actionType"`
	State      RunState  `json:"state"`
	ReservedAt time.Time `json:"reservedAt"`
	ResolvedAt time.Time `json:"resolvedAt,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// kv is the subset of natsclient.KVStore the ledger needs.
type kv interface {
	Get(ctx context.Context, key string) (*natsclient.KVEntry, error)
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
}

// Ledger reserves and resolves run records.
type Ledger struct {
	kv  kv
	now func() time.Time
}

// NewLedger creates a run ledger backed by the client's KV bucket,
// creating the bucket if needed. Entries expire via bucket TTL.
func NewLedger(ctx context.Context, client *natsclient.Client) (*Ledger, error) {
	if client == nil {
		return nil, errors.WrapInvalid(nil, "ledger", "NewLedger", "nats client cannot be nil")
	}

	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      BucketName,
		Description: "Forge action run ledger",
		TTL:         defaultTTL,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "ledger", "NewLedger", "create KV bucket")
	}

	return &Ledger{
		kv:  client.NewKVStore(bucket),
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// newLedgerWithKV is the test seam: it skips bucket provisioning.
func newLedgerWithKV(kv kv, now func() time.Time) *Ledger {
	return &Ledger{kv: kv, now: now}
}

// Reserve claims a dedupe key for execution. The second caller for the
// same key gets ErrDuplicateRun regardless of what happened to the
// first run; a failed run does not reopen the key.
func (l *Ledger) Reserve(ctx context.Context, run *Run) (uint64, error) {
	if run == nil || run.DedupeKey == "" {
		return 0, errors.WrapInvalid(nil, "ledger", "Reserve", "dedupe key cannot be empty")
	}

	run.State = RunReserved
	run.ReservedAt = l.now()

	data, err := json.Marshal(run)
	if err != nil {
		return 0, errors.WrapFatal(err, "ledger", "Reserve", "marshal run")
	}

	revision, err := l.kv.Create(ctx, run.DedupeKey, data)
	if err != nil {
		if natsclient.IsKVConflictError(err) {
			return 0, errors.WrapInvalid(errors.ErrDuplicateRun, "ledger", "Reserve",
				"dedupe key already reserved")
		}
		return 0, errors.WrapTransient(err, "ledger", "Reserve", "create in KV")
	}
	return revision, nil
}

// Resolve marks a reserved run completed or failed. The revision from
// Reserve guards against an entry having expired and been re-created.
func (l *Ledger) Resolve(ctx context.Context, run *Run, revision uint64, execErr error) error {
	if run == nil || run.DedupeKey == "" {
		return errors.WrapInvalid(nil, "ledger", "Resolve", "dedupe key cannot be empty")
	}

	run.ResolvedAt = l.now()
	if execErr != nil {
		run.State = RunFailed
		run.Error = execErr.Error()
	} else {
		run.State = RunCompleted
	}

	data, err := json.Marshal(run)
	if err != nil {
		return errors.WrapFatal(err, "ledger", "Resolve", "marshal run")
	}

	if _, err := l.kv.Update(ctx, run.DedupeKey, data, revision); err != nil {
		return errors.WrapTransient(err, "ledger", "Resolve", "update in KV")
	}
	return nil
}

// Lookup returns the run record for a dedupe key, or ErrRunNotFound.
func (l *Ledger) Lookup(ctx context.Context, dedupeKey string) (*Run, error) {
	if dedupeKey == "" {
		return nil, errors.WrapInvalid(nil, "ledger", "Lookup", "dedupe key cannot be empty")
	}

	entry, err := l.kv.Get(ctx, dedupeKey)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, errors.WrapInvalid(errors.ErrRunNotFound, "ledger", "Lookup", "run not found")
		}
		return nil, errors.WrapTransient(err, "ledger", "Lookup", "get from KV")
	}

	var run Run
	if err := json.Unmarshal(entry.Value, &run); err != nil {
		return nil, errors.WrapFatal(err, "ledger", "Lookup", "unmarshal run")
	}
	return &run, nil
}
