// Package rulestore persists Forge rules in a NATS KV bucket. The store
// is the construction-time validation boundary: malformed rules are
// rejected here so the evaluation path only ever sees valid values.
package rulestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/forge/cron"
	"github.com/c360/forge/errors"
	"github.com/c360/forge/natsclient"
	"github.com/c360/forge/types"
)

// BucketName is the KV bucket holding rule definitions.
const BucketName = "forge_rules"

// kv is the subset of natsclient.KVStore the store needs; tests swap in
// an in-memory implementation.
type kv interface {
	Get(ctx context.Context, key string) (*natsclient.KVEntry, error)
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Store provides CRUD and toggle operations over ForgeRule values.
type Store struct {
	kv  kv
	now func() time.Time
}

// NewStore creates a rule store backed by the client's KV bucket,
// creating the bucket if needed.
func NewStore(ctx context.Context, client *natsclient.Client) (*Store, error) {
	if client == nil {
		return nil, errors.WrapInvalid(nil, "rulestore", "NewStore", "nats client cannot be nil")
	}

	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      BucketName,
		Description: "Forge automation rule definitions",
		History:     10,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "rulestore", "NewStore", "create KV bucket")
	}

	return &Store{
		kv:  client.NewKVStore(bucket),
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// newStoreWithKV is the test seam: it skips bucket provisioning.
func newStoreWithKV(kv kv, now func() time.Time) *Store {
	return &Store{kv: kv, now: now}
}

// validate applies construction-time invariants beyond the type-level
// ones: a cron rule must carry a parseable schedule. Broken schedules
// would be inert anyway (the engine fails closed), but rejecting them
// here surfaces the mistake to the rule author instead of silently
// never firing.
func validate(rule *types.ForgeRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.TriggerType == types.TriggerCron {
		expr, ok := rule.TriggerConfig[types.TriggerConfigCron].(string)
		if !ok || !cron.Valid(expr) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: cron expression %q", errors.ErrInvalidRule, expr),
				"rulestore", "validate", "validate cron expression")
		}
	}
	return nil
}

// Create stores a new rule. A missing ID is minted; timestamps and
// version are initialized here, never by the caller.
func (s *Store) Create(ctx context.Context, rule *types.ForgeRule) error {
	if rule == nil {
		return errors.WrapInvalid(nil, "rulestore", "Create", "rule cannot be nil")
	}

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := s.now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := validate(rule); err != nil {
		return err
	}

	data, err := json.Marshal(rule)
	if err != nil {
		return errors.WrapFatal(err, "rulestore", "Create", "marshal rule")
	}

	revision, err := s.kv.Create(ctx, rule.ID, data)
	if err != nil {
		if natsclient.IsKVConflictError(err) {
			return errors.WrapInvalid(errors.ErrRuleExists, "rulestore", "Create", "rule already exists")
		}
		return errors.WrapTransient(err, "rulestore", "Create", "create in KV")
	}

	rule.Version = revision
	return nil
}

// Get retrieves a rule by ID.
func (s *Store) Get(ctx context.Context, id string) (*types.ForgeRule, error) {
	if id == "" {
		return nil, errors.WrapInvalid(nil, "rulestore", "Get", "rule ID cannot be empty")
	}

	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, errors.WrapInvalid(errors.ErrRuleNotFound, "rulestore", "Get", "rule not found")
		}
		return nil, errors.WrapTransient(err, "rulestore", "Get", "get from KV")
	}

	var rule types.ForgeRule
	if err := json.Unmarshal(entry.Value, &rule); err != nil {
		return nil, errors.WrapFatal(err, "rulestore", "Get", "unmarshal rule")
	}
	rule.Version = entry.Revision

	return &rule, nil
}

// Update replaces a rule's mutable configuration with optimistic
// concurrency control on Version. Trigger and action types are fixed for
// a rule's lifetime; changing them requires a new rule.
func (s *Store) Update(ctx context.Context, rule *types.ForgeRule) error {
	if rule == nil {
		return errors.WrapInvalid(nil, "rulestore", "Update", "rule cannot be nil")
	}

	current, err := s.Get(ctx, rule.ID)
	if err != nil {
		return err
	}
	if current.TriggerType != rule.TriggerType || current.ActionType != rule.ActionType {
		return errors.WrapInvalid(
			fmt.Errorf("%w: trigger/action types are immutable", errors.ErrInvalidRule),
			"rulestore", "Update", "validate type immutability")
	}

	rule.CreatedAt = current.CreatedAt
	rule.UpdatedAt = s.now()

	if err := validate(rule); err != nil {
		return err
	}

	data, err := json.Marshal(rule)
	if err != nil {
		return errors.WrapFatal(err, "rulestore", "Update", "marshal rule")
	}

	revision, err := s.kv.Update(ctx, rule.ID, data, rule.Version)
	if err != nil {
		if natsclient.IsKVConflictError(err) {
			return errors.WrapInvalid(errors.ErrVersionStale, "rulestore", "Update",
				"conflict: rule was modified concurrently")
		}
		return errors.WrapTransient(err, "rulestore", "Update", "update in KV")
	}

	rule.Version = revision
	return nil
}

// Toggle flips a rule's enabled flag and advances UpdatedAt.
func (s *Store) Toggle(ctx context.Context, id string, enabled bool) (*types.ForgeRule, error) {
	rule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled
	if err := s.Update(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// Delete removes a rule by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.WrapInvalid(nil, "rulestore", "Delete", "rule ID cannot be empty")
	}

	if err := s.kv.Delete(ctx, id); err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return errors.WrapInvalid(errors.ErrRuleNotFound, "rulestore", "Delete", "rule not found")
		}
		return errors.WrapTransient(err, "rulestore", "Delete", "delete from KV")
	}
	return nil
}

// List retrieves all rules.
func (s *Store) List(ctx context.Context) ([]*types.ForgeRule, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "rulestore", "List", "list KV keys")
	}

	rules := make([]*types.ForgeRule, 0, len(keys))
	for _, key := range keys {
		rule, err := s.Get(ctx, key)
		if err != nil {
			return nil, errors.WrapTransient(err, "rulestore", "List",
				fmt.Sprintf("get rule %s", key))
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ListEnabled retrieves enabled rules, optionally scoped to one owner.
// An empty userID means all owners; the scheduler uses that for cron
// ticks, which fan out across every user.
func (s *Store) ListEnabled(ctx context.Context, userID string) ([]*types.ForgeRule, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	rules := make([]*types.ForgeRule, 0, len(all))
	for _, rule := range all {
		if !rule.Enabled {
			continue
		}
		if userID != "" && rule.UserID != userID {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
