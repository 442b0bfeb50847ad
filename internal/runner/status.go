package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Status string

const (
	StatusUnknown Status = ""
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

const TrialStatusKey = "fuzzeval:trial_status:%s"

// StatusStore records the state of each trial so that an interrupted
// experiment can be resumed.
type StatusStore interface {
	Get(ctx context.Context, trialID string) (Status, error)
	Set(ctx context.Context, trialID string, status Status) error
}

type redisStatusStore struct {
	client *redis.Client
	runID  string
}

// NewStatusStore stores statuses as redis hashes tagged with runID. A nil
// client yields a store that remembers nothing.
func NewStatusStore(client *redis.Client, runID string) StatusStore {
	if client == nil {
		return nopStatusStore{}
	}
	return &redisStatusStore{client: client, runID: runID}
}

func (s *redisStatusStore) Get(ctx context.Context, trialID string) (Status, error) {
	val, err := s.client.HGet(ctx, fmt.Sprintf(TrialStatusKey, trialID), "status").Result()
	if errors.Is(err, redis.Nil) {
		return StatusUnknown, nil
	}
	if err != nil {
		return StatusUnknown, fmt.Errorf("failed to get status of %s: %w", trialID, err)
	}
	return Status(val), nil
}

func (s *redisStatusStore) Set(ctx context.Context, trialID string, status Status) error {
	err := s.client.HSet(ctx, fmt.Sprintf(TrialStatusKey, trialID),
		"status", string(status),
		"run_id", s.runID,
		"updated_at", time.Now().UTC().Format(time.RFC3339),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set status of %s: %w", trialID, err)
	}
	return nil
}

type nopStatusStore struct{}

func (nopStatusStore) Get(context.Context, string) (Status, error) { return StatusUnknown, nil }
func (nopStatusStore) Set(context.Context, string, Status) error   { return nil }
