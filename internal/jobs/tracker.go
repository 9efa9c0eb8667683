// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package jobs records progress and cancellation requests for long-running
// batch jobs (catalog sync, embedding generation, recommendation runs) in
// BadgerDB, so progress survives restarts and can be inspected while a job
// is running.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/metrics"
)

const jobKeyPrefix = "job:"

// Status is the lifecycle state of a job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

var (
	// ErrJobNotFound is returned for unknown or expired job ids.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobFinished is returned when updating a job in a terminal state.
	ErrJobFinished = errors.New("job already finished")
)

// Job is a persisted job record.
type Job struct {
	ID              string     `json:"id"`
	Kind            string     `json:"kind"`
	UserID          string     `json:"user_id,omitempty"`
	Status          Status     `json:"status"`
	Processed       int        `json:"processed"`
	Total           int        `json:"total"`
	Failed          int        `json:"failed"`
	Message         string     `json:"message,omitempty"`
	CancelRequested bool       `json:"cancel_requested"`
	StartedAt       time.Time  `json:"started_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// Reporter is the progress side channel batch jobs report to.
type Reporter interface {
	Start(ctx context.Context, kind, userID string, total int) (*Job, error)
	Progress(ctx context.Context, id string, processed, failed int) error
	SetTotal(ctx context.Context, id string, total int) error
	Complete(ctx context.Context, id, message string) error
	Fail(ctx context.Context, id string, cause error) error
	Cancel(ctx context.Context, id, message string) error
	CancelRequested(ctx context.Context, id string) (bool, error)
}

var _ Reporter = (*Tracker)(nil)

// Job kinds.
const (
	KindCatalogSync    = "catalog_sync"
	KindHistorySync    = "history_sync"
	KindEmbedding      = "embedding"
	KindRecommendation = "recommendation"
)

// Tracker stores jobs in BadgerDB. Finished jobs expire after the retention
// period.
type Tracker struct {
	db        *badger.DB
	ownsDB    bool
	retention time.Duration
	now       func() time.Time

	// mu serializes read-modify-write cycles so concurrent progress updates
	// for the same job never hit a transaction conflict.
	mu sync.Mutex
}

// Open opens (or creates) the job store described by cfg.
func Open(cfg config.JobsConfig) (*Tracker, error) {
	var opts badger.Options
	if cfg.InMemory || cfg.Path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
		opts.ValueLogFileSize = 16 << 20
		opts.SyncWrites = true
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for jobs: %w", err)
	}

	t := NewTrackerFromDB(db, cfg.Retention)
	t.ownsDB = true
	return t, nil
}

// NewTrackerFromDB wraps an existing BadgerDB handle. Close will not close it.
func NewTrackerFromDB(db *badger.DB, retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &Tracker{
		db:        db,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Close releases the store if the tracker opened it.
func (t *Tracker) Close() error {
	if t.ownsDB {
		return t.db.Close()
	}
	return nil
}

// Start creates a running job.
func (t *Tracker) Start(ctx context.Context, kind, userID string, total int) (*Job, error) {
	now := t.now()
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    userID,
		Status:    StatusRunning,
		Total:     total,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := t.put(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Progress records the processed and failed counts after a batch.
func (t *Tracker) Progress(ctx context.Context, id string, processed, failed int) error {
	return t.mutate(id, func(j *Job) error {
		if j.Status.Terminal() {
			return ErrJobFinished
		}
		j.Processed = processed
		j.Failed = failed
		if processed > j.Total {
			j.Total = processed
		}
		return nil
	})
}

// SetTotal updates the expected item count.
func (t *Tracker) SetTotal(ctx context.Context, id string, total int) error {
	return t.mutate(id, func(j *Job) error {
		j.Total = total
		return nil
	})
}

// Complete marks the job completed.
func (t *Tracker) Complete(ctx context.Context, id, message string) error {
	return t.finish(id, StatusCompleted, message)
}

// Fail marks the job failed with err's message.
func (t *Tracker) Fail(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return t.finish(id, StatusFailed, msg)
}

// Cancel marks the job canceled. Runners call it after observing a cancel
// request between batches.
func (t *Tracker) Cancel(ctx context.Context, id, message string) error {
	return t.finish(id, StatusCanceled, message)
}

// RequestCancel flags a running job for cooperative cancellation.
func (t *Tracker) RequestCancel(ctx context.Context, id string) error {
	return t.mutate(id, func(j *Job) error {
		if j.Status.Terminal() {
			return ErrJobFinished
		}
		j.CancelRequested = true
		return nil
	})
}

// CancelRequested reports whether RequestCancel was called for id.
func (t *Tracker) CancelRequested(ctx context.Context, id string) (bool, error) {
	job, err := t.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return job.CancelRequested, nil
}

// Get returns a job by id.
func (t *Tracker) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(jobKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &job)
		})
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns jobs of kind (all kinds when empty), newest first.
func (t *Tracker) List(ctx context.Context, kind string) ([]*Job, error) {
	var jobs []*Job
	err := t.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(jobKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var job Job
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &job)
			}); err != nil {
				return err
			}
			if kind == "" || job.Kind == kind {
				jobs = append(jobs, &job)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	sort.SliceStable(jobs, func(i, k int) bool {
		return jobs[i].StartedAt.After(jobs[k].StartedAt)
	})
	return jobs, nil
}

func (t *Tracker) finish(id string, status Status, message string) error {
	var kind string
	err := t.mutate(id, func(j *Job) error {
		if j.Status.Terminal() {
			return ErrJobFinished
		}
		now := t.now()
		j.Status = status
		j.Message = message
		j.FinishedAt = &now
		kind = j.Kind
		return nil
	})
	if err == nil {
		metrics.RecordJobFinished(kind, string(status))
	}
	return err
}

func (t *Tracker) mutate(id string, fn func(*Job) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.Get(context.Background(), id)
	if err != nil {
		return err
	}
	if err := fn(job); err != nil {
		return err
	}
	job.UpdatedAt = t.now()
	return t.put(job)
}

func (t *Tracker) put(job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	return t.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(jobKeyPrefix+job.ID), data)
		if job.Status.Terminal() {
			e = e.WithTTL(t.retention)
		}
		return txn.SetEntry(e)
	})
}
