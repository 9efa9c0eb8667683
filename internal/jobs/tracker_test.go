// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/marquee/internal/config"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewTrackerFromDB(db, time.Hour)
}

func TestTracker_Lifecycle(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	job, err := tr.Start(ctx, "embedding", "", 10)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if job.Status != StatusRunning || job.ID == "" {
		t.Fatalf("job = %+v", job)
	}

	if err := tr.Progress(ctx, job.ID, 5, 1); err != nil {
		t.Fatalf("Progress: %v", err)
	}
	got, err := tr.Get(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Processed != 5 || got.Failed != 1 || got.Total != 10 {
		t.Errorf("after progress = %+v", got)
	}

	if err := tr.Complete(ctx, job.ID, "done"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, _ = tr.Get(ctx, job.ID)
	if got.Status != StatusCompleted || got.FinishedAt == nil || got.Message != "done" {
		t.Errorf("after complete = %+v", got)
	}

	if err := tr.Progress(ctx, job.ID, 6, 1); !errors.Is(err, ErrJobFinished) {
		t.Errorf("Progress after complete = %v, want ErrJobFinished", err)
	}
	if err := tr.Fail(ctx, job.ID, errors.New("late")); !errors.Is(err, ErrJobFinished) {
		t.Errorf("Fail after complete = %v, want ErrJobFinished", err)
	}
}

func TestTracker_ProgressRaisesTotal(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	job, _ := tr.Start(ctx, "catalog", "", 0)
	if err := tr.Progress(ctx, job.ID, 100, 0); err != nil {
		t.Fatal(err)
	}
	got, _ := tr.Get(ctx, job.ID)
	if got.Total != 100 {
		t.Errorf("Total = %d, want 100", got.Total)
	}
}

func TestTracker_CancelRequest(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	job, _ := tr.Start(ctx, "embedding", "", 0)

	requested, err := tr.CancelRequested(ctx, job.ID)
	if err != nil || requested {
		t.Fatalf("CancelRequested = %v, %v, want false", requested, err)
	}
	if err := tr.RequestCancel(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	requested, _ = tr.CancelRequested(ctx, job.ID)
	if !requested {
		t.Error("CancelRequested = false after RequestCancel")
	}

	if err := tr.Cancel(ctx, job.ID, "canceled between batches"); err != nil {
		t.Fatal(err)
	}
	got, _ := tr.Get(ctx, job.ID)
	if got.Status != StatusCanceled {
		t.Errorf("Status = %s, want canceled", got.Status)
	}
	if err := tr.RequestCancel(ctx, job.ID); !errors.Is(err, ErrJobFinished) {
		t.Errorf("RequestCancel on finished job = %v", err)
	}
}

func TestTracker_FailRecordsMessage(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	job, _ := tr.Start(ctx, "embedding", "", 0)
	if err := tr.Fail(ctx, job.ID, errors.New("missing API key")); err != nil {
		t.Fatal(err)
	}
	got, _ := tr.Get(ctx, job.ID)
	if got.Status != StatusFailed || got.Message != "missing API key" {
		t.Errorf("job = %+v", got)
	}
}

func TestTracker_GetUnknown(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.Get(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get(unknown) = %v, want ErrJobNotFound", err)
	}
	if err := tr.Progress(context.Background(), "nope", 1, 0); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Progress(unknown) = %v, want ErrJobNotFound", err)
	}
}

func TestTracker_ListByKindNewestFirst(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	step := 0
	tr.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}

	first, _ := tr.Start(ctx, "embedding", "", 0)
	_, _ = tr.Start(ctx, "catalog", "", 0)
	second, _ := tr.Start(ctx, "embedding", "", 0)

	jobs, err := tr.List(ctx, "embedding")
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("len = %d, want 2", len(jobs))
	}
	if jobs[0].ID != second.ID || jobs[1].ID != first.ID {
		t.Errorf("order = %s, %s; want newest first", jobs[0].ID, jobs[1].ID)
	}

	all, _ := tr.List(ctx, "")
	if len(all) != 3 {
		t.Errorf("List(all) = %d, want 3", len(all))
	}
}

func TestTracker_ConcurrentProgress(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	job, _ := tr.Start(ctx, "catalog", "", 0)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := tr.Progress(ctx, job.ID, n, 0); err != nil {
				t.Errorf("Progress(%d): %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := tr.Get(ctx, job.ID)
	if got.Processed < 1 || got.Processed > 20 {
		t.Errorf("Processed = %d", got.Processed)
	}
}

func TestOpen_InMemory(t *testing.T) {
	tr, err := Open(config.JobsConfig{InMemory: true, Retention: time.Hour})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	if _, err := tr.Start(context.Background(), "catalog", "", 1); err != nil {
		t.Errorf("Start: %v", err)
	}
}
