// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package jobs

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestGuard_TryAcquire(t *testing.T) {
	g := NewGuard()

	release, ok := g.TryAcquire("u1")
	if !ok {
		t.Fatal("first acquire failed")
	}
	if _, ok := g.TryAcquire("u1"); ok {
		t.Error("second acquire of held key succeeded")
	}
	if _, ok := g.TryAcquire("u2"); !ok {
		t.Error("acquire of other key failed")
	}

	release()
	release()
	if g.Active("u1") {
		t.Error("u1 still active after release")
	}
	if _, ok := g.TryAcquire("u1"); !ok {
		t.Error("acquire after release failed")
	}
}

func TestGuard_Concurrent(t *testing.T) {
	g := NewGuard()
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := g.TryAcquire("same"); ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("winners = %d, want 1", wins.Load())
	}
}
