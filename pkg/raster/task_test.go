package raster

import (
	"sync/atomic"
	"testing"
)

func TestTaskSystemRunsAllPartitions(t *testing.T) {
	ts := NewTaskSystem(4)
	ts.Start()
	defer ts.Shutdown()

	const total = 1000
	var seen [total]int32
	var counter int64

	ts.Push(func(threadIdx, start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
	}, total, 17, &counter)

	ts.WaitForCounter(&counter)

	for i, v := range seen {
		if v != 1 {
			t.Fatalf("index %d ran %d times, want 1", i, v)
		}
	}
}

func TestTaskSystemNumThreads(t *testing.T) {
	ts := NewTaskSystem(3)
	if got := ts.NumThreads(); got != 4 {
		t.Fatalf("NumThreads() = %d, want 4 (3 workers + submitter)", got)
	}

	ts2 := NewTaskSystem(0)
	if got := ts2.NumThreads(); got < 2 {
		t.Fatalf("NumThreads() = %d, want at least 2 (GOMAXPROCS fallback)", got)
	}
}

func TestTaskSystemPanicPropagates(t *testing.T) {
	ts := NewTaskSystem(2)
	ts.Start()
	defer ts.Shutdown()

	var counter int64
	ts.Push(func(threadIdx, start, end int) {
		panic("boom")
	}, 1, 1, &counter)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected WaitForCounter to re-panic")
		}
		if r.(string) != "boom" {
			t.Fatalf("recovered %v, want \"boom\"", r)
		}
	}()
	ts.WaitForCounter(&counter)
	t.Fatal("unreachable")
}

func TestTaskSystemQueueOverflowPanics(t *testing.T) {
	ts := NewTaskSystem(1)
	// Don't Start: packets simply queue up without being drained.

	var counter int64
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected overflow panic")
		}
		if _, ok := r.(*OverflowError); !ok {
			t.Fatalf("recovered %T, want *OverflowError", r)
		}
	}()

	ts.Push(func(threadIdx, start, end int) {}, queueCapacity+1, 1, &counter)
	t.Fatal("unreachable")
}

func TestTaskSystemSubmitterDrainsWhileWaiting(t *testing.T) {
	// Zero workers beyond the submitter: WaitForCounter must run every
	// packet itself or it would block forever.
	ts := NewTaskSystem(0)
	ts.numWorkers = 0
	ts.Start()
	defer ts.Shutdown()

	var counter int64
	var ran int32
	ts.Push(func(threadIdx, start, end int) {
		atomic.AddInt32(&ran, 1)
	}, 50, 5, &counter)

	ts.WaitForCounter(&counter)

	if ran != 10 {
		t.Fatalf("ran = %d packets, want 10", ran)
	}
}
