package dispatch

import (
	"sync"
	"testing"
)

func TestDispatcher_RunAllFIFO(t *testing.T) {
	t.Parallel()
	d := New()

	var got []int
	for i := range 4 {
		d.Enqueue(func() { got = append(got, i) })
	}
	if n := d.RunAll(); n != 4 {
		t.Fatalf("RunAll = %d, want 4", n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v, want ascending", got)
		}
	}
	if d.Len() != 0 {
		t.Errorf("Len after RunAll = %d, want 0", d.Len())
	}
}

func TestDispatcher_ReentrantEnqueueWaits(t *testing.T) {
	t.Parallel()
	d := New()

	second := false
	d.Enqueue(func() {
		d.Enqueue(func() { second = true })
	})

	if n := d.RunAll(); n != 1 {
		t.Fatalf("first RunAll = %d, want 1", n)
	}
	if second {
		t.Fatal("closure enqueued during RunAll ran in the same call")
	}
	if d.Len() != 1 {
		t.Fatalf("Len = %d, want 1", d.Len())
	}
	if n := d.RunAll(); n != 1 || !second {
		t.Errorf("second RunAll = %d (ran=%v), want 1 (true)", n, second)
	}
}

func TestDispatcher_PanicDoesNotStopBatch(t *testing.T) {
	t.Parallel()
	d := New()

	after := false
	d.Enqueue(func() { panic("boom") })
	d.Enqueue(func() { after = true })
	if n := d.RunAll(); n != 2 {
		t.Errorf("RunAll = %d, want 2", n)
	}
	if !after {
		t.Error("closure after panic did not run")
	}
}

func TestDispatcher_EmptyRunAll(t *testing.T) {
	t.Parallel()
	if n := New().RunAll(); n != 0 {
		t.Errorf("RunAll on empty = %d, want 0", n)
	}
}

func TestDispatcher_ConcurrentProducers(t *testing.T) {
	t.Parallel()
	d := New()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 250 {
				d.Enqueue(func() {})
			}
		}()
	}
	wg.Wait()
	if n := d.RunAll(); n != 1000 {
		t.Errorf("RunAll = %d, want 1000", n)
	}
}
