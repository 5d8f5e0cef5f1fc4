package queue

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func jobAt(t *testing.T, offset time.Duration, priority int) PrintJob {
	return PrintJob{
		Type:      JobReceipt,
		Data:      JobData{IsRaw: true, Raw: []byte("test")},
		Priority:  priority,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(offset),
	}
}

// Three equal-priority jobs drain in enqueue order, then dequeue
// returns ErrNotFound.
func TestFIFODrain(t *testing.T) {
	s := newTestStore(t)

	r1, err := s.Enqueue(jobAt(t, 0, 0), "P")
	if err != nil {
		t.Fatalf("enqueue r1: %v", err)
	}
	r2, err := s.Enqueue(jobAt(t, time.Second, 0), "P")
	if err != nil {
		t.Fatalf("enqueue r2: %v", err)
	}
	r3, err := s.Enqueue(jobAt(t, 2*time.Second, 0), "P")
	if err != nil {
		t.Fatalf("enqueue r3: %v", err)
	}

	for _, want := range []string{r1, r2, r3} {
		got, err := s.Dequeue("P")
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if got.ID != want {
			t.Fatalf("expected %s, got %s", want, got.ID)
		}
	}

	if _, err := s.Dequeue("P"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on 4th dequeue, got %v", err)
	}
}

// A later, higher-priority job jumps ahead of an earlier, lower-priority
// one.
func TestPriorityJump(t *testing.T) {
	s := newTestStore(t)

	a, _ := s.Enqueue(jobAt(t, 0, 0), "P")
	b, _ := s.Enqueue(jobAt(t, time.Second, 5), "P")

	first, err := s.Dequeue("P")
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if first.ID != b {
		t.Fatalf("expected B first, got %s", first.ID)
	}

	second, err := s.Dequeue("P")
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if second.ID != a {
		t.Fatalf("expected A second, got %s", second.ID)
	}
}

func TestPeekDoesNotMutate(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.Enqueue(jobAt(t, 0, 0), "P")

	head, err := s.Peek("P")
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if head.ID != id || head.Status != StatusPending {
		t.Fatalf("expected pending head %s, got %+v", id, head)
	}

	again, err := s.Peek("P")
	if err != nil {
		t.Fatalf("second Peek: %v", err)
	}
	if again.Status != StatusPending {
		t.Fatalf("expected peek to leave the job pending, got %s", again.Status)
	}
}

func TestDequeueTransitionsToPrinting(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.Enqueue(jobAt(t, 0, 0), "P")
	job, err := s.Dequeue("P")
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job.ID != id {
		t.Fatalf("unexpected job id %s", job.ID)
	}
	if job.Status != StatusPrinting {
		t.Errorf("expected status printing, got %s", job.Status)
	}
	if job.StartedAt == nil {
		t.Error("expected startedAt to be set")
	}
}

// A printing job is observable as pending with startedAt=nil from a
// second store instance after reset.
func TestCrashRecovery(t *testing.T) {
	path := t.TempDir() + "/queue.db"

	s1, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open first store: %v", err)
	}
	id, err := s1.Enqueue(jobAt(t, 0, 0), "P")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := s1.Dequeue("P"); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	s1.Close()

	s2, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open second store: %v", err)
	}
	defer s2.Close()

	if _, err := s2.ResetPrintingJobs(); err != nil {
		t.Fatalf("ResetPrintingJobs: %v", err)
	}

	pending, err := s2.GetPendingJobs()
	if err != nil {
		t.Fatalf("GetPendingJobs: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("expected job %s pending, got %+v", id, pending)
	}
	if pending[0].StartedAt != nil {
		t.Errorf("expected startedAt cleared, got %v", pending[0].StartedAt)
	}
}

// After MarkComplete/MarkFailed the job is absent from the queue and
// present exactly once in history.
func TestTerminalAtomicity(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.Enqueue(jobAt(t, 0, 0), "P")
	if _, err := s.Dequeue("P"); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := s.MarkComplete(id); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}

	if _, err := s.GetJob(id); err != ErrNotFound {
		t.Fatalf("expected job removed from queue, got err=%v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM print_job_history WHERE id = ? AND status = 'completed'`, id).Scan(&count); err != nil {
		t.Fatalf("querying history: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 history row, got %d", count)
	}
}

func TestRetryThenFail(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.Enqueue(jobAt(t, 0, 0), "P")

	for i := 0; i < 3; i++ {
		if _, err := s.Dequeue("P"); err != nil {
			t.Fatalf("dequeue attempt %d: %v", i, err)
		}
		if err := s.SetLastError(id, "connection timeout"); err != nil {
			t.Fatalf("SetLastError: %v", err)
		}
		count, err := s.IncrementRetry(id)
		if err != nil {
			t.Fatalf("IncrementRetry: %v", err)
		}
		if count != i+1 {
			t.Fatalf("expected retryCount %d, got %d", i+1, count)
		}
	}

	job, err := s.Dequeue("P")
	if err != nil {
		t.Fatalf("final dequeue: %v", err)
	}
	if job.RetryCount != 3 {
		t.Fatalf("expected retryCount 3, got %d", job.RetryCount)
	}

	if err := s.MarkFailed(id, "connection timeout"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	var status string
	var retryCount int
	if err := s.db.QueryRow(`SELECT status, retry_count FROM print_job_history WHERE id = ?`, id).Scan(&status, &retryCount); err != nil {
		t.Fatalf("querying history: %v", err)
	}
	if status != string(StatusFailed) || retryCount != 3 {
		t.Fatalf("expected failed/3, got %s/%d", status, retryCount)
	}
}

func TestResetPrintingJobsNoOpWhenNonePrinting(t *testing.T) {
	s := newTestStore(t)
	s.Enqueue(jobAt(t, 0, 0), "P")

	n, err := s.ResetPrintingJobs()
	if err != nil {
		t.Fatalf("ResetPrintingJobs: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 rows reset, got %d", n)
	}
}

func TestGetQueueLengthFilters(t *testing.T) {
	s := newTestStore(t)
	s.Enqueue(jobAt(t, 0, 0), "P1")
	s.Enqueue(jobAt(t, time.Second, 0), "P1")
	s.Enqueue(jobAt(t, 2*time.Second, 0), "P2")

	n, err := s.GetQueueLength("P1", StatusPending)
	if err != nil {
		t.Fatalf("GetQueueLength: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 pending jobs for P1, got %d", n)
	}

	total, err := s.GetQueueLength("", "")
	if err != nil {
		t.Fatalf("GetQueueLength (all): %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 jobs total, got %d", total)
	}
}

func TestGetRecentJobStats(t *testing.T) {
	s := newTestStore(t)

	id1, _ := s.Enqueue(jobAt(t, 0, 0), "P")
	s.Dequeue("P")
	s.MarkComplete(id1)

	id2, _ := s.Enqueue(jobAt(t, time.Second, 0), "P")
	s.Dequeue("P")
	s.MarkFailed(id2, "boom")

	stats, err := s.GetRecentJobStats("P", 100)
	if err != nil {
		t.Fatalf("GetRecentJobStats: %v", err)
	}
	if stats.Total != 2 || stats.Successful != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	history, err := s.GetJobHistory("P", 10)
	if err != nil {
		t.Fatalf("GetJobHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	for _, e := range history {
		if e.CompletedAt.IsZero() {
			t.Errorf("expected a completedAt on history entry %s", e.ID)
		}
		if e.ID == id2 && e.LastError != "boom" {
			t.Errorf("expected failed entry to carry its error, got %q", e.LastError)
		}
	}
}
