package eventhub

import "testing"

func TestSubscribeAndEmit(t *testing.T) {
	h := New()
	var got Event
	calls := 0
	h.Subscribe("jobCompleted", func(e Event) {
		got = e
		calls++
	})

	h.Emit("jobCompleted", map[string]string{"jobId": "j1"})

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if got.Name != "jobCompleted" {
		t.Errorf("expected name jobCompleted, got %s", got.Name)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := New()
	calls := 0
	unsubscribe := h.Subscribe("printerAdded", func(Event) { calls++ })

	h.Emit("printerAdded", nil)
	unsubscribe()
	h.Emit("printerAdded", nil)

	if calls != 1 {
		t.Fatalf("expected 1 call before unsubscribe, got %d", calls)
	}
}

func TestEmitWithNoSubscribersDoesNotPanic(t *testing.T) {
	h := New()
	h.Emit("jobFailed", nil)
}

func TestConnCountStartsAtZero(t *testing.T) {
	h := New()
	if h.ConnCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", h.ConnCount())
	}
}
