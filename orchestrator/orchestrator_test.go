package orchestrator

import (
	"testing"

	"posprint/eventhub"
	"posprint/printerstore"
	"posprint/queue"
	"posprint/status"
	"posprint/transport"
)

type fakeTransport struct {
	connected bool
	sendErr   error
	sent      [][]byte
}

func (f *fakeTransport) Connect() error                        { f.connected = true; return nil }
func (f *fakeTransport) Disconnect() error                      { f.connected = false; return nil }
func (f *fakeTransport) IsConnected() bool                      { return f.connected }
func (f *fakeTransport) GetStatus() transport.Status {
	if f.connected {
		return transport.Status{State: transport.StateConnected}
	}
	return transport.Status{State: transport.StateDisconnected}
}
func (f *fakeTransport) Send(data []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, data)
	return nil
}
func (f *fakeTransport) OnDisconnect(transport.DisconnectCallback) {}
func (f *fakeTransport) OnError(transport.ErrorCallback)           {}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeTransport, string) {
	t.Helper()

	cs, err := printerstore.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("opening printer store: %v", err)
	}
	t.Cleanup(func() { cs.Close() })

	qs, err := queue.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("opening queue store: %v", err)
	}
	t.Cleanup(func() { qs.Close() })

	cfg, err := cs.Save(printerstore.NewPrinterConfig{
		Name: "Front Counter",
		Type: printerstore.TypeNetwork,
		ConnectionDetails: printerstore.ConnectionDetails{
			Tag: printerstore.TypeNetwork, IP: "10.0.0.5", Port: 9100,
		},
		PaperSize:    printerstore.Paper80mm,
		CharacterSet: "CP437",
		Role:         printerstore.RoleReceipt,
		IsDefault:    true,
		Enabled:      true,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	opts := DefaultOptions()
	opts.AutoConnect = false
	opts.AutoStartProcessing = false

	hub := eventhub.New()
	o := New(cs, qs, hub, nil, opts)
	if err := o.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	ft := &fakeTransport{connected: true}
	o.mu.Lock()
	o.runtimes[cfg.ID].transport = ft
	o.mu.Unlock()
	o.monitor.UpdatePrinterState(cfg.ID, status.StateOnline, "", "")

	return o, ft, cfg.ID
}

func TestSubmitAndProcessSucceeds(t *testing.T) {
	o, ft, printerID := newTestOrchestrator(t)

	result := o.SubmitPrintJob(queue.PrintJob{
		Type: queue.JobTest,
		Data: queue.JobData{IsRaw: true, Raw: []byte("hello")},
	})
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.JobID == "" {
		t.Fatal("expected an assigned job id when the caller omits one")
	}
	if result.PrinterID != printerID {
		t.Fatalf("expected printerId %s, got %s", printerID, result.PrinterID)
	}

	o.tick()

	if len(ft.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(ft.sent))
	}

	stats, err := o.queueStore.GetRecentJobStats(printerID, 10)
	if err != nil {
		t.Fatalf("GetRecentJobStats: %v", err)
	}
	if stats.Successful != 1 {
		t.Fatalf("expected 1 successful job, got %+v", stats)
	}
}

// A transport that always fails drives the job to failed after 3
// retries, and jobFailed fires exactly once.
func TestRetryThenFailEmitsJobFailedOnce(t *testing.T) {
	o, ft, printerID := newTestOrchestrator(t)
	ft.sendErr = errConnectionTimeout{}

	failedEvents := 0
	unsubscribe := o.hub.Subscribe("jobFailed", func(eventhub.Event) { failedEvents++ })
	defer unsubscribe()

	result := o.SubmitPrintJob(queue.PrintJob{
		Type: queue.JobReceipt,
		Data: queue.JobData{IsRaw: true, Raw: []byte("x")},
	})
	if !result.Success {
		t.Fatalf("submit failed: %s", result.Error)
	}

	for i := 0; i < 4; i++ {
		o.tick()
	}

	if failedEvents != 1 {
		t.Fatalf("expected exactly 1 jobFailed event, got %d", failedEvents)
	}

	stats, err := o.queueStore.GetRecentJobStats(printerID, 10)
	if err != nil {
		t.Fatalf("GetRecentJobStats: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("expected 1 failed job in history, got %+v", stats)
	}

	if _, err := o.queueStore.GetJob(result.JobID); err == nil {
		t.Fatal("expected job removed from the live queue after terminal failure")
	}
}

type errConnectionTimeout struct{}

func (errConnectionTimeout) Error() string { return "connection timeout" }

func TestCancelOnlyAdmissibleWhilePending(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	result := o.SubmitPrintJob(queue.PrintJob{
		Type: queue.JobReceipt,
		Data: queue.JobData{IsRaw: true, Raw: []byte("x")},
	})
	if !result.Success {
		t.Fatalf("submit failed: %s", result.Error)
	}

	if err := o.CancelPrintJob(result.JobID); err != nil {
		t.Fatalf("expected cancel to succeed while pending: %v", err)
	}

	if _, err := o.queueStore.GetJob(result.JobID); err == nil {
		t.Fatal("expected job removed after cancel")
	}
}

func TestCancelFailsOncePrinting(t *testing.T) {
	o, _, printerID := newTestOrchestrator(t)

	result := o.SubmitPrintJob(queue.PrintJob{
		Type: queue.JobReceipt,
		Data: queue.JobData{IsRaw: true, Raw: []byte("x")},
	})
	if !result.Success {
		t.Fatalf("submit failed: %s", result.Error)
	}

	if _, err := o.queueStore.Dequeue(printerID); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}

	if err := o.CancelPrintJob(result.JobID); err != queue.ErrNotCancelable {
		t.Fatalf("expected ErrNotCancelable, got %v", err)
	}
}

// A kitchen ticket submitted without an id still gets a stable identity:
// the result's JobID matches every split's originalJobId metadata.
func TestSubmitSplitTicketAssignsOriginalJobID(t *testing.T) {
	o, _, printerID := newTestOrchestrator(t)
	o.router.SetCategoryRoute("food", printerID)
	o.router.SetCategoryRoute("drinks", printerID)

	result := o.SubmitPrintJob(queue.PrintJob{
		Type: queue.JobKitchen,
		Data: queue.JobData{Structured: []byte(`{"items":[{"category":"food"},{"category":"drinks"}]}`)},
	})
	if !result.Success {
		t.Fatalf("submit failed: %s", result.Error)
	}
	if result.JobID == "" {
		t.Fatal("expected an assigned job id for the original submission")
	}

	queued, err := o.queueStore.GetQueuedJobs(printerID)
	if err != nil {
		t.Fatalf("GetQueuedJobs: %v", err)
	}
	if len(queued) != 2 {
		t.Fatalf("expected 2 split jobs queued, got %d", len(queued))
	}
	for _, qj := range queued {
		if qj.Metadata["originalJobId"] != result.JobID {
			t.Errorf("expected originalJobId %s, got %v", result.JobID, qj.Metadata["originalJobId"])
		}
	}
}

func TestPrintSendsImmediately(t *testing.T) {
	o, ft, printerID := newTestOrchestrator(t)

	if err := o.TestPrint(printerID); err != nil {
		t.Fatalf("TestPrint: %v", err)
	}
	if len(ft.sent) != 1 {
		t.Fatalf("expected 1 immediate send, got %d", len(ft.sent))
	}
}

func TestSettingsExportImportRoundTrip(t *testing.T) {
	o, _, printerID := newTestOrchestrator(t)

	doc, err := o.ExportSettings()
	if err != nil {
		t.Fatalf("ExportSettings: %v", err)
	}
	if len(doc.Printers) != 1 {
		t.Fatalf("expected 1 exported printer, got %d", len(doc.Printers))
	}

	o2, _, _ := newTestOrchestrator(t)
	n, err := o2.ImportSettings(doc, true)
	if err != nil {
		t.Fatalf("ImportSettings: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 imported printer, got %d", n)
	}
	got, err := o2.configStore.Get(printerID)
	if err != nil {
		t.Fatalf("expected imported config to keep its id: %v", err)
	}
	if got.Name != "Front Counter" {
		t.Errorf("unexpected imported config: %+v", got)
	}
}

func TestRemovePrinterDisconnectsTransport(t *testing.T) {
	o, ft, printerID := newTestOrchestrator(t)

	if err := o.RemovePrinter(printerID); err != nil {
		t.Fatalf("RemovePrinter: %v", err)
	}
	if ft.connected {
		t.Error("expected transport to be disconnected on removal")
	}
	if _, err := o.configStore.Get(printerID); err == nil {
		t.Error("expected config removed")
	}
}
