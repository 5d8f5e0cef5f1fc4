// Package orchestrator binds the printer catalog, job queue, router,
// status monitor, transports, and the ESC/POS renderer into a
// cooperative processing loop. It also implements the capability
// interfaces the router and status monitor consume, so neither of them
// owns the other.
package orchestrator

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"

	"posprint/discovery"
	"posprint/escpos"
	"posprint/eventhub"
	"posprint/printerstore"
	"posprint/queue"
	"posprint/router"
	"posprint/status"
	"posprint/transport"
)

// maxRetries bounds delivery attempts per job. There is no backoff
// multiplier; the tick cadence is the floor.
const maxRetries = 3

// Logger is the narrow logging surface the orchestrator depends on.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
	WarnRateLimited(key string, interval time.Duration, msg string, context ...interface{})
}

type nopLogger struct{}

func (nopLogger) Error(string, ...interface{})                             {}
func (nopLogger) Warn(string, ...interface{})                              {}
func (nopLogger) Info(string, ...interface{})                              {}
func (nopLogger) Debug(string, ...interface{})                             {}
func (nopLogger) WarnRateLimited(string, time.Duration, string, ...interface{}) {}

// Options mirrors settings.OrchestratorOptions without importing the
// settings package, so orchestrator has no dependency on file I/O.
type Options struct {
	AutoStartProcessing bool
	AutoConnect         bool
	ProcessingInterval  time.Duration
	StatusCheckInterval time.Duration
	MinFirmware         string // optional semver floor, empty disables the check
}

// DefaultOptions returns the standing defaults: auto-connect and
// auto-processing on, a 1s tick, and a 30s status probe.
func DefaultOptions() Options {
	return Options{
		AutoStartProcessing: true,
		AutoConnect:         true,
		ProcessingInterval:  1000 * time.Millisecond,
		StatusCheckInterval: 30 * time.Second,
	}
}

// SubmitResult is what SubmitPrintJob returns to callers.
type SubmitResult struct {
	Success   bool
	JobID     string
	PrinterID string // comma-joined for split jobs
	Error     string
}

// Diagnostics is GetDiagnostics' output shape.
type Diagnostics struct {
	ConnectionType      printerstore.PrinterType
	ConnectionLatencyMs int64
	RecentJobs          queue.JobStats
	FirmwareBelowFloor  bool
}

type printerRuntime struct {
	transport transport.Transport
}

// Orchestrator is the process-wide coordinator. It has an explicit
// Initialize/Shutdown pair and no implicit singleton.
type Orchestrator struct {
	configStore *printerstore.Store
	queueStore  *queue.Store
	router      *router.Router
	monitor     *status.Monitor
	hub         *eventhub.Hub
	log         Logger
	opts        Options

	mu           sync.RWMutex
	runtimes     map[string]*printerRuntime
	isProcessing int32

	ticker   *time.Ticker
	stopTick chan struct{}
}

// New wires the component set together but does not start anything;
// call Initialize to bring the system up.
func New(configStore *printerstore.Store, queueStore *queue.Store, hub *eventhub.Hub, log Logger, opts Options) *Orchestrator {
	if log == nil {
		log = nopLogger{}
	}
	o := &Orchestrator{
		configStore: configStore,
		queueStore:  queueStore,
		router:      router.New(),
		monitor:     status.New(),
		hub:         hub,
		log:         log,
		opts:        opts,
		runtimes:    make(map[string]*printerRuntime),
	}
	o.router.SetStatusProvider(o)
	o.monitor.SetStatusProvider(o)
	o.monitor.SetQueueLengthProvider(o)
	o.monitor.OnStatusChange(o.onStatusChanged)
	return o
}

// roleToJobType maps a printer's role to the job type it serves.
func roleToJobType(role printerstore.Role) queue.JobType {
	switch role {
	case printerstore.RoleReceipt:
		return queue.JobReceipt
	case printerstore.RoleKitchen, printerstore.RoleBar:
		return queue.JobKitchen
	case printerstore.RoleLabel:
		return queue.JobLabel
	default:
		return queue.JobReceipt
	}
}

// Initialize boots the system: load configs and seed routing/status,
// reset crash-interrupted jobs, then optionally auto-connect every
// enabled printer and start the processing loop.
func (o *Orchestrator) Initialize() error {
	configs, err := o.configStore.GetEnabled()
	if err != nil {
		return fmt.Errorf("loading printer configs: %w", err)
	}

	o.mu.Lock()
	for _, cfg := range configs {
		o.runtimes[cfg.ID] = &printerRuntime{}
		o.monitor.UpdatePrinterState(cfg.ID, status.StateOffline, "", "")
		o.router.SetJobTypeRoute(roleToJobType(cfg.Role), cfg.ID)
		if cfg.FallbackPrinterID != nil {
			o.router.SetFallback(cfg.ID, *cfg.FallbackPrinterID)
		}
		if cfg.IsDefault {
			o.router.SetDefaultPrinter(cfg.ID)
		}
	}
	o.mu.Unlock()

	if n, err := o.queueStore.ResetPrintingJobs(); err != nil {
		return fmt.Errorf("resetting printing jobs: %w", err)
	} else if n > 0 {
		o.log.Warn("recovered jobs stuck in printing state", "count", n)
	}

	if o.opts.AutoConnect {
		var wg sync.WaitGroup
		for _, cfg := range configs {
			wg.Add(1)
			go func(cfg printerstore.PrinterConfig) {
				defer wg.Done()
				if err := o.connectPrinter(cfg); err != nil {
					o.log.Warn("auto-connect failed", "printerId", cfg.ID, "error", err.Error())
				}
			}(cfg)
		}
		wg.Wait()
	}

	for _, cfg := range configs {
		o.monitor.StartMonitoring(cfg.ID, o.opts.StatusCheckInterval)
	}

	if o.opts.AutoStartProcessing {
		o.startProcessing()
	}

	return nil
}

func (o *Orchestrator) connectPrinter(cfg printerstore.PrinterConfig) error {
	tr, err := transport.New(cfg)
	if err != nil {
		o.monitor.UpdatePrinterState(cfg.ID, status.StateError, status.ErrorUnknown, err.Error())
		return err
	}

	tr.OnDisconnect(func() {
		o.monitor.UpdatePrinterState(cfg.ID, status.StateOffline, "", "")
	})
	tr.OnError(func(err error) {
		code := status.InferErrorCode(err.Error())
		o.log.WarnRateLimited("transport:"+cfg.ID, time.Minute, "transport error", "printerId", cfg.ID, "error", err.Error())
		o.monitor.UpdatePrinterState(cfg.ID, status.StateError, code, status.ErrorMessage(code))
		if o.hub != nil {
			o.hub.Emit("error", map[string]interface{}{"printerId": cfg.ID, "error": err.Error()})
		}
	})

	o.mu.Lock()
	rt, ok := o.runtimes[cfg.ID]
	if !ok {
		rt = &printerRuntime{}
		o.runtimes[cfg.ID] = rt
	}
	rt.transport = tr
	o.mu.Unlock()

	o.monitor.UpdatePrinterState(cfg.ID, status.StateConnecting, "", "")
	if err := tr.Connect(); err != nil {
		code := status.InferErrorCode(err.Error())
		o.monitor.UpdatePrinterState(cfg.ID, status.StateError, code, status.ErrorMessage(code))
		return err
	}
	o.monitor.UpdatePrinterState(cfg.ID, status.StateOnline, "", "")
	return nil
}

func (o *Orchestrator) onStatusChanged(printerID string, s status.PrinterStatus) {
	if o.hub != nil {
		o.hub.Emit("printerStatusChanged", map[string]interface{}{"printerId": printerID, "status": s})
	}
}

// startProcessing begins the processing timer.
func (o *Orchestrator) startProcessing() {
	interval := o.opts.ProcessingInterval
	if interval <= 0 {
		interval = 1000 * time.Millisecond
	}
	o.ticker = time.NewTicker(interval)
	o.stopTick = make(chan struct{})

	go func() {
		for {
			select {
			case <-o.stopTick:
				return
			case <-o.ticker.C:
				o.tick()
			}
		}
	}()
}

// tick is one processing-loop iteration, guarded against overlap by
// isProcessing: a blocked send delays the next tick, it never overlaps
// it.
func (o *Orchestrator) tick() {
	if !atomic.CompareAndSwapInt32(&o.isProcessing, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&o.isProcessing, 0)

	o.mu.RLock()
	printerIDs := make([]string, 0, len(o.runtimes))
	for id := range o.runtimes {
		printerIDs = append(printerIDs, id)
	}
	o.mu.RUnlock()

	for _, id := range printerIDs {
		s, ok := o.monitor.GetCurrentStatus(id)
		if !ok || s.State != status.StateOnline {
			continue
		}
		o.processOne(id)
	}
}

func (o *Orchestrator) processOne(printerID string) {
	job, err := o.queueStore.Dequeue(printerID)
	if err == queue.ErrNotFound {
		return
	}
	if err != nil {
		o.log.Error("dequeue failed", "printerId", printerID, "error", err.Error())
		return
	}

	cfg, err := o.configStore.Get(printerID)
	if err != nil {
		o.handleJobFailure(job.ID, fmt.Errorf("printer config missing: %w", err))
		return
	}

	data := job.Data.Raw
	if !job.Data.IsRaw {
		data, err = o.render(job, cfg)
		if err != nil {
			o.handleJobFailure(job.ID, fmt.Errorf("rendering job: %w", err))
			return
		}
	}

	o.mu.RLock()
	rt := o.runtimes[printerID]
	o.mu.RUnlock()
	if rt == nil || rt.transport == nil {
		o.handleJobFailure(job.ID, fmt.Errorf("printer %s has no active transport", printerID))
		return
	}

	if err := rt.transport.Send(data); err != nil {
		o.handleJobFailure(job.ID, err)
		return
	}

	if err := o.queueStore.MarkComplete(job.ID); err != nil {
		o.log.Error("markComplete failed", "jobId", job.ID, "error", err.Error())
		return
	}
	if o.hub != nil {
		o.hub.Emit("jobCompleted", map[string]interface{}{"jobId": job.ID, "printerId": printerID})
	}
}

func (o *Orchestrator) render(job queue.QueuedJob, cfg printerstore.PrinterConfig) ([]byte, error) {
	renderer := escpos.New(cfg.PaperSize)
	switch job.Type {
	case queue.JobReceipt:
		var data escpos.ReceiptData
		if err := decodeStructured(job.Data, &data); err != nil {
			return nil, err
		}
		return renderer.GenerateReceipt(data), nil
	case queue.JobKitchen:
		var data escpos.KitchenTicketData
		if err := decodeStructured(job.Data, &data); err != nil {
			return nil, err
		}
		return renderer.GenerateKitchenTicket(data), nil
	case queue.JobTest:
		return renderer.GenerateTestPrint(cfg.Name), nil
	default:
		return renderer.GenerateFallback(fmt.Sprintf("%s job for %s", job.Type, cfg.Name)), nil
	}
}

func decodeStructured(data queue.JobData, out interface{}) error {
	if len(data.Structured) == 0 {
		return nil
	}
	return jsonUnmarshal(data.Structured, out)
}

// handleJobFailure applies the retry policy: record the error, requeue
// while retryCount < maxRetries, otherwise mark failed and emit
// jobFailed.
func (o *Orchestrator) handleJobFailure(jobID string, cause error) {
	_ = o.queueStore.SetLastError(jobID, cause.Error())

	job, err := o.queueStore.GetJob(jobID)
	if err != nil {
		o.log.Error("job disappeared during failure handling", "jobId", jobID, "error", err.Error())
		return
	}

	if job.RetryCount < maxRetries {
		if _, err := o.queueStore.IncrementRetry(jobID); err != nil {
			o.log.Error("incrementRetry failed", "jobId", jobID, "error", err.Error())
		}
		return
	}

	if err := o.queueStore.MarkFailed(jobID, cause.Error()); err != nil {
		o.log.Error("markFailed failed", "jobId", jobID, "error", err.Error())
		return
	}
	if o.hub != nil {
		o.hub.Emit("jobFailed", map[string]interface{}{"jobId": jobID, "error": cause.Error()})
	}
}

// IsAvailable implements router.PrinterStatusProvider.
func (o *Orchestrator) IsAvailable(printerID string) bool {
	s, ok := o.monitor.GetCurrentStatus(printerID)
	if !ok {
		return false
	}
	return s.State == status.StateOnline || s.State == status.StateBusy
}

// CheckStatus implements status.StatusCheckProvider: probes the live
// transport's connectivity. Transports without a richer probe (e.g. the
// Bluetooth/USB stand-ins) report based on IsConnected alone; network
// printers opportunistically layer an SNMP probe when one succeeds,
// feeding a detected Printer-MIB error state through the same
// message-based inference path transport errors use.
func (o *Orchestrator) CheckStatus(printerID string) (status.PrinterStatus, error) {
	o.mu.RLock()
	rt := o.runtimes[printerID]
	o.mu.RUnlock()
	if rt == nil || rt.transport == nil {
		return status.PrinterStatus{PrinterID: printerID, State: status.StateOffline}, nil
	}

	s := rt.transport.GetStatus()
	if s.State != transport.StateConnected {
		code := status.ErrorUnknown
		if s.LastError != "" {
			code = status.InferErrorCode(s.LastError)
		}
		return status.PrinterStatus{
			PrinterID: printerID, State: status.StateOffline, ErrorCode: code, ErrorMessage: s.LastError,
		}, nil
	}

	if cfg, err := o.configStore.Get(printerID); err == nil {
		if cfg.Type == printerstore.TypeNetwork || cfg.Type == printerstore.TypeWifi {
			if probe, err := transport.SNMPProbe(cfg.ConnectionDetails.IP, 2*time.Second); err == nil {
				o.log.Debug("snmp probe", "printerId", printerID, "status", probe.StatusText)
				if probe.DetectedError {
					code := status.InferErrorCode(probe.ErrorMessage)
					return status.PrinterStatus{
						PrinterID: printerID, State: status.StateError,
						ErrorCode: code, ErrorMessage: status.ErrorMessage(code),
					}, nil
				}
			}
		}
	}

	return status.PrinterStatus{PrinterID: printerID, State: status.StateOnline}, nil
}

// QueueLength implements status.QueueLengthProvider.
func (o *Orchestrator) QueueLength(printerID string) int {
	n, err := o.queueStore.GetQueueLength(printerID, "")
	if err != nil {
		return 0
	}
	return n
}

// SubmitPrintJob routes (and for kitchen tickets, splits) a job, then
// persists one queue entry per target printer. For split jobs PrinterID
// in the result is a comma-joined list of targets and JobID is the
// original submission's id, which every split's originalJobId metadata
// points back to.
func (o *Orchestrator) SubmitPrintJob(job queue.PrintJob) SubmitResult {
	// Assign identity before routing so splits reference a real id even
	// when the caller left it blank.
	if job.ID == "" {
		job.ID = queue.NewID()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	splits, unrouted, err := o.router.RouteJobWithSplitting(job)
	if err != nil {
		return SubmitResult{Success: false, Error: err.Error()}
	}
	if len(unrouted) > 0 {
		o.log.Warn("kitchen ticket had unrouted items", "jobId", job.ID, "count", len(unrouted))
	}

	printerIDs := make([]string, 0, len(splits))
	for _, sj := range splits {
		if _, err := o.queueStore.Enqueue(sj.Job, sj.PrinterID); err != nil {
			return SubmitResult{Success: false, Error: err.Error()}
		}
		printerIDs = append(printerIDs, sj.PrinterID)
	}

	return SubmitResult{
		Success:   true,
		JobID:     job.ID,
		PrinterID: strings.Join(printerIDs, ","),
	}
}

// CancelPrintJob removes a job from the queue; only pending jobs can be
// canceled.
func (o *Orchestrator) CancelPrintJob(jobID string) error {
	job, err := o.queueStore.GetJob(jobID)
	if err != nil {
		return err
	}
	if job.Status != queue.StatusPending {
		return queue.ErrNotCancelable
	}
	return o.queueStore.RemoveJob(jobID)
}

// RetryPrintJob re-queues a stalled job manually, outside the automatic
// retry policy, putting it back to pending for the next tick.
func (o *Orchestrator) RetryPrintJob(jobID string) error {
	_, err := o.queueStore.IncrementRetry(jobID)
	return err
}

// TestPrint renders a diagnostic page and sends it immediately,
// bypassing the queue for fast feedback. Because it skips the queue, a
// test print can race with a queued job reaching the same device; the
// at-most-one-in-flight rule holds only for queued work.
func (o *Orchestrator) TestPrint(printerID string) error {
	cfg, err := o.configStore.Get(printerID)
	if err != nil {
		return err
	}
	o.mu.RLock()
	rt := o.runtimes[printerID]
	o.mu.RUnlock()
	if rt == nil || rt.transport == nil {
		return fmt.Errorf("printer %s has no active transport", printerID)
	}

	renderer := escpos.New(cfg.PaperSize)
	return rt.transport.Send(renderer.GenerateTestPrint(cfg.Name))
}

// GetDiagnostics measures connection latency via a live probe and
// reports recent job outcomes, flagging printers below MinFirmware.
func (o *Orchestrator) GetDiagnostics(printerID string) (Diagnostics, error) {
	cfg, err := o.configStore.Get(printerID)
	if err != nil {
		return Diagnostics{}, err
	}

	diag := Diagnostics{ConnectionType: cfg.Type}

	o.mu.RLock()
	rt := o.runtimes[printerID]
	o.mu.RUnlock()
	if rt != nil && rt.transport != nil && rt.transport.IsConnected() {
		start := time.Now()
		if err := rt.transport.Send(nil); err == nil {
			diag.ConnectionLatencyMs = time.Since(start).Milliseconds()
		}
	}

	stats, err := o.queueStore.GetRecentJobStats(printerID, 100)
	if err != nil {
		return Diagnostics{}, err
	}
	diag.RecentJobs = stats

	if o.opts.MinFirmware != "" && cfg.Firmware != "" {
		floor, err1 := semver.NewVersion(o.opts.MinFirmware)
		reported, err2 := semver.NewVersion(cfg.Firmware)
		if err1 == nil && err2 == nil {
			diag.FirmwareBelowFloor = reported.LessThan(floor)
		}
	}

	return diag, nil
}

// DiscoverPrinters runs the requested discovery sources in parallel
// (all of them when types is empty), tolerating per-source failures,
// and annotates IsConfigured by comparing each discovered address
// against every known config's address projection.
func (o *Orchestrator) DiscoverPrinters(types []printerstore.PrinterType, timeout time.Duration) ([]discovery.DiscoveredPrinter, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	wanted := func(t printerstore.PrinterType) bool {
		if len(types) == 0 {
			return true
		}
		for _, want := range types {
			if want == t {
				return true
			}
		}
		return false
	}

	known := make(map[string]bool)
	configs, err := o.configStore.GetAll()
	if err != nil {
		return nil, err
	}
	for _, cfg := range configs {
		if addr := discovery.AddressProjection(cfg); addr != "" {
			known[addr] = true
		}
	}

	ctx, cancel := contextWithTimeout(timeout)
	defer cancel()

	type sourceResult struct {
		printers []discovery.DiscoveredPrinter
		err      error
		name     string
	}
	sources := []struct {
		name string
		want bool
		run  func() ([]discovery.DiscoveredPrinter, error)
	}{
		{"network", wanted(printerstore.TypeNetwork) || wanted(printerstore.TypeWifi),
			func() ([]discovery.DiscoveredPrinter, error) { return discovery.DiscoverNetwork(ctx, timeout) }},
		{"bluetooth", wanted(printerstore.TypeBluetooth),
			func() ([]discovery.DiscoveredPrinter, error) { return discovery.DiscoverBluetooth(ctx, timeout) }},
		{"usb", wanted(printerstore.TypeUSB),
			func() ([]discovery.DiscoveredPrinter, error) { return discovery.DiscoverUSB(ctx) }},
	}

	results := make(chan sourceResult, len(sources))
	active := 0
	for _, src := range sources {
		if !src.want {
			continue
		}
		active++
		go func(name string, run func() ([]discovery.DiscoveredPrinter, error)) {
			printers, err := run()
			results <- sourceResult{printers: printers, err: err, name: name}
		}(src.name, src.run)
	}

	var found []discovery.DiscoveredPrinter
	for i := 0; i < active; i++ {
		res := <-results
		if res.err != nil {
			o.log.Warn("discovery source failed", "source", res.name, "error", res.err.Error())
			continue
		}
		found = append(found, res.printers...)
	}

	for i := range found {
		found[i].IsConfigured = known[found[i].Address]
	}
	return found, nil
}

// SettingsDocument is the backup shape for the whole print setup:
// printer configs plus routing tables.
type SettingsDocument struct {
	Printers []printerstore.SerializedConfig `json:"printers"`
	Routing  router.RoutingDocument          `json:"routing"`
}

// ExportSettings produces a backup document of every printer config and
// the current routing tables.
func (o *Orchestrator) ExportSettings() (SettingsDocument, error) {
	printers, err := o.configStore.ExportAll()
	if err != nil {
		return SettingsDocument{}, err
	}
	return SettingsDocument{Printers: printers, Routing: o.router.Export()}, nil
}

// ImportSettings restores a backup document. With replace set the
// existing printer catalog is cleared first; routing sections overwrite
// only the tables present in the document. Returns the number of
// printer configs imported.
func (o *Orchestrator) ImportSettings(doc SettingsDocument, replace bool) (int, error) {
	n, err := o.configStore.ImportAll(doc.Printers, replace)
	if err != nil {
		return 0, err
	}
	o.router.Import(doc.Routing)
	return n, nil
}

// AddPrinter validates and persists a new config, reconciling routing
// and connecting its transport if auto-connect is in effect.
func (o *Orchestrator) AddPrinter(input printerstore.NewPrinterConfig) (printerstore.PrinterConfig, error) {
	cfg, err := o.configStore.Save(input)
	if err != nil {
		return printerstore.PrinterConfig{}, err
	}

	o.mu.Lock()
	o.runtimes[cfg.ID] = &printerRuntime{}
	o.mu.Unlock()

	o.monitor.UpdatePrinterState(cfg.ID, status.StateOffline, "", "")
	o.router.SetJobTypeRoute(roleToJobType(cfg.Role), cfg.ID)
	if cfg.FallbackPrinterID != nil {
		o.router.SetFallback(cfg.ID, *cfg.FallbackPrinterID)
	}
	if cfg.IsDefault {
		o.router.SetDefaultPrinter(cfg.ID)
	}
	o.monitor.StartMonitoring(cfg.ID, o.opts.StatusCheckInterval)

	if o.opts.AutoConnect && cfg.Enabled {
		go o.connectPrinter(cfg)
	}

	if o.hub != nil {
		o.hub.Emit("printerAdded", cfg)
	}
	return cfg, nil
}

// UpdatePrinter applies a patch, reconciling routing and reconnecting
// the transport if connectionDetails changed.
func (o *Orchestrator) UpdatePrinter(id string, patch printerstore.Update) (printerstore.PrinterConfig, error) {
	before, err := o.configStore.Get(id)
	if err != nil {
		return printerstore.PrinterConfig{}, err
	}

	cfg, err := o.configStore.Update(id, patch)
	if err != nil {
		return printerstore.PrinterConfig{}, err
	}

	o.router.SetJobTypeRoute(roleToJobType(cfg.Role), cfg.ID)
	if cfg.FallbackPrinterID != nil {
		o.router.SetFallback(cfg.ID, *cfg.FallbackPrinterID)
	}
	if cfg.IsDefault {
		o.router.SetDefaultPrinter(cfg.ID)
	}

	o.mu.RLock()
	rt := o.runtimes[id]
	o.mu.RUnlock()

	disabled := before.Enabled && !cfg.Enabled
	connectionChanged := patch.ConnectionDetails != nil && before.ConnectionDetails != cfg.ConnectionDetails
	if disabled || connectionChanged {
		if rt != nil && rt.transport != nil {
			rt.transport.Disconnect()
		}
		o.monitor.UpdatePrinterState(id, status.StateOffline, "", "")
	}
	if cfg.Enabled && (connectionChanged || !before.Enabled) && o.opts.AutoConnect {
		go o.connectPrinter(cfg)
	}

	if o.hub != nil {
		o.hub.Emit("printerUpdated", cfg)
	}
	return cfg, nil
}

// RemovePrinter disconnects the transport, stops monitoring, clears
// routing references, and deletes the config.
func (o *Orchestrator) RemovePrinter(id string) error {
	o.mu.Lock()
	rt, ok := o.runtimes[id]
	delete(o.runtimes, id)
	o.mu.Unlock()

	if ok && rt.transport != nil {
		rt.transport.Disconnect()
	}
	o.monitor.StopMonitoring(id)
	o.router.ClearPrinter(id)

	if err := o.configStore.Delete(id); err != nil {
		return err
	}
	if o.hub != nil {
		o.hub.Emit("printerRemoved", map[string]string{"id": id})
	}
	return nil
}

// Shutdown stops the processing timer, monitoring, and every transport,
// logging but not propagating per-transport disconnect errors.
func (o *Orchestrator) Shutdown() {
	if o.ticker != nil {
		o.ticker.Stop()
		close(o.stopTick)
		o.ticker = nil
	}
	o.monitor.Destroy()

	o.mu.Lock()
	defer o.mu.Unlock()
	for id, rt := range o.runtimes {
		if rt.transport != nil {
			if err := rt.transport.Disconnect(); err != nil {
				o.log.Warn("error disconnecting transport on shutdown", "printerId", id, "error", err.Error())
			}
		}
	}
}
