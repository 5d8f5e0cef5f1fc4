// Package status tracks each printer's observable operational state,
// driven by explicit updates from the orchestrator and by a periodic
// probe, with error-code inference and change-event publication.
package status

import (
	"strings"
	"sync"
	"time"
)

// State is a printer's observable operational state.
type State string

const (
	StateOffline    State = "offline"
	StateConnecting State = "connecting"
	StateOnline     State = "online"
	StateBusy       State = "busy"
	StateError      State = "error"
)

// ErrorCode enumerates the printer-reported fault categories.
type ErrorCode string

const (
	ErrorPaperOut       ErrorCode = "paper_out"
	ErrorCoverOpen      ErrorCode = "cover_open"
	ErrorPaperJam       ErrorCode = "paper_jam"
	ErrorCutterError    ErrorCode = "cutter_error"
	ErrorOverheated     ErrorCode = "overheated"
	ErrorConnectionLost ErrorCode = "connection_lost"
	ErrorUnknown        ErrorCode = "unknown"
)

// errorMessages is total over ErrorCode and yields distinct,
// capitalized, period-terminated sentences.
var errorMessages = map[ErrorCode]string{
	ErrorPaperOut:       "Printer is out of paper and needs a new roll.",
	ErrorCoverOpen:      "Printer cover is open and must be closed before printing.",
	ErrorPaperJam:       "Printer has a paper jam that must be cleared.",
	ErrorCutterError:    "Printer's cutter mechanism failed to complete a cut.",
	ErrorOverheated:     "Printer has overheated and needs time to cool down.",
	ErrorConnectionLost: "Connection to the printer was lost or timed out.",
	ErrorUnknown:        "Printer reported an unrecognized fault condition.",
}

// ErrorMessage returns the fixed, user-facing sentence for code.
func ErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return errorMessages[ErrorUnknown]
}

// InferErrorCode classifies a raw printer message using lowercased
// substring heuristics.
func InferErrorCode(raw string) ErrorCode {
	m := strings.ToLower(raw)
	switch {
	case strings.Contains(m, "paper") && (strings.Contains(m, "out") || strings.Contains(m, "empty")):
		return ErrorPaperOut
	case strings.Contains(m, "cover") && strings.Contains(m, "open"):
		return ErrorCoverOpen
	case strings.Contains(m, "jam"):
		return ErrorPaperJam
	case strings.Contains(m, "cutter"):
		return ErrorCutterError
	case strings.Contains(m, "overheat") || strings.Contains(m, "temperature"):
		return ErrorOverheated
	case strings.Contains(m, "connection") || strings.Contains(m, "timeout") || strings.Contains(m, "disconnect"):
		return ErrorConnectionLost
	default:
		return ErrorUnknown
	}
}

// PrinterStatus is the cached view of one printer's state.
type PrinterStatus struct {
	PrinterID    string
	State        State
	ErrorCode    ErrorCode
	ErrorMessage string
	LastSeen     time.Time
	QueueLength  int
}

// StatusCheckProvider is the capability the Orchestrator implements so
// the monitor can run a probe without owning a transport itself.
type StatusCheckProvider interface {
	CheckStatus(printerID string) (PrinterStatus, error)
}

// QueueLengthProvider is the capability the Orchestrator implements so
// probed statuses can be annotated with a live queue depth.
type QueueLengthProvider interface {
	QueueLength(printerID string) int
}

// ChangeCallback receives a printerId and its freshly observed status.
type ChangeCallback func(printerID string, status PrinterStatus)

type monitoredPrinter struct {
	ticker *time.Ticker
	stop   chan struct{}
}

// Monitor drives the per-printer status state machine.
type Monitor struct {
	mu sync.RWMutex

	statusProvider StatusCheckProvider
	queueProvider  QueueLengthProvider

	cache  map[string]PrinterStatus
	timers map[string]*monitoredPrinter

	subsMu      sync.Mutex
	subscribers map[int]ChangeCallback
	nextSubID   int
}

// New creates an empty Monitor. Wire the capability providers with
// SetStatusProvider/SetQueueLengthProvider before calling StartMonitoring.
func New() *Monitor {
	return &Monitor{
		cache:       make(map[string]PrinterStatus),
		timers:      make(map[string]*monitoredPrinter),
		subscribers: make(map[int]ChangeCallback),
	}
}

func (m *Monitor) SetStatusProvider(p StatusCheckProvider) { m.statusProvider = p }

func (m *Monitor) SetQueueLengthProvider(p QueueLengthProvider) { m.queueProvider = p }

// OnStatusChange registers cb and returns a token for OffStatusChange.
func (m *Monitor) OnStatusChange(cb ChangeCallback) int {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = cb
	return id
}

// OffStatusChange deregisters a callback by its OnStatusChange token.
func (m *Monitor) OffStatusChange(token int) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	delete(m.subscribers, token)
}

func (m *Monitor) publish(printerID string, status PrinterStatus) {
	m.subsMu.Lock()
	cbs := make([]ChangeCallback, 0, len(m.subscribers))
	for _, cb := range m.subscribers {
		cbs = append(cbs, cb)
	}
	m.subsMu.Unlock()

	// Subscribers are never invoked while the cache lock is held, hence
	// the copy above taken under a separate mutex.
	for _, cb := range cbs {
		cb(printerID, status)
	}
}

// StartMonitoring begins a periodic probe of printerID every interval
// (defaulting to 30s). Calling it again for an already-monitored printer
// replaces the interval.
func (m *Monitor) StartMonitoring(printerID string, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	m.mu.Lock()
	if existing, ok := m.timers[printerID]; ok {
		close(existing.stop)
		existing.ticker.Stop()
	}
	mp := &monitoredPrinter{ticker: time.NewTicker(interval), stop: make(chan struct{})}
	m.timers[printerID] = mp
	if _, ok := m.cache[printerID]; !ok {
		m.cache[printerID] = PrinterStatus{PrinterID: printerID, State: StateOffline}
	}
	m.mu.Unlock()

	go func() {
		for {
			select {
			case <-mp.stop:
				return
			case <-mp.ticker.C:
				m.CheckStatus(printerID)
			}
		}
	}()
}

// StopMonitoring stops the periodic probe for printerID, if any.
func (m *Monitor) StopMonitoring(printerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mp, ok := m.timers[printerID]; ok {
		close(mp.stop)
		mp.ticker.Stop()
		delete(m.timers, printerID)
	}
}

// StopAllMonitoring stops every active timer, used on orchestrator shutdown.
func (m *Monitor) StopAllMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, mp := range m.timers {
		close(mp.stop)
		mp.ticker.Stop()
		delete(m.timers, id)
	}
}

// IsMonitoring reports whether printerID has an active periodic probe.
func (m *Monitor) IsMonitoring(printerID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.timers[printerID]
	return ok
}

// CheckStatus runs one probe immediately via the StatusCheckProvider and
// applies the resulting status through the same change-detection path
// as the periodic timer.
func (m *Monitor) CheckStatus(printerID string) (PrinterStatus, error) {
	if m.statusProvider == nil {
		return PrinterStatus{}, nil
	}
	fresh, err := m.statusProvider.CheckStatus(printerID)
	if err != nil {
		return PrinterStatus{}, err
	}
	if m.queueProvider != nil {
		fresh.QueueLength = m.queueProvider.QueueLength(printerID)
	}
	fresh.PrinterID = printerID
	fresh.LastSeen = time.Now()
	m.applyStatus(printerID, fresh)
	return fresh, nil
}

// UpdatePrinterState applies an explicit state transition (from the
// orchestrator, on transport connect/disconnect/error).
func (m *Monitor) UpdatePrinterState(printerID string, state State, errorCode ErrorCode, errorMessage string) {
	status := PrinterStatus{
		PrinterID:    printerID,
		State:        state,
		ErrorCode:    errorCode,
		ErrorMessage: errorMessage,
		LastSeen:     time.Now(),
	}
	if m.queueProvider != nil {
		status.QueueLength = m.queueProvider.QueueLength(printerID)
	}
	m.applyStatus(printerID, status)
}

func (m *Monitor) applyStatus(printerID string, fresh PrinterStatus) {
	m.mu.Lock()
	previous, had := m.cache[printerID]
	// A queue-length change alone is not a change-worthy transition; only
	// state or error code movements publish.
	changed := !had || previous.State != fresh.State || previous.ErrorCode != fresh.ErrorCode
	m.cache[printerID] = fresh
	m.mu.Unlock()

	if changed {
		m.publish(printerID, fresh)
	}
}

// GetCurrentStatus returns the cached status for printerID.
func (m *Monitor) GetCurrentStatus(printerID string) (PrinterStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.cache[printerID]
	return s, ok
}

// GetAllStatuses returns a snapshot of every cached status.
func (m *Monitor) GetAllStatuses() map[string]PrinterStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]PrinterStatus, len(m.cache))
	for k, v := range m.cache {
		out[k] = v
	}
	return out
}

// Destroy stops every timer and clears all subscribers, used on
// orchestrator shutdown.
func (m *Monitor) Destroy() {
	m.StopAllMonitoring()
	m.subsMu.Lock()
	m.subscribers = make(map[int]ChangeCallback)
	m.subsMu.Unlock()
}
