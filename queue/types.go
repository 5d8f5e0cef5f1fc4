// Package queue is a durable priority+FIFO queue of print jobs bound to
// printers, with an append-only history log and a crash-recovery reset,
// backed by SQLite.
package queue

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("job not found")
	ErrInvalid  = errors.New("invalid job")
	// ErrNotCancelable is returned when cancellation is attempted on a job
	// that is no longer pending.
	ErrNotCancelable = errors.New("job is not cancelable in its current state")
)

// JobType enumerates the print request kinds.
type JobType string

const (
	JobReceipt JobType = "receipt"
	JobKitchen JobType = "kitchen_ticket"
	JobLabel   JobType = "label"
	JobReport  JobType = "report"
	JobTest    JobType = "test"
)

// Status is the lifecycle state of a QueuedJob.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPrinting  Status = "printing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// JobData holds either Raw bytes or Structured order data, never both.
// IsRaw is the explicit discriminator.
type JobData struct {
	IsRaw bool `json:"isRaw"`

	// Raw holds an opaque pre-rendered ESC/POS byte buffer.
	Raw []byte `json:"raw,omitempty"`

	// Structured holds order/ticket data handed to the renderer. It is
	// kept as json.RawMessage because its shape depends on JobType
	// (escpos.ReceiptData vs escpos.KitchenTicketData); the orchestrator
	// decodes it into the concrete escpos type when rendering, and the
	// router reads its items when splitting.
	Structured json.RawMessage `json:"structured,omitempty"`
}

// PrintJob is an ephemeral submission, before it is bound to a printer
// and persisted as a QueuedJob.
type PrintJob struct {
	ID        string                 `json:"id"`
	Type      JobType                `json:"type"`
	Data      JobData                `json:"data"`
	Priority  int                    `json:"priority"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// QueuedJob is a PrintJob bound to a printer and tracked through its
// lifecycle.
type QueuedJob struct {
	ID          string                 `json:"id"`
	PrinterID   string                 `json:"printerId"`
	Type        JobType                `json:"type"`
	Data        JobData                `json:"data"`
	Priority    int                    `json:"priority"`
	Status      Status                 `json:"status"`
	RetryCount  int                    `json:"retryCount"`
	LastError   string                 `json:"lastError,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	StartedAt   *time.Time             `json:"startedAt,omitempty"`
	CompletedAt *time.Time             `json:"completedAt,omitempty"`
}

// JobHistoryEntry is the append-only terminal record of a finished job.
type JobHistoryEntry struct {
	ID          string                 `json:"id"`
	PrinterID   string                 `json:"printerId"`
	Type        JobType                `json:"type"`
	Data        JobData                `json:"data"`
	Priority    int                    `json:"priority"`
	Status      Status                 `json:"status"` // completed | failed
	RetryCount  int                    `json:"retryCount"`
	LastError   string                 `json:"lastError,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	StartedAt   *time.Time             `json:"startedAt,omitempty"`
	CompletedAt time.Time              `json:"completedAt"`
	DurationMs  int64                  `json:"durationMs"`
}

// JobStats summarizes recent outcomes for a printer.
type JobStats struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}
