package audit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-litetouch/internal/bridges/litetouch"
)

const (
	// queueSize is the buffer size for the async write queue.
	// Entries beyond this are dropped to avoid back-pressure on the bridge.
	queueSize = 256

	// writeTimeout bounds a single SQLite insert.
	writeTimeout = 5 * time.Second

	// ActionCommand is the action recorded for bridge commands.
	ActionCommand = "command"

	defaultSource = "mqtt"
)

var (
	// ErrQueueFull is returned when the write queue is saturated.
	ErrQueueFull = errors.New("audit: queue full")

	// ErrRecorderClosed is returned after Close.
	ErrRecorderClosed = errors.New("audit: recorder closed")
)

// Logger is the logging subset the recorder needs.
type Logger interface {
	Error(msg string, args ...any)
}

// Recorder turns bridge command records into audit log entries and writes
// them serially from a single goroutine. *Recorder satisfies
// litetouch.CommandAuditor.
type Recorder struct {
	repo   Repository
	logger Logger

	queue chan *AuditLog
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewRecorder starts a recorder writing to repo. Call Close to flush.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	r := &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan *AuditLog, queueSize),
		done:   make(chan struct{}),
	}
	go r.drain()
	return r
}

// RecordCommand enqueues rec without blocking.
func (r *Recorder) RecordCommand(_ context.Context, rec litetouch.CommandRecord) error {
	entry := commandEntry(rec)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRecorderClosed
	}

	select {
	case r.queue <- entry:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting records and waits for queued ones to be written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
}

func (r *Recorder) drain() {
	defer close(r.done)

	for entry := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := r.repo.Create(ctx, entry)
		cancel()

		if err != nil && r.logger != nil {
			r.logger.Error("audit log write failed",
				"entity_id", entry.EntityID,
				"error", err,
			)
		}
	}
}

// commandEntry maps a bridge command to an audit_logs row.
func commandEntry(rec litetouch.CommandRecord) *AuditLog {
	entityType := "button"
	if strings.HasPrefix(rec.Address, "load_") {
		entityType = "load"
	}

	source := rec.Source
	if source == "" {
		source = defaultSource
	}

	details := map[string]any{
		"command":    rec.Command,
		"address":    rec.Address,
		"success":    rec.Success,
		"command_id": rec.CommandID,
	}
	if rec.Error != "" {
		details["error"] = rec.Error
	}

	return &AuditLog{
		Action:     ActionCommand,
		EntityType: entityType,
		EntityID:   rec.DeviceID,
		UserID:     rec.UserID,
		Source:     source,
		Details:    details,
	}
}
