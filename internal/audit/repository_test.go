package audit

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-litetouch/internal/bridges/litetouch"
	"github.com/nerrad567/gray-logic-litetouch/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-litetouch/migrations" // registers audit_logs schema
)

// openTestRepo creates a migrated temporary database.
func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func seed(t *testing.T, repo *SQLiteRepository) {
	t.Helper()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []*AuditLog{
		{Action: ActionCommand, EntityType: "load", EntityID: "light-hall", Source: "mqtt", CreatedAt: base},
		{Action: ActionCommand, EntityType: "button", EntityID: "kp-hall-1", Source: "cli", CreatedAt: base.Add(time.Second)},
		{Action: ActionCommand, EntityType: "load", EntityID: "light-hall", Source: "mqtt", UserID: "usr-1",
			Details: map[string]any{"command": "dim"}, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := repo.Create(context.Background(), e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
}

func TestCreateGeneratesIDAndTimestamp(t *testing.T) {
	repo := openTestRepo(t)

	entry := &AuditLog{Action: ActionCommand, EntityType: "load", Source: "mqtt"}
	if err := repo.Create(context.Background(), entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(entry.ID) != len("aud-")+8 {
		t.Errorf("ID = %q, want aud- plus 8 chars", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestList(t *testing.T) {
	repo := openTestRepo(t)
	seed(t, repo)

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantFirst string
		wantCount int
	}{
		{"all newest first", Filter{}, 3, "light-hall", 3},
		{"by device", Filter{EntityID: "kp-hall-1"}, 1, "kp-hall-1", 1},
		{"by type", Filter{EntityType: "load"}, 2, "light-hall", 2},
		{"by source", Filter{Source: "cli"}, 1, "kp-hall-1", 1},
		{"since", Filter{Since: time.Date(2026, 3, 1, 9, 0, 1, 0, time.UTC)}, 2, "light-hall", 2},
		{"paged", Filter{Limit: 1, Offset: 1}, 3, "kp-hall-1", 1},
		{"no match", Filter{Action: "login"}, 0, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if result.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", result.Total, tt.wantTotal)
			}
			if len(result.Logs) != tt.wantCount {
				t.Fatalf("len(Logs) = %d, want %d", len(result.Logs), tt.wantCount)
			}
			if tt.wantCount > 0 && result.Logs[0].EntityID != tt.wantFirst {
				t.Errorf("first EntityID = %q, want %q", result.Logs[0].EntityID, tt.wantFirst)
			}
		})
	}
}

func TestListDecodesOptionalColumns(t *testing.T) {
	repo := openTestRepo(t)
	seed(t, repo)

	result, err := repo.List(context.Background(), Filter{Limit: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	got := result.Logs[0]
	if got.UserID != "usr-1" || got.Details["command"] != "dim" {
		t.Errorf("newest entry = %+v", got)
	}
	if !got.CreatedAt.Equal(time.Date(2026, 3, 1, 9, 0, 2, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", got.CreatedAt)
	}
}

func TestListClampsLimit(t *testing.T) {
	repo := openTestRepo(t)

	tests := []struct {
		limit, offset int
		wantLimit     int
		wantOffset    int
	}{
		{0, 0, 50, 0},
		{500, -3, 200, 0},
		{10, 4, 10, 4},
	}
	for _, tt := range tests {
		result, err := repo.List(context.Background(), Filter{Limit: tt.limit, Offset: tt.offset})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Limit != tt.wantLimit || result.Offset != tt.wantOffset {
			t.Errorf("List(%d,%d) limit/offset = %d/%d, want %d/%d",
				tt.limit, tt.offset, result.Limit, result.Offset, tt.wantLimit, tt.wantOffset)
		}
		if result.Logs == nil {
			t.Error("Logs should be an empty slice, not nil")
		}
	}
}

// =============================================================================
// Recorder Tests
// =============================================================================

func TestRecorderWritesCommands(t *testing.T) {
	repo := openTestRepo(t)
	rec := NewRecorder(repo, nil)

	ctx := context.Background()
	if err := rec.RecordCommand(ctx, litetouch.CommandRecord{
		CommandID: "cmd-1", DeviceID: "light-hall", Command: "dim", Address: "load_12",
		Source: "scene", UserID: "usr-1", Success: true,
	}); err != nil {
		t.Fatalf("RecordCommand() error = %v", err)
	}
	if err := rec.RecordCommand(ctx, litetouch.CommandRecord{
		CommandID: "cmd-2", DeviceID: "kp-hall-3", Command: "toggle", Address: "014_3",
		Error: "litetouch: query timeout",
	}); err != nil {
		t.Fatalf("RecordCommand() error = %v", err)
	}
	rec.Close()

	result, err := repo.List(ctx, Filter{Action: ActionCommand})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 2 {
		t.Fatalf("Total = %d, want 2", result.Total)
	}

	byDevice := map[string]AuditLog{}
	for _, l := range result.Logs {
		byDevice[l.EntityID] = l
	}

	load := byDevice["light-hall"]
	if load.EntityType != "load" || load.Source != "scene" || load.UserID != "usr-1" {
		t.Errorf("load entry = %+v", load)
	}
	if load.Details["success"] != true || load.Details["command_id"] != "cmd-1" {
		t.Errorf("load details = %v", load.Details)
	}

	button := byDevice["kp-hall-3"]
	if button.EntityType != "button" || button.Source != "mqtt" {
		t.Errorf("button entry = %+v", button)
	}
	if button.Details["success"] != false || button.Details["error"] != "litetouch: query timeout" {
		t.Errorf("button details = %v", button.Details)
	}
}

func TestRecorderRejectsAfterClose(t *testing.T) {
	rec := NewRecorder(&blockingRepo{release: closedChan()}, nil)
	rec.Close()
	rec.Close()

	err := rec.RecordCommand(context.Background(), litetouch.CommandRecord{DeviceID: "x"})
	if !errors.Is(err, ErrRecorderClosed) {
		t.Errorf("RecordCommand() error = %v, want ErrRecorderClosed", err)
	}
}

func TestRecorderDropsWhenFull(t *testing.T) {
	repo := &blockingRepo{release: make(chan struct{})}
	rec := NewRecorder(repo, nil)

	var full int
	for i := 0; i < queueSize+2; i++ {
		if err := rec.RecordCommand(context.Background(), litetouch.CommandRecord{DeviceID: "x"}); errors.Is(err, ErrQueueFull) {
			full++
		}
	}
	if full == 0 {
		t.Error("expected ErrQueueFull once the queue saturates")
	}

	close(repo.release)
	rec.Close()

	if got := repo.count(); got != queueSize+2-full {
		t.Errorf("written = %d, want %d", got, queueSize+2-full)
	}
}

func TestRecorderLogsWriteFailure(t *testing.T) {
	logger := &recordingLogger{}
	rec := NewRecorder(&blockingRepo{release: closedChan(), err: errors.New("disk full")}, logger)

	if err := rec.RecordCommand(context.Background(), litetouch.CommandRecord{DeviceID: "x"}); err != nil {
		t.Fatalf("RecordCommand() error = %v", err)
	}
	rec.Close()

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.errors) != 1 {
		t.Errorf("logged errors = %v, want 1", logger.errors)
	}
}

// blockingRepo holds every Create until release is closed.
type blockingRepo struct {
	release chan struct{}
	err     error

	mu      sync.Mutex
	created int
}

func (r *blockingRepo) Create(_ context.Context, _ *AuditLog) error {
	<-r.release
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
	return r.err
}

func (r *blockingRepo) List(context.Context, Filter) (*ListResult, error) {
	return &ListResult{}, nil
}

func (r *blockingRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

var _ litetouch.CommandAuditor = (*Recorder)(nil)
