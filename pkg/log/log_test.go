package log

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mash-protocol/m2m-inventory/pkg/wire"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if logger.Written() != len(events) {
		t.Fatalf("Written = %d, want %d", logger.Written(), len(events))
	}
	logger.Close()
	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		event, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, event)
	}
}

func TestEventRoundTrip(t *testing.T) {
	op := wire.OpPut
	ts := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

	data, err := EncodeEvent(Event{
		Timestamp: ts,
		SessionID: "s-1",
		Direction: DirectionIn,
		Layer:     LayerWire,
		Category:  CategoryMessage,
		Message: &MessageEvent{
			Type:      MessageTypeRequest,
			MessageID: 4,
			Operation: &op,
			Path:      "3201/0/5853",
			Payload:   "100:100",
		},
	})
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("timestamp: got %v, want %v", got.Timestamp, ts)
	}
	if got.Message == nil || *got.Message.Operation != wire.OpPut || got.Message.Path != "3201/0/5853" {
		t.Errorf("unexpected message: %+v", got.Message)
	}
}

func TestReaderFilters(t *testing.T) {
	now := time.Now()
	events := []Event{
		{Timestamp: now, SessionID: "a", Category: CategoryState, Layer: LayerClient,
			StateChange: &StateChangeEvent{Entity: StateEntityClient, NewState: "REGISTERING"}},
		{Timestamp: now.Add(time.Second), SessionID: "a", Category: CategoryNotification, Direction: DirectionOut,
			Notification: &NotificationEvent{Path: "10341/0/26342", Sequence: 1, Value: int64(9)}},
		{Timestamp: now.Add(2 * time.Second), SessionID: "b", Category: CategoryNotification,
			Notification: &NotificationEvent{Path: "10341/0/26343", Status: "DELIVERED"}},
	}
	path := createTestLogFile(t, events)

	t.Run("All", func(t *testing.T) {
		r, err := NewReader(path)
		if err != nil {
			t.Fatalf("NewReader failed: %v", err)
		}
		defer r.Close()
		if got := readAll(t, r); len(got) != 3 {
			t.Fatalf("got %d events, want 3", len(got))
		}
	})

	t.Run("Session", func(t *testing.T) {
		r, _ := NewFilteredReader(path, Filter{SessionID: "b"})
		defer r.Close()
		got := readAll(t, r)
		if len(got) != 1 || got[0].Notification.Status != "DELIVERED" {
			t.Errorf("unexpected events: %+v", got)
		}
	})

	t.Run("CategoryAndPath", func(t *testing.T) {
		cat := CategoryNotification
		r, _ := NewFilteredReader(path, Filter{Category: &cat, Path: "10341/0/26342"})
		defer r.Close()
		got := readAll(t, r)
		if len(got) != 1 || got[0].Notification.Sequence != 1 {
			t.Errorf("unexpected events: %+v", got)
		}
	})

	t.Run("TimeWindow", func(t *testing.T) {
		start := now.Add(500 * time.Millisecond)
		end := now.Add(2 * time.Second)
		r, _ := NewFilteredReader(path, Filter{TimeStart: &start, TimeEnd: &end})
		defer r.Close()
		if got := readAll(t, r); len(got) != 1 {
			t.Errorf("got %d events, want 1", len(got))
		}
	})
}

func TestFileLoggerIgnoresLogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.mlog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	logger.Log(Event{SessionID: "late"})
	if logger.Written() != 0 {
		t.Errorf("Written = %d after close", logger.Written())
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.mlog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.Log(Event{Timestamp: time.Now(), Category: CategoryNotification,
					Notification: &NotificationEvent{Path: "10341/0/26342", Status: "SENT"}})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()
	if got := readAll(t, r); len(got) != 200 {
		t.Errorf("got %d events, want 200", len(got))
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingLogger) Log(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestMultiLoggerSkipsNil(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	m := NewMultiLogger(a, nil, b)
	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}
	m.Log(Event{SessionID: "x"})
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("fan-out failed: %d %d", len(a.events), len(b.events))
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) should return NoopLogger")
	}
	r := &recordingLogger{}
	if OrNoop(r) != Logger(r) {
		t.Error("OrNoop should return the given logger")
	}
}

func TestSlogAdapterLogsNotification(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	adapter.Log(Event{
		SessionID: "s-9",
		Direction: DirectionOut,
		Layer:     LayerClient,
		Category:  CategoryNotification,
		Endpoint:  "ep-1",
		Notification: &NotificationEvent{
			Path:   "10341/0/26343",
			Status: "RESEND_QUEUE_FULL",
		},
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	checks := map[string]string{
		"msg":       "event",
		"session":   "s-9",
		"direction": "OUT",
		"layer":     "CLIENT",
		"category":  "NOTIFICATION",
		"endpoint":  "ep-1",
		"path":      "10341/0/26343",
		"status":    "RESEND_QUEUE_FULL",
	}
	for k, want := range checks {
		if entry[k] != want {
			t.Errorf("%s: got %v, want %q", k, entry[k], want)
		}
	}
}

func TestSlogAdapterLogsError(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	code := 0x0C
	adapter.Log(Event{
		Category: CategoryError,
		Error:    &ErrorEventData{Layer: LayerClient, Message: "DNS resolving failed", Code: &code},
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["error_code"] != float64(12) {
		t.Errorf("error_code: got %v", entry["error_code"])
	}
	if _, ok := entry["error_context"]; ok {
		t.Error("empty error_context should be omitted")
	}
}

func TestEnumStrings(t *testing.T) {
	if Direction(9).String() != "UNKNOWN" || Layer(9).String() != "UNKNOWN" ||
		Category(9).String() != "UNKNOWN" || StateEntity(9).String() != "UNKNOWN" ||
		MessageType(9).String() != "UNKNOWN" {
		t.Error("unknown enum values should render UNKNOWN")
	}
	if LayerResource.String() != "RESOURCE" || StateEntityInventory.String() != "INVENTORY" {
		t.Error("unexpected enum names")
	}
}
