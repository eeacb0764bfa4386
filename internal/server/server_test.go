package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pearlgull/pearlgull/internal/assemble"
	"github.com/pearlgull/pearlgull/internal/budget"
	"github.com/pearlgull/pearlgull/internal/bus"
	"github.com/pearlgull/pearlgull/internal/chat"
	"github.com/pearlgull/pearlgull/internal/memory"
	"github.com/pearlgull/pearlgull/internal/schema"
	"github.com/pearlgull/pearlgull/internal/store"
)

type fakeClient struct {
	reply string
}

func (f *fakeClient) ListModels(context.Context) ([]schema.ModelInfo, error) {
	return []schema.ModelInfo{{ID: "m1", State: schema.ModelStateLoaded, LoadedContext: 8192}}, nil
}

func (f *fakeClient) ModelInfo(_ context.Context, modelID string) schema.ModelInfo {
	return schema.ModelInfo{ID: modelID, State: schema.ModelStateLoaded, LoadedContext: 8192}
}

func (f *fakeClient) ChatStream(_ context.Context, _ schema.Messages, _ schema.ChatOptions, onDelta schema.DeltaFunc) (string, schema.Usage, error) {
	if onDelta != nil {
		onDelta(f.reply)
	}
	return f.reply, schema.Usage{TotalTokens: 10}, nil
}

func (f *fakeClient) Generate(context.Context, string, string, schema.ChatOptions) (string, error) {
	return "summary", nil
}

func newTestServer(t *testing.T) (*Server, *store.Store, *bus.Bus) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	client := &fakeClient{reply: "hi from the model"}
	events := bus.New()
	mem := memory.NewManager(st, nil, memory.Params{}, nil)
	engine := chat.NewEngine(chat.Config{DefaultModel: "m1"}, st, mem,
		budget.NewCalculator(budget.Params{}, nil), assemble.New(nil), client, events, nil, nil, nil)

	return New("127.0.0.1:0", engine, st, client, events, nil), st, events
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	s, _, _ := newTestServer(t)

	put := httptest.NewRequest(http.MethodPut, "/v1/profile",
		strings.NewReader(`{"display_name":"Alex","timezone":"Europe/Lisbon"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, put)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/profile", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Alex") {
		t.Errorf("profile body = %s", rec.Body)
	}
}

func TestResponsesStreamsEvents(t *testing.T) {
	s, st, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/responses",
		strings.NewReader(`{"thread_id":"t1","input":"hello"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, body)
	}
	for _, want := range []string{"event: budget", "event: assembly", "event: memory", "event: delta", "event: done"} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q:\n%s", want, body)
		}
	}
	if !strings.Contains(body, `"status":"completed"`) {
		t.Errorf("stream missing completed status:\n%s", body)
	}

	msgs, err := st.Messages(context.Background(), "t1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Errorf("message log has %d entries, want 2", len(msgs))
	}
}

func TestResponsesRejectsBadRequests(t *testing.T) {
	s, _, _ := newTestServer(t)

	for _, body := range []string{"not json", `{"thread_id":"","input":""}`} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/responses", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestThreadMemoryNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/threads/nope/memory", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestModelsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "m1") {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestWebsocketMirrorReceivesBusEvents(t *testing.T) {
	s, _, events := newTestServer(t)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/threads/t1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the handler a beat to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	events.Publish("t1", schema.TurnEvent{Type: schema.EventDelta, Delta: "mirrored"})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev schema.TurnEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != schema.EventDelta || ev.Delta != "mirrored" {
		t.Errorf("event = %+v", ev)
	}
}
