package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/mnemo/internal/completion"
	"github.com/ent0n29/mnemo/internal/config"
	"github.com/ent0n29/mnemo/internal/conversation"
	"github.com/ent0n29/mnemo/internal/extractor"
	"github.com/ent0n29/mnemo/internal/logger"
	"github.com/ent0n29/mnemo/internal/memory"
	"github.com/ent0n29/mnemo/internal/observability"
	"github.com/ent0n29/mnemo/internal/protocol"
	"github.com/ent0n29/mnemo/internal/turn"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := logger.Nop()
	cfg := config.Config{
		CompletionProvider:            "canned",
		ConversationInactivityTimeout: 2 * time.Minute,
	}
	store := memory.NewInMemoryStore()
	client := completion.NewCannedClient()
	metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "test")
	conversations := conversation.NewManager(cfg.ConversationInactivityTimeout)
	orch := turn.New(turn.Deps{
		Conversations: conversations,
		Store:         store,
		Extractor:     extractor.New(client, nil, log),
		Completion:    completion.NewGraceful(client, log, nil),
		Metrics:       metrics,
		Logger:        log,
	})
	t.Cleanup(orch.Close)

	srv := New(cfg, Status{CompletionProvider: client.Name(), MemoryBackend: memory.BackendInMemory}, conversations, orch, metrics, log)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer res.Body.Close()
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, url, err)
		}
	}
	return res.StatusCode
}

func createConversation(t *testing.T, base string) string {
	t.Helper()
	var created map[string]any
	if status := doJSON(t, http.MethodPost, base+"/v1/conversations", nil, &created); status != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", status, http.StatusCreated)
	}
	id, _ := created["conversation_id"].(string)
	if id == "" {
		t.Fatalf("missing conversation_id in create response: %+v", created)
	}
	return id
}

func TestHealthReportsAIStatus(t *testing.T) {
	ts := newTestServer(t)

	var payload map[string]any
	if status := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, &payload); status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if payload["ai_status"] != "not configured" {
		t.Fatalf("ai_status = %v, want %q", payload["ai_status"], "not configured")
	}
	if payload["memory_backend"] != memory.BackendInMemory {
		t.Fatalf("memory_backend = %v", payload["memory_backend"])
	}
}

func TestSendAndListMessages(t *testing.T) {
	ts := newTestServer(t)
	id := createConversation(t, ts.URL)

	var result turn.Result
	status := doJSON(t, http.MethodPost, ts.URL+"/v1/conversations/"+id+"/messages", map[string]string{"message": "hello"}, &result)
	if status != http.StatusOK {
		t.Fatalf("send status = %d, want %d", status, http.StatusOK)
	}
	if !strings.Contains(result.Reply.Content, "Hello there") {
		t.Fatalf("reply = %q, want canned greeting", result.Reply.Content)
	}

	var listed struct {
		Messages []conversation.Message `json:"messages"`
	}
	if status := doJSON(t, http.MethodGet, ts.URL+"/v1/conversations/"+id+"/messages", nil, &listed); status != http.StatusOK {
		t.Fatalf("list status = %d, want %d", status, http.StatusOK)
	}
	if len(listed.Messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(listed.Messages))
	}
	if listed.Messages[0].Role != conversation.RoleUser || listed.Messages[1].Role != conversation.RoleAssistant {
		t.Fatalf("unexpected roles: %+v", listed.Messages)
	}
}

func TestSendMessageErrors(t *testing.T) {
	ts := newTestServer(t)
	id := createConversation(t, ts.URL)

	cases := []struct {
		name string
		url  string
		body any
		want int
	}{
		{"unknown conversation", ts.URL + "/v1/conversations/nope/messages", map[string]string{"message": "hi"}, http.StatusNotFound},
		{"blank message", ts.URL + "/v1/conversations/" + id + "/messages", map[string]string{"message": "  "}, http.StatusBadRequest},
		{"empty body", ts.URL + "/v1/conversations/" + id + "/messages", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var payload errorResponse
			if got := doJSON(t, http.MethodPost, tc.url, tc.body, &payload); got != tc.want {
				t.Fatalf("status = %d, want %d (%+v)", got, tc.want, payload)
			}
		})
	}

	if status := doJSON(t, http.MethodPost, ts.URL+"/v1/conversations/"+id+"/end", nil, nil); status != http.StatusOK {
		t.Fatalf("end status = %d, want %d", status, http.StatusOK)
	}
	if status := doJSON(t, http.MethodPost, ts.URL+"/v1/conversations/"+id+"/messages", map[string]string{"message": "hi"}, nil); status != http.StatusConflict {
		t.Fatalf("send after end status = %d, want %d", status, http.StatusConflict)
	}
}

func TestMemoryCRUD(t *testing.T) {
	ts := newTestServer(t)

	var created struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}
	if status := doJSON(t, http.MethodPost, ts.URL+"/v1/memories", map[string]string{"content": " likes jazz "}, &created); status != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", status, http.StatusCreated)
	}
	if !created.Success || created.ID == "" {
		t.Fatalf("unexpected create response: %+v", created)
	}

	if status := doJSON(t, http.MethodPost, ts.URL+"/v1/memories", map[string]string{"content": "   "}, nil); status != http.StatusBadRequest {
		t.Fatalf("blank create status = %d, want %d", status, http.StatusBadRequest)
	}

	var listed struct {
		Memories []memory.Record `json:"memories"`
	}
	doJSON(t, http.MethodGet, ts.URL+"/v1/memories", nil, &listed)
	if len(listed.Memories) != 1 || listed.Memories[0].Content != "likes jazz" {
		t.Fatalf("memories = %+v, want one trimmed record", listed.Memories)
	}

	if status := doJSON(t, http.MethodDelete, ts.URL+"/v1/memories/"+created.ID, nil, nil); status != http.StatusOK {
		t.Fatalf("delete status = %d, want %d", status, http.StatusOK)
	}
	if status := doJSON(t, http.MethodDelete, ts.URL+"/v1/memories/"+created.ID, nil, nil); status != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want %d", status, http.StatusNotFound)
	}
}

func TestPerfLatencyAfterTurn(t *testing.T) {
	ts := newTestServer(t)
	id := createConversation(t, ts.URL)
	doJSON(t, http.MethodPost, ts.URL+"/v1/conversations/"+id+"/messages", map[string]string{"message": "hello"}, nil)

	var snap observability.TurnStageSnapshot
	if status := doJSON(t, http.MethodGet, ts.URL+"/v1/perf/latency", nil, &snap); status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	stages := map[string]bool{}
	for _, s := range snap.Stages {
		stages[s.Stage] = true
	}
	for _, want := range []string{turn.StageComplete, turn.StageTotal} {
		if !stages[want] {
			t.Fatalf("missing stage %q in %+v", want, snap.Stages)
		}
	}
}

func TestConversationWebSocketTurn(t *testing.T) {
	ts := newTestServer(t)
	id := createConversation(t, ts.URL)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/conversations/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(protocol.UserMessage{Type: protocol.TypeUserMessage, Text: "hello", ClientID: "c1"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var reply protocol.AssistantReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply.Type != protocol.TypeAssistantReply || reply.ClientID != "c1" || !strings.Contains(reply.Text, "Hello there") {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	var stored protocol.MemoriesStored
	if err := conn.ReadJSON(&stored); err != nil {
		t.Fatalf("read memories_stored: %v", err)
	}
	if stored.Type != protocol.TypeMemoriesStored || stored.ConversationID != id {
		t.Fatalf("unexpected memories_stored: %+v", stored)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	var errEvent protocol.ErrorEvent
	if err := conn.ReadJSON(&errEvent); err != nil {
		t.Fatalf("read error_event: %v", err)
	}
	if errEvent.Type != protocol.TypeErrorEvent || errEvent.Code != "invalid_client_message" {
		t.Fatalf("unexpected error event: %+v", errEvent)
	}
}

func TestWebSocketUnknownConversation(t *testing.T) {
	ts := newTestServer(t)
	res, err := http.Get(ts.URL + "/v1/conversations/nope/ws")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}
