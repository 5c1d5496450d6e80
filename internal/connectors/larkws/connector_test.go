package larkws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weeklyops/reportbot/internal/gateway"
)

type fakeGateway struct {
	inputs chan gateway.MessageInput
	out    gateway.Output
}

func (f *fakeGateway) HandleMessage(ctx context.Context, in gateway.MessageInput) gateway.Output {
	f.inputs <- in
	return f.out
}

type fakeMessenger struct {
	sent chan string
}

func (f *fakeMessenger) SendText(ctx context.Context, chatID, text string) bool {
	f.sent <- text
	return true
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExtractTextPlainMessage(t *testing.T) {
	text, ok := extractText("text", `{"text": "@_user_1 跳过本周"}`)
	if !ok || text != "@_user_1 跳过本周" {
		t.Fatalf("extractText = %q, %v", text, ok)
	}
}

func TestExtractTextPostMessage(t *testing.T) {
	content := `{"content": [[{"tag": "text", "text": "todo"}, {"tag": "a", "text": "link"}], [{"tag": "text", "text": "写测试"}]]}`
	text, ok := extractText("post", content)
	if !ok || text != "todo 写测试" {
		t.Fatalf("extractText = %q, %v", text, ok)
	}
}

func TestExtractTextIgnoresOtherTypes(t *testing.T) {
	if _, ok := extractText("image", `{"image_key": "k"}`); ok {
		t.Fatalf("image messages must be ignored")
	}
}

func TestHandleFrameDispatchesAndReplies(t *testing.T) {
	gw := &fakeGateway{
		inputs: make(chan gateway.MessageInput, 1),
		out:    gateway.Output{Reply: "已跳过 2026-01-21 的周报", Handled: true},
	}
	msgr := &fakeMessenger{sent: make(chan string, 1)}
	connector := New(Config{}, gw, msgr, discardLogger())

	frame := `{
		"header": {"event_id": "evt1", "event_type": "im.message.receive_v1", "create_time": "1000"},
		"event": {
			"sender": {"sender_id": {"open_id": "ou_alice"}},
			"message": {
				"message_id": "om_1",
				"create_time": "1000",
				"chat_id": "oc_chat",
				"message_type": "text",
				"content": "{\"text\": \"@_user_1 跳过本周\"}",
				"mentions": [{"key": "@_user_1", "name": "bot", "id": {"open_id": "ou_bot"}}]
			}
		}
	}`
	connector.handleFrame(context.Background(), []byte(frame))

	in := <-gw.inputs
	if in.MessageID != "om_1" || in.ChatID != "oc_chat" || in.FromUserID != "ou_alice" {
		t.Fatalf("unexpected input: %+v", in)
	}
	if len(in.Mentions) != 1 || in.Mentions[0].Key != "@_user_1" {
		t.Fatalf("mentions not forwarded: %+v", in.Mentions)
	}
	if reply := <-msgr.sent; reply != "已跳过 2026-01-21 的周报" {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestRunConnectionDoesNotLeakWatcherGoroutines(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer server.Close()

	gw := &fakeGateway{inputs: make(chan gateway.MessageInput, 1)}
	msgr := &fakeMessenger{sent: make(chan string, 1)}
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	connector := New(Config{URL: wsURL}, gw, msgr, discardLogger())

	before := runtime.NumGoroutine()
	for i := 0; i < 20; i++ {
		if err := connector.runConnection(context.Background()); err == nil {
			t.Fatalf("expected connection loss error")
		}
	}

	// Watchers exit with their connection; allow a moment for teardown.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= before+3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("goroutines leaked across reconnects: before=%d after=%d", before, runtime.NumGoroutine())
}

func TestHandleFrameIgnoresOtherEventTypes(t *testing.T) {
	gw := &fakeGateway{inputs: make(chan gateway.MessageInput, 1)}
	msgr := &fakeMessenger{sent: make(chan string, 1)}
	connector := New(Config{}, gw, msgr, discardLogger())

	frame := `{"header": {"event_type": "im.chat.updated_v1"}}`
	connector.handleFrame(context.Background(), []byte(frame))

	select {
	case in := <-gw.inputs:
		t.Fatalf("non-message event dispatched: %+v", in)
	default:
	}
}
