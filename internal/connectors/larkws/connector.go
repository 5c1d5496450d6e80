// Package larkws receives chat events over the open-platform long
// connection and feeds them to the gateway.
package larkws

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weeklyops/reportbot/internal/gateway"
)

// Gateway handles one normalized message and produces the reply.
type Gateway interface {
	HandleMessage(ctx context.Context, in gateway.MessageInput) gateway.Output
}

// Messenger delivers replies back to the chat.
type Messenger interface {
	SendText(ctx context.Context, chatID, text string) bool
}

type Config struct {
	URL string
}

type Connector struct {
	cfg    Config
	gw     Gateway
	msgr   Messenger
	logger *slog.Logger
}

func New(cfg Config, gw Gateway, msgr Messenger, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		cfg:    cfg,
		gw:     gw,
		msgr:   msgr,
		logger: logger.With("component", "larkws"),
	}
}

func (c *Connector) Name() string { return "larkws" }

// Start maintains the long connection until ctx is cancelled, reconnecting
// with backoff on failure. An unconfigured URL disables the connector.
func (c *Connector) Start(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.URL) == "" {
		c.logger.Info("websocket url not configured, connector disabled")
		<-ctx.Done()
		return nil
	}

	backoff := time.Second
	for {
		if err := c.runConnection(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("websocket connection lost", "error", err, "retry_in", backoff.String())
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (c *Connector) runConnection(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.logger.Info("websocket connected")

	// The watcher must not outlive this connection; a new one is spawned
	// per reconnect.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		go c.handleFrame(ctx, data)
	}
}

type eventFrame struct {
	Header struct {
		EventID    string `json:"event_id"`
		EventType  string `json:"event_type"`
		CreateTime string `json:"create_time"`
	} `json:"header"`
	Event struct {
		Sender struct {
			SenderID struct {
				OpenID string `json:"open_id"`
			} `json:"sender_id"`
		} `json:"sender"`
		Message struct {
			MessageID   string `json:"message_id"`
			CreateTime  string `json:"create_time"`
			ChatID      string `json:"chat_id"`
			MessageType string `json:"message_type"`
			Content     string `json:"content"`
			Mentions    []struct {
				Key  string `json:"key"`
				Name string `json:"name"`
				ID   struct {
					OpenID string `json:"open_id"`
				} `json:"id"`
			} `json:"mentions"`
		} `json:"message"`
	} `json:"event"`
}

func (c *Connector) handleFrame(ctx context.Context, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event handling panicked", "panic", r)
		}
	}()

	var frame eventFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.logger.Debug("ignoring non-event frame", "error", err)
		return
	}
	if frame.Header.EventType != "im.message.receive_v1" {
		return
	}

	msg := frame.Event.Message
	text, ok := extractText(msg.MessageType, msg.Content)
	if !ok {
		return
	}

	in := gateway.MessageInput{
		MessageID:  msg.MessageID,
		CreateTime: msg.CreateTime,
		ChatID:     msg.ChatID,
		FromUserID: frame.Event.Sender.SenderID.OpenID,
		Text:       text,
	}
	for _, m := range msg.Mentions {
		in.Mentions = append(in.Mentions, gateway.Mention{
			UserID: m.ID.OpenID,
			Name:   m.Name,
			Key:    m.Key,
		})
	}

	out := c.gw.HandleMessage(ctx, in)
	if out.Reply != "" {
		c.msgr.SendText(ctx, msg.ChatID, out.Reply)
	}
}

// extractText pulls plain text out of a message content payload. Text and
// rich-text (post) messages are supported; other types are ignored.
func extractText(messageType, content string) (string, bool) {
	switch messageType {
	case "text":
		var body struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(content), &body); err != nil {
			return "", false
		}
		return body.Text, true
	case "post":
		return extractPostText(content)
	default:
		return "", false
	}
}

func extractPostText(content string) (string, bool) {
	var body struct {
		Content [][]struct {
			Tag  string `json:"tag"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &body); err != nil {
		return "", false
	}
	var parts []string
	for _, line := range body.Content {
		for _, node := range line {
			if node.Tag == "text" && node.Text != "" {
				parts = append(parts, node.Text)
			}
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " "), true
}
