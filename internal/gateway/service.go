// Package gateway turns incoming chat messages into bot actions. It owns
// deduplication, mention filtering, intent dispatch, and reply text.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/weeklyops/reportbot/internal/dedupe"
	"github.com/weeklyops/reportbot/internal/intent"
	"github.com/weeklyops/reportbot/internal/report"
	"github.com/weeklyops/reportbot/internal/store"
)

// Mention is one @-reference inside a message.
type Mention struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Key    string `json:"key"`
}

// MessageInput is a normalized chat message, transport independent.
type MessageInput struct {
	MessageID  string
	CreateTime string
	ChatID     string
	FromUserID string
	Text       string
	Mentions   []Mention
}

// Output is what the bot wants to say back. Handled is false only when the
// message was ignored (duplicate, not addressed to the bot).
type Output struct {
	Reply   string
	Handled bool
}

type TodoLedger interface {
	AddTodo(ctx context.Context, content, createdBy, mentionsJSON string) (store.Todo, error)
	PendingTodos(ctx context.Context) ([]store.Todo, error)
}

type ReportService interface {
	NextAnchor(from time.Time) time.Time
	GetOrCreate(ctx context.Context, anchor time.Time) *report.Artifact
	Skip(ctx context.Context, anchor time.Time) error
	CancelSkip(ctx context.Context, anchor time.Time) error
	IsSkipped(ctx context.Context, anchor time.Time) (bool, error)
	LastReport(ctx context.Context) (store.WeeklyReport, error)
}

type Refresher interface {
	Enqueue(anchor time.Time) (string, error)
}

type Classifier interface {
	Classify(ctx context.Context, text string) intent.Intent
}

type Messenger interface {
	SendTodoConfirmCard(ctx context.Context, chatID, bitableURL string) bool
	BitableURL() string
}

type Config struct {
	BotMentionKey string
	SyncRefresh   bool
}

type Service struct {
	cfg        Config
	todos      TodoLedger
	reports    ReportService
	refresher  Refresher
	classifier Classifier
	msgr       Messenger
	events     *dedupe.EventCache
	contents   *dedupe.ContentCache
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(cfg Config, todos TodoLedger, reports ReportService, refresher Refresher, classifier Classifier, msgr Messenger, events *dedupe.EventCache, contents *dedupe.ContentCache, logger *slog.Logger) *Service {
	if cfg.BotMentionKey == "" {
		cfg.BotMentionKey = "@_user_1"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:        cfg,
		todos:      todos,
		reports:    reports,
		refresher:  refresher,
		classifier: classifier,
		msgr:       msgr,
		events:     events,
		contents:   contents,
		logger:     logger.With("component", "gateway"),
		now:        time.Now,
	}
}

const helpText = `支持的指令：
- @我 + todo/待办 + 内容：记录待办
- @我 + 周报：获取本周周报链接
- @我 + 跳过本周：跳过本周周报
- @我 + 跳过 YYYY-MM-DD：跳过指定周
- @我 + 取消跳过：恢复本周周报
- @我 + 状态：查看当前状态
- @我 + 帮助：显示本信息`

// HandleMessage processes one chat message end to end. It never returns an
// error: failures degrade to a logged warning and, where sensible, a reply.
func (s *Service) HandleMessage(ctx context.Context, in MessageInput) Output {
	if s.events.Seen(in.MessageID + "_" + in.CreateTime) {
		return Output{}
	}
	if len(in.Mentions) == 0 {
		return Output{}
	}

	text, others := s.stripMentions(in.Text, in.Mentions)
	if s.contents.Seen(text) {
		s.logger.Info("duplicate message content ignored", "message_id", in.MessageID)
		return Output{}
	}

	it := s.classifier.Classify(ctx, text)
	s.logger.Info("message classified", "message_id", in.MessageID, "intent", string(it.Type))

	switch it.Type {
	case intent.TypeTodo:
		return s.handleTodo(ctx, in, it, text, others)
	case intent.TypeSendReport:
		return s.handleSendReport(ctx)
	case intent.TypeSkip:
		return s.handleSkip(ctx, it)
	case intent.TypeCancelSkip:
		return s.handleCancelSkip(ctx, it)
	case intent.TypeStatus:
		return s.handleStatus(ctx)
	case intent.TypeHelp:
		return Output{Reply: helpText, Handled: true}
	default:
		return Output{Handled: true}
	}
}

// stripMentions removes mention markers from the text and collects the
// mentions that are not the bot itself.
func (s *Service) stripMentions(text string, mentions []Mention) (string, []Mention) {
	others := make([]Mention, 0, len(mentions))
	for _, m := range mentions {
		if m.Key != "" {
			text = strings.ReplaceAll(text, m.Key, "")
		}
		if m.Key != s.cfg.BotMentionKey {
			others = append(others, m)
		}
	}
	return strings.TrimSpace(text), others
}

func (s *Service) handleTodo(ctx context.Context, in MessageInput, it intent.Intent, text string, others []Mention) Output {
	content := strings.TrimSpace(it.Content)
	if content == "" {
		content = intent.ExtractTodoContent(text)
	}
	if content == "" {
		return Output{Handled: true}
	}

	mentionsJSON := ""
	if len(others) > 0 {
		if raw, err := json.Marshal(others); err == nil {
			mentionsJSON = string(raw)
		}
	}
	if _, err := s.todos.AddTodo(ctx, content, in.FromUserID, mentionsJSON); err != nil {
		if errors.Is(err, store.ErrEmptyTodoContent) {
			return Output{Handled: true}
		}
		s.logger.Error("storing todo failed", "message_id", in.MessageID, "error", err)
		return Output{Reply: "记录 todo 失败，请稍后重试。", Handled: true}
	}

	anchor := s.reports.NextAnchor(s.now())
	created := false
	if s.cfg.SyncRefresh {
		created = s.reports.GetOrCreate(ctx, anchor) != nil
	} else if _, err := s.refresher.Enqueue(anchor); err != nil {
		s.logger.Warn("refresh enqueue failed", "week", report.WeekDate(anchor), "error", err)
	}

	if bitableURL := s.msgr.BitableURL(); bitableURL != "" {
		if s.msgr.SendTodoConfirmCard(ctx, in.ChatID, bitableURL) {
			return Output{Handled: true}
		}
	}
	if created {
		return Output{Reply: "已记录 todo，周报已创建。", Handled: true}
	}
	return Output{Reply: "已记录 todo。", Handled: true}
}

// handleSendReport is a pure lookup: it never creates a document, only
// replies with the latest recorded one.
func (s *Service) handleSendReport(ctx context.Context) Output {
	last, err := s.reports.LastReport(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrReportNotFound) {
			s.logger.Error("last report lookup failed", "error", err)
		}
		return Output{Reply: "暂无周报记录", Handled: true}
	}
	if last.DocURL == "" {
		return Output{Reply: "暂无周报记录", Handled: true}
	}
	return Output{Reply: "周报链接：" + last.DocURL, Handled: true}
}

func (s *Service) handleSkip(ctx context.Context, it intent.Intent) Output {
	anchor, out := s.resolveAnchor(it.Date)
	if out != nil {
		return *out
	}
	if err := s.reports.Skip(ctx, anchor); err != nil {
		s.logger.Error("skip week failed", "week", report.WeekDate(anchor), "error", err)
		return Output{Reply: "操作失败，请稍后重试。", Handled: true}
	}
	return Output{Reply: fmt.Sprintf("已跳过 %s 的周报", report.WeekDate(anchor)), Handled: true}
}

func (s *Service) handleCancelSkip(ctx context.Context, it intent.Intent) Output {
	anchor, out := s.resolveAnchor(it.Date)
	if out != nil {
		return *out
	}
	if err := s.reports.CancelSkip(ctx, anchor); err != nil {
		s.logger.Error("cancel skip failed", "week", report.WeekDate(anchor), "error", err)
		return Output{Reply: "操作失败，请稍后重试。", Handled: true}
	}
	return Output{Reply: fmt.Sprintf("已恢复 %s 的周报", report.WeekDate(anchor)), Handled: true}
}

// resolveAnchor turns an optional YYYY-MM-DD date into the week to act on,
// defaulting to the next report week. A malformed date yields a format hint
// reply instead of an anchor.
func (s *Service) resolveAnchor(date string) (time.Time, *Output) {
	if date == "" {
		return s.reports.NextAnchor(s.now()), nil
	}
	parsed, err := time.ParseInLocation("2006-01-02", date, s.now().Location())
	if err != nil {
		return time.Time{}, &Output{Reply: "日期格式不正确，请使用 YYYY-MM-DD。", Handled: true}
	}
	return parsed, nil
}

func (s *Service) handleStatus(ctx context.Context) Output {
	anchor := s.reports.NextAnchor(s.now())
	week := report.WeekDate(anchor)

	skipped, err := s.reports.IsSkipped(ctx, anchor)
	if err != nil {
		s.logger.Error("skip lookup failed", "week", week, "error", err)
	}
	skipLine := "正常"
	if skipped {
		skipLine = "已跳过"
	}

	pending := 0
	if todos, err := s.todos.PendingTodos(ctx); err != nil {
		s.logger.Error("pending todo lookup failed", "error", err)
	} else {
		pending = len(todos)
	}

	reply := fmt.Sprintf("下次周报：%s（%s）\n待办数量：%d", week, skipLine, pending)
	return Output{Reply: reply, Handled: true}
}
