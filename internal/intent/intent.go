// Package intent maps free chat text to a closed set of bot intents, using a
// remote classifier with a deterministic rule fallback.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/weeklyops/reportbot/internal/llm"
)

type Type string

const (
	TypeTodo       Type = "todo"
	TypeSendReport Type = "send_report"
	TypeSkip       Type = "skip"
	TypeCancelSkip Type = "cancel_skip"
	TypeStatus     Type = "status"
	TypeHelp       Type = "help"
	TypeUnknown    Type = "unknown"
)

type Intent struct {
	Type    Type
	Content string
	Date    string
}

var ErrNoJSON = errors.New("classifier response contains no JSON object")

const classifierSystemPrompt = `你是周报机器人的意图识别器。

意图：
- todo: 包含待办事项（有"todo"、"待办"、"本周"、带序号列表等）
- send_report: 要求发送/查看周报
- skip: 要求跳过周报
- cancel_skip: 取消跳过
- status: 查询状态
- help: 请求帮助
- unknown: 无法识别

返回JSON：
- 非todo意图：{"intent": "xxx"}
- todo意图：{"intent": "todo", "content": "提取的todo内容"}
- 带具体日期的 skip/cancel_skip：附加 "date": "YYYY-MM-DD"

提取todo内容时：
- 去掉"todo"、"待办"等前缀词
- 去掉@人的标记
- 保留实际的任务内容

示例：
"本周todo：1. 开会 2. 写文档" → {"intent": "todo", "content": "1. 开会 2. 写文档"}
"todo 完成周报" → {"intent": "todo", "content": "完成周报"}
"发一下周报" → {"intent": "send_report"}
"这周跳过" → {"intent": "skip"}
"跳过 2026-01-29" → {"intent": "skip", "date": "2026-01-29"}
"天气真好" → {"intent": "unknown"}`

type Classifier struct {
	completer llm.Completer
	logger    *slog.Logger
}

func NewClassifier(completer llm.Completer, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{completer: completer, logger: logger}
}

// Classify never fails: a classifier transport error degrades to the rule
// fallback, an unparseable classifier reply degrades to unknown.
func (c *Classifier) Classify(ctx context.Context, text string) Intent {
	if c.completer == nil {
		return RuleClassify(text)
	}
	raw, err := c.completer.Complete(ctx, classifierSystemPrompt, text)
	if err != nil {
		if !errors.Is(err, llm.ErrUnavailable) {
			c.logger.Warn("intent classifier call failed, using rule fallback", "error", err)
		}
		return RuleClassify(text)
	}
	parsed, err := ParseResponse(raw)
	if err != nil {
		c.logger.Warn("intent classifier reply was not JSON", "reply", truncate(raw, 200))
		return Intent{Type: TypeUnknown}
	}
	return parsed
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ParseResponse decodes the classifier's JSON reply, extracting the first
// well-formed JSON object from surrounding prose before giving up.
func ParseResponse(raw string) (Intent, error) {
	trimmed := strings.TrimSpace(raw)

	var payload classifierReply
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		extracted := jsonObjectPattern.FindString(trimmed)
		if extracted == "" {
			return Intent{}, ErrNoJSON
		}
		if err := json.Unmarshal([]byte(extracted), &payload); err != nil {
			return Intent{}, ErrNoJSON
		}
	}

	intentType := normalizeType(payload.Intent)
	result := Intent{Type: intentType, Date: strings.TrimSpace(payload.Date)}
	if intentType == TypeTodo {
		result.Content = strings.TrimSpace(payload.Content)
	}
	return result, nil
}

type classifierReply struct {
	Intent  string `json:"intent"`
	Content string `json:"content"`
	Date    string `json:"date"`
}

func normalizeType(raw string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeTodo:
		return TypeTodo
	case TypeSendReport:
		return TypeSendReport
	case TypeSkip:
		return TypeSkip
	case TypeCancelSkip:
		return TypeCancelSkip
	case TypeStatus:
		return TypeStatus
	case TypeHelp:
		return TypeHelp
	default:
		return TypeUnknown
	}
}

func truncate(input string, limit int) string {
	if len(input) <= limit {
		return input
	}
	return input[:limit] + "..."
}
