package intent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/weeklyops/reportbot/internal/llm"
)

type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	return f.reply, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseResponseDirectJSON(t *testing.T) {
	it, err := ParseResponse(`{"intent": "todo", "content": "1. 开会 2. 写文档"}`)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if it.Type != TypeTodo || it.Content != "1. 开会 2. 写文档" {
		t.Fatalf("unexpected intent: %+v", it)
	}
}

func TestParseResponseExtractsJSONFromProse(t *testing.T) {
	it, err := ParseResponse("好的，分类结果如下：\n{\"intent\": \"skip\", \"date\": \"2026-01-29\"}\n以上。")
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if it.Type != TypeSkip || it.Date != "2026-01-29" {
		t.Fatalf("unexpected intent: %+v", it)
	}
}

func TestParseResponseUnknownIntentValue(t *testing.T) {
	it, err := ParseResponse(`{"intent": "banana"}`)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if it.Type != TypeUnknown {
		t.Fatalf("expected unknown, got %q", it.Type)
	}
}

func TestParseResponseNoJSON(t *testing.T) {
	if _, err := ParseResponse("今天天气不错"); !errors.Is(err, ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON, got %v", err)
	}
}

func TestParseResponseDropsContentForNonTodo(t *testing.T) {
	it, err := ParseResponse(`{"intent": "send_report", "content": "leftover"}`)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if it.Content != "" {
		t.Fatalf("content should only be kept for todo intents, got %q", it.Content)
	}
}

func TestClassifyFallsBackOnCompleterError(t *testing.T) {
	c := NewClassifier(&fakeCompleter{err: errors.New("boom")}, discardLogger())

	it := c.Classify(context.Background(), "跳过本周")
	if it.Type != TypeSkip {
		t.Fatalf("expected rule fallback to classify skip, got %q", it.Type)
	}
}

func TestClassifyFallsBackWhenUnavailable(t *testing.T) {
	c := NewClassifier(&fakeCompleter{err: llm.ErrUnavailable}, discardLogger())

	it := c.Classify(context.Background(), "todo 完成开发")
	if it.Type != TypeTodo || it.Content != "完成开发" {
		t.Fatalf("unexpected fallback intent: %+v", it)
	}
}

func TestClassifyGarbageReplyIsUnknown(t *testing.T) {
	c := NewClassifier(&fakeCompleter{reply: "我不知道你在说什么"}, discardLogger())

	it := c.Classify(context.Background(), "todo 完成开发")
	if it.Type != TypeUnknown {
		t.Fatalf("unparseable reply should be unknown, got %q", it.Type)
	}
}

func TestClassifyWithoutCompleterUsesRules(t *testing.T) {
	c := NewClassifier(nil, discardLogger())

	it := c.Classify(context.Background(), "状态")
	if it.Type != TypeStatus {
		t.Fatalf("expected status, got %q", it.Type)
	}
}

func TestRuleClassify(t *testing.T) {
	cases := []struct {
		text    string
		want    Type
		date    string
		content string
	}{
		{text: "跳过本周", want: TypeSkip},
		{text: "跳过", want: TypeSkip},
		{text: "跳过 2026-01-29", want: TypeSkip, date: "2026-01-29"},
		{text: "取消跳过", want: TypeCancelSkip},
		{text: "恢复本周", want: TypeCancelSkip},
		{text: "取消跳过 2026-01-29", want: TypeCancelSkip, date: "2026-01-29"},
		{text: "状态", want: TypeStatus},
		{text: "status", want: TypeStatus},
		{text: "帮助", want: TypeHelp},
		{text: "?", want: TypeHelp},
		{text: "发一下周报", want: TypeSendReport},
		{text: "todo 完成开发", want: TypeTodo, content: "完成开发"},
		{text: "待办：写测试", want: TypeTodo, content: "写测试"},
		{text: "今天天气真好", want: TypeUnknown},
	}
	for _, tc := range cases {
		it := RuleClassify(tc.text)
		if it.Type != tc.want {
			t.Errorf("RuleClassify(%q) = %q, want %q", tc.text, it.Type, tc.want)
		}
		if it.Date != tc.date {
			t.Errorf("RuleClassify(%q) date = %q, want %q", tc.text, it.Date, tc.date)
		}
		if it.Content != tc.content {
			t.Errorf("RuleClassify(%q) content = %q, want %q", tc.text, it.Content, tc.content)
		}
	}
}

func TestExtractTodoContent(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{text: "todo 完成开发", want: "完成开发"},
		{text: "todo", want: ""},
		{text: "待办：@_user_2 跟进上线", want: "跟进上线"},
		{text: "1. 开会 2. 写文档", want: "1. 开会 2. 写文档"},
	}
	for _, tc := range cases {
		if got := ExtractTodoContent(tc.text); got != tc.want {
			t.Errorf("ExtractTodoContent(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestRuleClassifyStripsMentionMarkersFromTodo(t *testing.T) {
	it := RuleClassify("todo @_user_2 跟进上线")
	if it.Type != TypeTodo {
		t.Fatalf("expected todo, got %q", it.Type)
	}
	if it.Content != "跟进上线" {
		t.Fatalf("expected mention markers stripped, got %q", it.Content)
	}
}
