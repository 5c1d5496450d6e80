package intent

import (
	"regexp"
	"strings"
)

var (
	skipDatedPattern       = regexp.MustCompile(`^跳过\s+(\d{4}-\d{2}-\d{2})$`)
	cancelSkipDatedPattern = regexp.MustCompile(`^取消跳过\s+(\d{4}-\d{2}-\d{2})$`)
	todoKeywordPattern     = regexp.MustCompile(`(?i)(?:todo|待办)[:：\s，,]*`)
	mentionMarkerPattern   = regexp.MustCompile(`@_user_\d+`)
)

// RuleClassify is the deterministic fallback used when the remote classifier
// is unavailable. Matching order: exact skip/cancel-skip commands, exact
// status/help queries, report keyword, todo keyword, unknown.
func RuleClassify(text string) Intent {
	msg := strings.TrimSpace(text)

	switch msg {
	case "跳过本周", "跳过":
		return Intent{Type: TypeSkip}
	case "取消跳过", "恢复本周":
		return Intent{Type: TypeCancelSkip}
	case "状态", "查看状态", "status":
		return Intent{Type: TypeStatus}
	case "帮助", "help", "?":
		return Intent{Type: TypeHelp}
	}
	if match := skipDatedPattern.FindStringSubmatch(msg); match != nil {
		return Intent{Type: TypeSkip, Date: match[1]}
	}
	if match := cancelSkipDatedPattern.FindStringSubmatch(msg); match != nil {
		return Intent{Type: TypeCancelSkip, Date: match[1]}
	}

	if strings.Contains(msg, "周报") {
		return Intent{Type: TypeSendReport}
	}

	if todoKeywordPattern.MatchString(msg) {
		return Intent{Type: TypeTodo, Content: ExtractTodoContent(msg)}
	}

	return Intent{Type: TypeUnknown}
}

// ExtractTodoContent strips the todo keyword prefix and mention markers,
// leaving the task text itself.
func ExtractTodoContent(text string) string {
	msg := strings.TrimSpace(text)
	if loc := todoKeywordPattern.FindStringIndex(msg); loc != nil {
		msg = msg[loc[1]:]
	}
	msg = mentionMarkerPattern.ReplaceAllString(msg, "")
	msg = strings.TrimLeft(msg, ":：，, \t")
	return strings.TrimSpace(msg)
}
