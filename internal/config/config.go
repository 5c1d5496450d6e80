package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Environment string
	HTTPAddr    string
	DataDir     string
	DBPath      string

	LarkAppID         string
	LarkAppSecret     string
	LarkAPIBase       string
	LarkWSURL         string
	LarkDocBase       string
	BotMentionKey     string
	TargetChatID      string
	BitableAppToken   string
	BitableTableID    string
	TemplateDocToken  string
	ReportTitlePrefix string
	ReportWeekday     int // 0=Sunday .. 6=Saturday
	ScheduleSpec      string
	ScheduleTimezone  string
	SyncRefresh       bool
	RefreshWorkers    int

	DocOwnerOpenID string
	DocOwnerPerm   string

	ArkAPIKey     string
	ArkBaseURL    string
	ArkModel      string
	ArkTimeoutSec int

	EventCacheSize       int
	ContentDedupSeconds  int
	ExternalTimeoutSec   int
	RefreshJobTimeoutSec int
}

func FromEnv() Config {
	dataDir := stringOrDefault("REPORTBOT_DATA_DIR", "data")
	dbPath := stringOrDefault("REPORTBOT_DB_PATH", filepath.Join(dataDir, "bot.sqlite"))

	return Config{
		Environment: stringOrDefault("REPORTBOT_ENV", "development"),
		HTTPAddr:    stringOrDefault("REPORTBOT_HTTP_ADDR", ":8080"),
		DataDir:     dataDir,
		DBPath:      dbPath,

		LarkAppID:         strings.TrimSpace(os.Getenv("REPORTBOT_LARK_APP_ID")),
		LarkAppSecret:     os.Getenv("REPORTBOT_LARK_APP_SECRET"),
		LarkAPIBase:       stringOrDefault("REPORTBOT_LARK_API_BASE", "https://open.larkoffice.com/open-apis"),
		LarkWSURL:         strings.TrimSpace(os.Getenv("REPORTBOT_LARK_WS_URL")),
		LarkDocBase:       stringOrDefault("REPORTBOT_LARK_DOC_BASE", "https://larkoffice.com"),
		BotMentionKey:     stringOrDefault("REPORTBOT_BOT_MENTION_KEY", "@_user_1"),
		TargetChatID:      strings.TrimSpace(os.Getenv("REPORTBOT_TARGET_CHAT_ID")),
		BitableAppToken:   strings.TrimSpace(os.Getenv("REPORTBOT_BITABLE_APP_TOKEN")),
		BitableTableID:    strings.TrimSpace(os.Getenv("REPORTBOT_BITABLE_TABLE_ID")),
		TemplateDocToken:  strings.TrimSpace(os.Getenv("REPORTBOT_TEMPLATE_DOC_TOKEN")),
		ReportTitlePrefix: stringOrDefault("REPORTBOT_TITLE_PREFIX", "周报"),
		ReportWeekday:     intOrDefault("REPORTBOT_REPORT_WEEKDAY", 3),
		ScheduleSpec:      stringOrDefault("REPORTBOT_SCHEDULE_SPEC", "0 11 * * 2"),
		ScheduleTimezone:  stringOrDefault("REPORTBOT_SCHEDULE_TIMEZONE", "Asia/Shanghai"),
		SyncRefresh:       boolOrDefault("REPORTBOT_SYNC_REFRESH", false),
		RefreshWorkers:    intOrDefault("REPORTBOT_REFRESH_WORKERS", 2),

		DocOwnerOpenID: strings.TrimSpace(os.Getenv("REPORTBOT_DOC_OWNER_OPEN_ID")),
		DocOwnerPerm:   stringOrDefault("REPORTBOT_DOC_OWNER_PERM", "full_access"),

		ArkAPIKey:     strings.TrimSpace(os.Getenv("REPORTBOT_ARK_API_KEY")),
		ArkBaseURL:    stringOrDefault("REPORTBOT_ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkModel:      strings.TrimSpace(os.Getenv("REPORTBOT_ARK_MODEL")),
		ArkTimeoutSec: intOrDefault("REPORTBOT_ARK_TIMEOUT_SECONDS", 30),

		EventCacheSize:       intOrDefault("REPORTBOT_EVENT_CACHE_SIZE", 1000),
		ContentDedupSeconds:  intOrDefault("REPORTBOT_CONTENT_DEDUP_SECONDS", 300),
		ExternalTimeoutSec:   intOrDefault("REPORTBOT_EXTERNAL_TIMEOUT_SECONDS", 15),
		RefreshJobTimeoutSec: intOrDefault("REPORTBOT_REFRESH_JOB_TIMEOUT_SECONDS", 120),
	}
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
