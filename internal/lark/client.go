// Package lark wraps the open-platform HTTP APIs the bot depends on: group
// messaging, document copy/permission, and the bitable report ledger.
package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

type Config struct {
	AppID           string
	AppSecret       string
	BaseURL         string
	DocBaseURL      string
	BitableAppToken string
	BitableTableID  string
	Timeout         time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	mu          sync.Mutex
	tenantToken string
	tokenExpiry time.Time
}

func New(cfg Config, logger *slog.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://open.larkoffice.com/open-apis"
	}
	if strings.TrimSpace(cfg.DocBaseURL) == "" {
		cfg.DocBaseURL = "https://larkoffice.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// BitableConfigured reports whether the remote report ledger is usable.
func (c *Client) BitableConfigured() bool {
	return c.cfg.BitableAppToken != "" && c.cfg.BitableTableID != ""
}

// BitableURL is the browser view of the remote report ledger, used in the
// todo confirmation card.
func (c *Client) BitableURL() string {
	if !c.BitableConfigured() {
		return ""
	}
	return fmt.Sprintf("%s/base/%s?table=%s", strings.TrimRight(c.cfg.DocBaseURL, "/"), c.cfg.BitableAppToken, c.cfg.BitableTableID)
}

func (c *Client) SendText(ctx context.Context, chatID, text string) bool {
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return false
	}
	return c.sendMessage(ctx, chatID, "text", string(content))
}

func (c *Client) SendReportCard(ctx context.Context, chatID, title, docURL string) bool {
	card := map[string]any{
		"config": map[string]any{"wide_screen_mode": true},
		"header": map[string]any{
			"title":    map[string]string{"tag": "plain_text", "content": title},
			"template": "blue",
		},
		"elements": []any{
			map[string]any{
				"tag": "action",
				"actions": []any{
					map[string]any{
						"tag":  "button",
						"text": map[string]string{"tag": "plain_text", "content": "查看周报"},
						"url":  docURL,
						"type": "primary",
					},
				},
			},
		},
	}
	payload, err := json.Marshal(card)
	if err != nil {
		return false
	}
	return c.sendMessage(ctx, chatID, "interactive", string(payload))
}

func (c *Client) SendTodoConfirmCard(ctx context.Context, chatID, bitableURL string) bool {
	card := map[string]any{
		"config": map[string]any{"wide_screen_mode": true},
		"header": map[string]any{
			"title":    map[string]string{"tag": "plain_text", "content": "已记录 todo"},
			"template": "green",
		},
		"elements": []any{
			map[string]any{
				"tag":  "div",
				"text": map[string]string{"tag": "lark_md", "content": "待办已写入周报汇总表"},
			},
			map[string]any{
				"tag": "action",
				"actions": []any{
					map[string]any{
						"tag":  "button",
						"text": map[string]string{"tag": "plain_text", "content": "查看汇总表"},
						"url":  bitableURL,
						"type": "default",
					},
				},
			},
		},
	}
	payload, err := json.Marshal(card)
	if err != nil {
		return false
	}
	return c.sendMessage(ctx, chatID, "interactive", string(payload))
}

func (c *Client) sendMessage(ctx context.Context, chatID, msgType, content string) bool {
	body := map[string]string{
		"receive_id": chatID,
		"msg_type":   msgType,
		"content":    content,
	}
	var response apiResponse
	if err := c.postJSON(ctx, "/im/v1/messages?receive_id_type=chat_id", body, &response); err != nil {
		c.logger.Error("send message failed", "chat_id", chatID, "msg_type", msgType, "error", err)
		return false
	}
	if response.Code != 0 {
		c.logger.Error("send message rejected", "chat_id", chatID, "code", response.Code, "msg", response.Msg)
		return false
	}
	return true
}

// CopyDocument copies the source document under a new title and returns the
// new document token and url.
func (c *Client) CopyDocument(ctx context.Context, sourceToken, title string) (string, string, error) {
	body := map[string]string{
		"name": title,
		"type": "docx",
	}
	var response struct {
		apiResponse
		Data struct {
			File struct {
				Token string `json:"token"`
				URL   string `json:"url"`
			} `json:"file"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/drive/v1/files/%s/copy", sourceToken)
	if err := c.postJSON(ctx, path, body, &response); err != nil {
		return "", "", fmt.Errorf("copy document: %w", err)
	}
	if response.Code != 0 {
		return "", "", fmt.Errorf("copy document rejected: code=%d msg=%s", response.Code, response.Msg)
	}
	token := strings.TrimSpace(response.Data.File.Token)
	if token == "" {
		return "", "", fmt.Errorf("copy document returned no token")
	}
	url := strings.TrimSpace(response.Data.File.URL)
	if url == "" {
		url = fmt.Sprintf("%s/docx/%s", strings.TrimRight(c.cfg.DocBaseURL, "/"), token)
	}
	return token, url, nil
}

func (c *Client) GrantPermission(ctx context.Context, docToken, memberID, memberType, perm string) bool {
	body := map[string]string{
		"member_type": memberType,
		"member_id":   memberID,
		"perm":        perm,
	}
	var response apiResponse
	path := fmt.Sprintf("/drive/v1/permissions/%s/members?type=docx", docToken)
	if err := c.postJSON(ctx, path, body, &response); err != nil {
		c.logger.Error("grant permission failed", "member_id", memberID, "perm", perm, "error", err)
		return false
	}
	if response.Code != 0 {
		c.logger.Error("grant permission rejected", "member_id", memberID, "code", response.Code, "msg", response.Msg)
		return false
	}
	return true
}

// FindReportRecord looks up the remote ledger row for the given report date
// and returns its document link. An unconfigured bitable is not an error.
func (c *Client) FindReportRecord(ctx context.Context, date string) (string, bool, error) {
	if !c.BitableConfigured() {
		return "", false, nil
	}
	body := map[string]any{
		"filter": map[string]any{
			"conjunction": "and",
			"conditions": []any{
				map[string]any{
					"field_name": "周报日期",
					"operator":   "is",
					"value":      []string{date},
				},
			},
		},
		"page_size": 1,
	}
	var response struct {
		apiResponse
		Data struct {
			Items []struct {
				Fields map[string]json.RawMessage `json:"fields"`
			} `json:"items"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/bitable/v1/apps/%s/tables/%s/records/search", c.cfg.BitableAppToken, c.cfg.BitableTableID)
	if err := c.postJSON(ctx, path, body, &response); err != nil {
		return "", false, fmt.Errorf("search bitable record: %w", err)
	}
	if response.Code != 0 {
		return "", false, fmt.Errorf("search bitable record rejected: code=%d msg=%s", response.Code, response.Msg)
	}
	if len(response.Data.Items) == 0 {
		return "", false, nil
	}
	return extractLinkField(response.Data.Items[0].Fields["文档链接"]), true, nil
}

func (c *Client) UpsertReportRecord(ctx context.Context, date, title, docURL, status string) error {
	if !c.BitableConfigured() {
		return nil
	}
	body := map[string]any{
		"fields": map[string]any{
			"周报日期": date,
			"标题":   title,
			"文档链接": map[string]string{"link": docURL, "text": title},
			"状态":   status,
		},
	}
	var response apiResponse
	path := fmt.Sprintf("/bitable/v1/apps/%s/tables/%s/records", c.cfg.BitableAppToken, c.cfg.BitableTableID)
	if err := c.postJSON(ctx, path, body, &response); err != nil {
		return fmt.Errorf("create bitable record: %w", err)
	}
	if response.Code != 0 {
		return fmt.Errorf("create bitable record rejected: code=%d msg=%s", response.Code, response.Msg)
	}
	return nil
}

func extractLinkField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var link struct {
		Link string `json:"link"`
	}
	if err := json.Unmarshal(raw, &link); err == nil && link.Link != "" {
		return link.Link
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	return ""
}

type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	token, err := c.ensureTenantToken(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("lark api %s failed with status %d", path, res.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode lark response: %w", err)
	}
	return nil
}

func (c *Client) ensureTenantToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tenantToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.tenantToken, nil
	}

	body, err := json.Marshal(map[string]string{
		"app_id":     c.cfg.AppID,
		"app_secret": c.cfg.AppSecret,
	})
	if err != nil {
		return "", fmt.Errorf("marshal token request: %w", err)
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/auth/v3/tenant_access_token/internal"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var response struct {
		apiResponse
		TenantAccessToken string `json:"tenant_access_token"`
		Expire            int    `json:"expire"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("decode tenant token response: %w", err)
	}
	if response.Code != 0 || response.TenantAccessToken == "" {
		return "", fmt.Errorf("tenant token rejected: code=%d msg=%s", response.Code, response.Msg)
	}

	c.tenantToken = response.TenantAccessToken
	expire := response.Expire
	if expire <= 60 {
		expire = 7200
	}
	// Refresh a minute before the platform expires it.
	c.tokenExpiry = time.Now().Add(time.Duration(expire-60) * time.Second)
	return c.tenantToken, nil
}
