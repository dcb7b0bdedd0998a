// Package narrator はナレーション生成サービスへのHTTPクライアントです。
package narrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"trpgserver/internal/gm"

	"go.uber.org/zap"
)

// ErrNotConfigured is returned when no narrator URL is set.
var ErrNotConfigured = errors.New("narrator url not configured")

type request struct {
	State    gm.State   `json:"state"`
	Choices  gm.Choices `json:"choices"`
	Language string     `json:"language"`
}

// Client posts the session state and choices and returns the raw reply text.
type Client struct {
	url      string
	language string
	http     *http.Client
	logger   *zap.Logger
}

func New(url, language string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		url:      url,
		language: language,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Resolve はターンの結果を問い合わせ、応答本文をそのまま返します。
// 本文の検証はしません(gm.NormalizeTextで正規化する)。
func (c *Client) Resolve(ctx context.Context, st gm.State, choices gm.Choices) (string, error) {
	if c.url == "" {
		return "", ErrNotConfigured
	}
	body, err := json.Marshal(request{State: st, Choices: choices, Language: c.language})
	if err != nil {
		return "", fmt.Errorf("encode narrator request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build narrator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("Narrator request failed", zap.String("sessionID", st.SessionID), zap.Error(err))
		return "", fmt.Errorf("narrator request: %w", err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read narrator response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("narrator returned status %d", resp.StatusCode)
	}
	c.logger.Info("Narrator responded",
		zap.String("sessionID", st.SessionID),
		zap.Int("turn", st.Turn),
		zap.Duration("latency", time.Since(start)),
	)
	return string(text), nil
}
