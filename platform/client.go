// Package platform is the HTTP client for the social platform's internal
// API, which owns user XP, clan XP, game statistics and notifications.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/playverse/tournament-engine/services"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

var (
	_ services.UserProgression = (*Client)(nil)
	_ services.ClanProgression = (*Client)(nil)
	_ services.Notifier        = (*Client)(nil)
)

func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

func (c *Client) AwardXP(ctx context.Context, userID, amount int, reason string) error {
	return c.post(ctx, fmt.Sprintf("/internal/users/%d/xp", userID), map[string]interface{}{
		"amount": amount,
		"reason": reason,
	})
}

func (c *Client) IncrementGameStats(ctx context.Context, userID int, delta services.GameStatsDelta) error {
	return c.post(ctx, fmt.Sprintf("/internal/users/%d/game-stats", userID), map[string]interface{}{
		"wins":         delta.Wins,
		"games_played": delta.GamesPlayed,
	})
}

func (c *Client) AwardClanXP(ctx context.Context, clanID, amount int, reason string) error {
	return c.post(ctx, fmt.Sprintf("/internal/clans/%d/xp", clanID), map[string]interface{}{
		"amount": amount,
		"reason": reason,
	})
}

func (c *Client) Notify(ctx context.Context, userID int, title, message string, data map[string]interface{}) error {
	return c.post(ctx, "/internal/notifications", map[string]interface{}{
		"user_id": userID,
		"title":   title,
		"message": message,
		"data":    data,
	})
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode platform request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build platform request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("platform request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		// Read a bounded slice of the body for the error message.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("platform request to %s returned %d: %s", path, resp.StatusCode, snippet)
	}

	c.logger.Debug("platform call succeeded", slog.String("path", path))
	return nil
}
