// slapapi is a thin client for the game platform's public lobby API.
package slapapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIError is returned for any non-2xx response so callers can inspect the
// status code (ingestion treats a failed telemetry fetch differently from a
// decode error).
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slap api returned %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Score is a home/away score pair.
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// PlayerSeed carries one player's stats forward into a replacement lobby.
type PlayerSeed struct {
	SlapID int64              `json:"game_user_id"`
	Team   string             `json:"team"`
	Stats  map[string]float64 `json:"stats"`
}

// LobbySettings is the full configuration sent on lobby creation.
type LobbySettings struct {
	Name           string       `json:"name"`
	Password       string       `json:"password"`
	Region         string       `json:"region"`
	GameMode       string       `json:"gamemode"`
	Arena          string       `json:"arena,omitempty"`
	PeriodsEnabled bool         `json:"periods_enabled"`
	MercyRule      bool         `json:"mercy_rule"`
	MatchLengthSec int          `json:"match_length"`
	CurrentPeriod  int          `json:"current_period"`
	InitialScore   *Score       `json:"initial_score,omitempty"`
	InitialStats   []PlayerSeed `json:"initial_stats,omitempty"`
}

type createLobbyResponse struct {
	Success bool  `json:"success"`
	LobbyID int64 `json:"lobby_id"`
}

// LobbyState is the polled state of a live lobby.
type LobbyState struct {
	LobbyID        int64 `json:"lobby_id"`
	CurrentPeriod  int   `json:"current_period"`
	InGame         bool  `json:"in_game"`
	PeriodsEnabled bool  `json:"periods_enabled"`
}

// TelemetryPlayer is one player's line in a period payload. Stats arrive as a
// loose numeric map; ingestion coerces the known counters.
type TelemetryPlayer struct {
	SlapID int64              `json:"game_user_id"`
	Name   string             `json:"username"`
	Team   string             `json:"team"` // "home" or "away"
	Stats  map[string]float64 `json:"stats"`
}

// TelemetryMatch is one scored period as reported by the platform.
type TelemetryMatch struct {
	ID             string            `json:"id"`
	Region         string            `json:"region"`
	GameMode       string            `json:"gamemode"`
	Arena          string            `json:"arena"`
	PeriodsEnabled bool              `json:"periods_enabled"`
	MercyRule      bool              `json:"mercy_rule"`
	CurrentPeriod  int               `json:"current_period"`
	Score          Score             `json:"score"`
	Winner         string            `json:"winner"`
	EndReason      string            `json:"end_reason"`
	Players        []TelemetryPlayer `json:"players"`
}

// CreateLobby creates a lobby and returns its platform id. A 2xx response
// with success=false is still a failure: the platform rejected the settings.
func (c *Client) CreateLobby(ctx context.Context, settings LobbySettings) (int64, error) {
	var out createLobbyResponse
	if err := c.do(ctx, http.MethodPost, "/api/public/lobbies", settings, &out); err != nil {
		return 0, err
	}
	if !out.Success {
		return 0, fmt.Errorf("lobby create rejected by platform")
	}
	return out.LobbyID, nil
}

func (c *Client) GetLobby(ctx context.Context, lobbyID int64) (*LobbyState, error) {
	var out LobbyState
	path := fmt.Sprintf("/api/public/lobbies/%d", lobbyID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLobbyMatches fetches all period telemetry recorded for a lobby.
func (c *Client) GetLobbyMatches(ctx context.Context, lobbyID int64) ([]TelemetryMatch, error) {
	var out []TelemetryMatch
	path := fmt.Sprintf("/api/public/lobbies/%d/matches", lobbyID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteLobby tears down the in-game lobby and returns the response status
// code. The monitor records whether deletion succeeded in its terminal
// summary.
func (c *Client) DeleteLobby(ctx context.Context, lobbyID int64) (int, error) {
	path := fmt.Sprintf("/api/public/lobbies/%d", lobbyID)
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	return resp.StatusCode, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
