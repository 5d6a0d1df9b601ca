// Package remote is the console's client for the authoritative API.
// Network failures, timeouts and 5xx answers surface as
// apperr.TransportError so the caller can fall back to local execution.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/gamehall/internal/apperr"
	"github.com/goodtune/gamehall/internal/metrics"
	"github.com/goodtune/gamehall/internal/report"
	"github.com/goodtune/gamehall/internal/storage"
	"github.com/goodtune/gamehall/internal/wire"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 10 * time.Second

// Options configures a Client.
type Options struct {
	BaseURL    string
	Username   string
	Password   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client talks to the API server. It logs in lazily and again whenever
// the server answers 401.
type Client struct {
	base     *url.URL
	username string
	password string
	http     *http.Client
	logger   zerolog.Logger

	mu     sync.RWMutex
	token  string
	secret string
}

// New creates a Client for opts.BaseURL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("server url %q must include scheme and host", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		base:     base,
		username: opts.Username,
		password: opts.Password,
		http:     httpClient,
		logger:   opts.Logger.With().Str("component", "remote").Logger(),
	}, nil
}

// SetAdminSecret sets the secret sent on privileged requests.
func (c *Client) SetAdminSecret(secret string) {
	c.mu.Lock()
	c.secret = secret
	c.mu.Unlock()
}

// Login obtains a fresh token.
func (c *Client) Login(ctx context.Context) error {
	var resp wire.LoginResponse
	err := c.send(ctx, "login", http.MethodPost, "/api/auth/login", wire.LoginRequest{
		Username: c.username,
		Password: c.password,
	}, &resp, false)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()
	c.logger.Debug().Time("expires_at", resp.ExpiresAt).Msg("Logged in")
	return nil
}

func (c *Client) Health(ctx context.Context) error {
	var resp wire.HealthResponse
	return c.send(ctx, "health", http.MethodGet, "/health", nil, &resp, false)
}

func (c *Client) Stations(ctx context.Context) ([]storage.Station, error) {
	var resp wire.StationsResponse
	if err := c.do(ctx, "get_stations", http.MethodGet, "/api/stations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Stations, nil
}

func (c *Client) ActiveSessions(ctx context.Context) ([]storage.Session, error) {
	var resp wire.SessionsResponse
	if err := c.do(ctx, "get_active_sessions", http.MethodGet, "/api/sessions/active", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *Client) Rates(ctx context.Context) (storage.Rates, error) {
	var resp wire.SettingsResponse
	if err := c.do(ctx, "get_settings", http.MethodGet, "/api/settings", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rates, nil
}

func (c *Client) StartSession(ctx context.Context, req wire.StartSessionRequest) (*storage.Session, error) {
	var resp wire.SessionResponse
	if err := c.do(ctx, "start_session", http.MethodPost, "/api/sessions", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

// SyncSession hands the server a session record kept while it was unreachable.
func (c *Client) SyncSession(ctx context.Context, sess storage.Session) (*storage.Session, error) {
	var resp wire.SessionResponse
	if err := c.do(ctx, "sync_session", http.MethodPost, "/api/sessions/sync", wire.SyncSessionRequest{Session: sess}, &resp); err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

func (c *Client) ExtendSession(ctx context.Context, id string, minutes int) (*storage.Session, error) {
	var resp wire.SessionResponse
	path := "/api/sessions/" + url.PathEscape(id) + "/extend"
	if err := c.do(ctx, "extend_session", http.MethodPost, path, wire.ExtendSessionRequest{Minutes: minutes}, &resp); err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

func (c *Client) ConvertSession(ctx context.Context, id string) (*storage.Session, error) {
	var resp wire.SessionResponse
	path := "/api/sessions/" + url.PathEscape(id) + "/convert"
	if err := c.do(ctx, "convert_session", http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

func (c *Client) EndSession(ctx context.Context, id string) (*wire.EndSessionResponse, error) {
	var resp wire.EndSessionResponse
	path := "/api/sessions/" + url.PathEscape(id) + "/end"
	if err := c.do(ctx, "end_session", http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) AddStation(ctx context.Context, name string) (*storage.Station, error) {
	var resp wire.StationResponse
	if err := c.do(ctx, "add_station", http.MethodPost, "/api/stations", wire.AddStationRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp.Station, nil
}

func (c *Client) RemoveStation(ctx context.Context, id string) error {
	return c.do(ctx, "remove_station", http.MethodDelete, "/api/stations/"+url.PathEscape(id), nil, nil)
}

func (c *Client) UpdateRate(ctx context.Context, mode storage.Mode, rate int64) (storage.Rates, error) {
	var resp wire.SettingsResponse
	if err := c.do(ctx, "update_settings", http.MethodPut, "/api/settings/rates", wire.UpdateRateRequest{Mode: mode, Rate: rate}, &resp); err != nil {
		return nil, err
	}
	return resp.Rates, nil
}

func (c *Client) DailyReport(ctx context.Context, date time.Time) (*report.DailyReport, error) {
	var resp report.DailyReport
	path := "/api/reports/daily?date=" + url.QueryEscape(date.Format(report.DateLayout))
	if err := c.do(ctx, "get_daily_report", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Stats(ctx context.Context) (*wire.StatsResponse, error) {
	var resp wire.StatsResponse
	if err := c.do(ctx, "get_stats", http.MethodGet, "/api/stats", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ClearReports(ctx context.Context) (int, error) {
	var resp wire.ClearReportsResponse
	if err := c.do(ctx, "clear_reports", http.MethodDelete, "/api/reports", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// do sends an authenticated request, logging in first when needed and
// once more after a 401.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	if c.currentToken() == "" {
		if err := c.Login(ctx); err != nil {
			return err
		}
	}
	err := c.send(ctx, op, method, path, body, out, true)
	if !errors.Is(err, apperr.ErrUnauthorized) {
		return err
	}
	c.logger.Debug().Str("op", op).Msg("Token rejected, logging in again")
	if err := c.Login(ctx); err != nil {
		return err
	}
	return c.send(ctx, op, method, path, body, out, true)
}

func (c *Client) send(ctx context.Context, op, method, path string, body, out any, authed bool) (err error) {
	started := time.Now()
	defer func() { metrics.ObserveRemote(op, started, err) }()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		c.mu.RLock()
		token, secret := c.token, c.secret
		c.mu.RUnlock()
		req.Header.Set("Authorization", "Bearer "+token)
		if secret != "" {
			req.Header.Set(wire.AdminSecretHeader, secret)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Transport(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return apperr.Transport(op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return apperr.Transport(op, fmt.Errorf("server answered %d: %s", resp.StatusCode, errorMessage(data)))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var decoded wire.ErrorResponse
		if jsonErr := json.Unmarshal(data, &decoded); jsonErr != nil || decoded.Error.Kind == "" {
			return fmt.Errorf("%s: server answered %d", op, resp.StatusCode)
		}
		return decoded.Err()
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func errorMessage(data []byte) string {
	var decoded wire.ErrorResponse
	if err := json.Unmarshal(data, &decoded); err == nil && decoded.Error.Message != "" {
		return decoded.Error.Message
	}
	return strings.TrimSpace(string(data))
}
