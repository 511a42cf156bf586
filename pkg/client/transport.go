// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/harmonia-fm/harmonia/pkg/wire"
)

// ErrSessionExpired is returned when the credential refresh itself fails.
// Both tokens have been cleared by the time the caller sees this error.
var ErrSessionExpired = errors.New("client: session expired")

// ErrUnauthorized is returned when a request still fails authorization
// after the refresh-and-replay cycle.
var ErrUnauthorized = errors.New("client: unauthorized")

// StatusError reports a non-2xx response that is not an authorization
// failure handled by the transport.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client: unexpected status %d", e.StatusCode)
}

// TransportConfig configures a Transport.
type TransportConfig struct {
	// BaseURL includes the API prefix, e.g. "https://api.harmonia.fm/api/v1".
	BaseURL     string
	Credentials CredentialStore

	// HTTPClient defaults to a client with a 15 s timeout.
	HTTPClient *http.Client

	// OnSessionExpired fires once per failed refresh, after the credential
	// pair has been cleared. The application typically navigates to login.
	OnSessionExpired func()

	Logger zerolog.Logger
}

// Transport wraps an HTTP client with bearer injection and a single
// refresh-and-replay cycle on authorization failure. Concurrent requests
// that 401 together share one in-flight refresh call; each is replayed at
// most once with the refreshed token.
type Transport struct {
	baseURL   string
	creds     CredentialStore
	http      *http.Client
	onExpired func()
	logger    zerolog.Logger

	refresh singleflight.Group
}

// NewTransport builds a Transport from cfg. BaseURL and Credentials are
// required.
func NewTransport(cfg TransportConfig) *Transport {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Transport{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		creds:     cfg.Credentials,
		http:      httpClient,
		onExpired: cfg.OnSessionExpired,
		logger:    cfg.Logger,
	}
}

// PostJSON sends body as JSON to path and discards the response body.
func (t *Transport) PostJSON(ctx context.Context, path string, body any) error {
	resp, err := t.DoJSON(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// GetJSON fetches path and decodes the response into out.
func (t *Transport) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := t.DoJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// DoJSON issues method against path with body marshaled as JSON. A 401
// response triggers exactly one refresh-and-replay; a 401 on the replay
// returns ErrUnauthorized. Other non-2xx statuses return *StatusError.
func (t *Transport) DoJSON(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	resp, err := t.send(ctx, method, path, payload, t.accessToken())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return t.checkStatus(resp)
	}

	// First 401: refresh once, replay once with the new token.
	drain(resp)
	token, err := t.refreshTokens(ctx)
	if err != nil {
		return nil, err
	}

	resp, err = t.send(ctx, method, path, payload, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		return nil, ErrUnauthorized
	}
	return t.checkStatus(resp)
}

func (t *Transport) send(ctx context.Context, method, path string, payload []byte, token string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return t.http.Do(req)
}

// refreshTokens funnels concurrent refresh attempts through one in-flight
// call. All waiters receive the same result; on failure the credential pair
// is cleared and OnSessionExpired fires from the winning call only.
func (t *Transport) refreshTokens(ctx context.Context) (string, error) {
	token, err, _ := t.refresh.Do("refresh", func() (any, error) {
		return t.doRefresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (t *Transport) doRefresh(ctx context.Context) (string, error) {
	refreshToken := ""
	if t.creds != nil {
		refreshToken = t.creds.RefreshToken()
	}
	if refreshToken == "" {
		t.expireSession()
		return "", ErrSessionExpired
	}

	resp, err := t.send(ctx, http.MethodPost, "/auth/refresh", mustMarshal(wire.RefreshRequest{RefreshToken: refreshToken}), "")
	if err != nil {
		t.logger.Warn().Err(err).Msg("token refresh failed")
		t.expireSession()
		return "", ErrSessionExpired
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.logger.Warn().Int("status", resp.StatusCode).Msg("token refresh rejected")
		t.expireSession()
		return "", ErrSessionExpired
	}

	var out wire.RefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Token == "" {
		t.expireSession()
		return "", ErrSessionExpired
	}
	if err := t.creds.SetTokens(out.Token, out.RefreshToken); err != nil {
		t.logger.Warn().Err(err).Msg("persisting refreshed credentials failed")
	}
	return out.Token, nil
}

func (t *Transport) expireSession() {
	if t.creds != nil {
		_ = t.creds.Clear()
	}
	if t.onExpired != nil {
		t.onExpired()
	}
}

func (t *Transport) accessToken() string {
	if t.creds == nil {
		return ""
	}
	return t.creds.AccessToken()
}

func (t *Transport) checkStatus(resp *http.Response) (*http.Response, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	resp.Body.Close()
	return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	resp.Body.Close()
}

func mustMarshal(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
