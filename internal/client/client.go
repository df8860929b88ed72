package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

const timeoutRequest = 15 * time.Second

// APIError is a non-2xx answer from the service. Reason is the server's reason code.
type APIError struct {
	Status  int
	Reason  domain.Reason
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Reason, e.Message)
}

// StartedAttempt is the start payload; the countdown is anchored on CreatedAt.
type StartedAttempt struct {
	AttemptID        string    `json:"attemptId"`
	AttemptNumber    int       `json:"attemptNumber"`
	CreatedAt        time.Time `json:"createdAt"`
	Deadline         time.Time `json:"deadline"`
	TimeLimitMinutes int       `json:"timeLimitMinutes"`
}

type credentialsResponse struct {
	User        domain.User           `json:"user"`
	Credentials domain.CredentialPair `json:"credentials"`
}

// Client is a typed caller of the quiz room API. Every call after sign-in goes through
// a RefreshTransport bound to the client's credential store.
type Client struct {
	baseURL string
	store   *CredentialStore
	plain   *http.Client
	authed  *http.Client
}

// Option customizes a Client.
type Option func(*clientConfig)

type clientConfig struct {
	base           http.RoundTripper
	onSessionEnded func()
}

// WithTransport sets the underlying round tripper (httptest servers, proxies).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *clientConfig) { c.base = rt }
}

// WithSessionEnded registers the global sign-out callback.
func WithSessionEnded(fn func()) Option {
	return func(c *clientConfig) { c.onSessionEnded = fn }
}

func New(baseURL string, opts ...Option) *Client {
	cfg := clientConfig{base: http.DefaultTransport}
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   NewCredentialStore(),
	}
	c.plain = &http.Client{Transport: cfg.base}
	c.authed = &http.Client{Transport: &RefreshTransport{
		Base:           cfg.base,
		Store:          c.store,
		Refresher:      c,
		OnSessionEnded: cfg.onSessionEnded,
	}}
	return c
}

// Credentials exposes the session's credential store.
func (c *Client) Credentials() *CredentialStore {
	return c.store
}

func (c *Client) Register(ctx context.Context, username, password string, role domain.Role) (domain.User, error) {
	var out credentialsResponse
	body := map[string]interface{}{"username": username, "password": password, "role": role}
	if err := c.doRequest(ctx, c.plain, http.MethodPost, "/auth/register", body, &out); err != nil {
		return domain.User{}, err
	}
	c.store.Set(out.Credentials)
	return out.User, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (domain.User, error) {
	var out credentialsResponse
	body := map[string]interface{}{"username": username, "password": password}
	if err := c.doRequest(ctx, c.plain, http.MethodPost, "/auth/login", body, &out); err != nil {
		return domain.User{}, err
	}
	c.store.Set(out.Credentials)
	return out.User, nil
}

// Refresh calls the refresh endpoint without touching the store. It implements Refresher.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (domain.CredentialPair, error) {
	var pair domain.CredentialPair
	body := map[string]interface{}{"refreshToken": refreshToken}
	if err := c.doRequest(ctx, c.plain, http.MethodPost, "/auth/refresh", body, &pair); err != nil {
		return domain.CredentialPair{}, err
	}
	return pair, nil
}

// Logout revokes the refresh token and clears local credentials.
func (c *Client) Logout(ctx context.Context) error {
	pair, ok := c.store.Get()
	c.store.Clear()
	if !ok {
		return nil
	}
	body := map[string]interface{}{"refreshToken": pair.RefreshToken}
	return c.doRequest(ctx, c.plain, http.MethodPost, "/auth/logout", body, nil)
}

func (c *Client) GetRoom(ctx context.Context, roomID string) (app.RoomView, error) {
	var view app.RoomView
	err := c.doRequest(ctx, c.authed, http.MethodGet, "/rooms/"+url.PathEscape(roomID), nil, &view)
	return view, err
}

// JoinRoom redeems a private room code and returns the room id.
func (c *Client) JoinRoom(ctx context.Context, code string) (string, error) {
	var out struct {
		RoomID string `json:"roomId"`
	}
	body := map[string]interface{}{"roomCode": code}
	err := c.doRequest(ctx, c.authed, http.MethodPost, "/rooms/join", body, &out)
	return out.RoomID, err
}

func (c *Client) StartAttempt(ctx context.Context, roomID string) (StartedAttempt, error) {
	var out StartedAttempt
	err := c.doRequest(ctx, c.authed, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/start", nil, &out)
	return out, err
}

func (c *Client) GetAttempt(ctx context.Context, attemptID string) (app.AttemptView, error) {
	var view app.AttemptView
	err := c.doRequest(ctx, c.authed, http.MethodGet, "/attempts/"+url.PathEscape(attemptID), nil, &view)
	return view, err
}

func (c *Client) RecordAnswer(ctx context.Context, attemptID string, answer domain.Answer) error {
	return c.doRequest(ctx, c.authed, http.MethodPut, "/attempts/"+url.PathEscape(attemptID)+"/answers", answer, nil)
}

func (c *Client) Submit(ctx context.Context, attemptID string, answers []domain.Answer) (domain.SubmitResult, error) {
	var out domain.SubmitResult
	body := map[string]interface{}{"answers": answers}
	err := c.doRequest(ctx, c.authed, http.MethodPost, "/attempts/"+url.PathEscape(attemptID)+"/submit", body, &out)
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context, roomID string) (domain.Leaderboard, error) {
	var out domain.Leaderboard
	err := c.doRequest(ctx, c.authed, http.MethodGet, "/rooms/"+url.PathEscape(roomID)+"/leaderboard", nil, &out)
	return out, err
}

func (c *Client) CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	var out domain.Quiz
	err := c.doRequest(ctx, c.authed, http.MethodPost, "/quizzes", quiz, &out)
	return out, err
}

func (c *Client) CreateRoom(ctx context.Context, in app.RoomInput) (domain.Room, error) {
	var out domain.Room
	err := c.doRequest(ctx, c.authed, http.MethodPost, "/rooms", in, &out)
	return out, err
}

func (c *Client) SetRoomActive(ctx context.Context, roomID string, active bool) (domain.Room, error) {
	var out domain.Room
	body := map[string]interface{}{"active": active}
	err := c.doRequest(ctx, c.authed, http.MethodPatch, "/rooms/"+url.PathEscape(roomID)+"/lock", body, &out)
	return out, err
}

func (c *Client) RescheduleRoom(ctx context.Context, roomID string, in app.ScheduleInput) (domain.Room, error) {
	var out domain.Room
	err := c.doRequest(ctx, c.authed, http.MethodPatch, "/rooms/"+url.PathEscape(roomID)+"/schedule", in, &out)
	return out, err
}

func (c *Client) doRequest(ctx context.Context, hc *http.Client, method, path string, params interface{}, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeoutRequest)
	defer cancel()

	var payload []byte
	if params != nil {
		var err error
		if payload, err = json.Marshal(params); err != nil {
			return fmt.Errorf("failed to encode %s %s: %w", method, path, err)
		}
	}
	// bytes.Reader bodies get GetBody from NewRequest, which the refresh retry needs
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb struct {
			Reason  domain.Reason `json:"reason"`
			Message string        `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&eb) == nil {
			apiErr.Reason = eb.Reason
			apiErr.Message = eb.Message
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
	}
	return nil
}
