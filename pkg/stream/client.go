// Package stream is a small server-side client for the Stream Video API:
// webhook verification, call handles, ending calls and attaching an OpenAI
// realtime agent to a call.
package stream

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultBaseURL  = "https://video.stream-io-api.com"
	DefaultModel    = "gpt-4o-realtime-preview"
	DefaultCallType = "default"

	defaultTokenTTL = time.Hour
)

type Options struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger

	// Realtime bridge defaults.
	Model              string
	HandshakeTimeout   time.Duration
	MaxSessionDuration time.Duration
	TokenTTL           time.Duration
}

type Client struct {
	apiKey     string
	apiSecret  []byte
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger

	model              string
	handshakeTimeout   time.Duration
	maxSessionDuration time.Duration
	tokenTTL           time.Duration

	now func() time.Time
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("stream: api key is required")
	}
	if strings.TrimSpace(opts.APISecret) == "" {
		return nil, errors.New("stream: api secret is required")
	}
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("stream: parse base url: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	return &Client{
		apiKey:             strings.TrimSpace(opts.APIKey),
		apiSecret:          []byte(opts.APISecret),
		baseURL:            u,
		httpClient:         httpClient,
		logger:             logger,
		model:              model,
		handshakeTimeout:   opts.HandshakeTimeout,
		maxSessionDuration: opts.MaxSessionDuration,
		tokenTTL:           ttl,
		now:                time.Now,
	}, nil
}

func (c *Client) APIKey() string { return c.apiKey }

// VerifyWebhook checks the X-Signature header against the raw request body.
// The signature is the hex HMAC-SHA256 of the body keyed by the API secret, so
// body must be the bytes exactly as received.
func (c *Client) VerifyWebhook(body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, c.apiSecret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the signature VerifyWebhook expects for body.
func (c *Client) Sign(body []byte) string {
	mac := hmac.New(sha256.New, c.apiSecret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ServerToken is the JWT used for server-side REST calls.
func (c *Client) ServerToken() (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"server": true})
	s, err := tok.SignedString(c.apiSecret)
	if err != nil {
		return "", fmt.Errorf("stream: sign server token: %w", err)
	}
	return s, nil
}

// UserToken issues a token that lets userID act on the platform.
func (c *Client) UserToken(userID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("stream: user id is required")
	}
	if ttl <= 0 {
		ttl = c.tokenTTL
	}
	now := c.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Add(-5 * time.Second).Unix(),
		"exp":     now.Add(ttl).Unix(),
	})
	s, err := tok.SignedString(c.apiSecret)
	if err != nil {
		return "", fmt.Errorf("stream: sign user token: %w", err)
	}
	return s, nil
}

// Call returns a handle for the call identified by (callType, id). No request
// is made until an operation is invoked on the handle.
func (c *Client) Call(callType, id string) *Call {
	if callType == "" {
		callType = DefaultCallType
	}
	return &Call{client: c, Type: callType, ID: id}
}

// APIError is returned for non-2xx REST responses.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("stream: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("stream: status %d", e.StatusCode)
}

func (c *Client) do(ctx context.Context, method, path string, body any) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	q := u.Query()
	q.Set("api_key", c.APIKey())
	u.RawQuery = q.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("stream: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("stream: build request: %w", err)
	}
	token, err := c.ServerToken()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Stream-Auth-Type", "jwt")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stream: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, apiErr)
	return apiErr
}
