package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is used when no API address is configured.
const DefaultBaseURL = "http://localhost:8000"

// Client provides typed access to the message board API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// User is the public view of an account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Token is the payload returned by POST /token.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Message mirrors the API message representation.
type Message struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, email, password string) (User, error) {
	var user User
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/users/", body, "", &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Login exchanges credentials for a bearer token using the form-encoded token endpoint.
func (c *Client) Login(ctx context.Context, email, password string) (Token, error) {
	form := url.Values{"username": {email}, "password": {password}}
	var token Token
	err := c.send(ctx, http.MethodPost, "/token", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), "", &token)
	if err != nil {
		return Token{}, err
	}
	return token, nil
}

// ListMessages returns one page of messages in id order.
func (c *Client) ListMessages(ctx context.Context, skip, limit int) ([]Message, error) {
	query := url.Values{}
	if skip > 0 {
		query.Set("skip", strconv.Itoa(skip))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/messages/"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var messages []Message
	if err := c.do(ctx, http.MethodGet, path, nil, "", &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// GetMessage fetches a single message.
func (c *Client) GetMessage(ctx context.Context, id int64) (Message, error) {
	var message Message
	if err := c.do(ctx, http.MethodGet, messagePath(id), nil, "", &message); err != nil {
		return Message{}, err
	}
	return message, nil
}

// CreateMessage posts a message as the token's owner.
func (c *Client) CreateMessage(ctx context.Context, token, content string) (Message, error) {
	var message Message
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPost, "/messages/", body, token, &message); err != nil {
		return Message{}, err
	}
	return message, nil
}

// UpdateMessage replaces message content. token may be empty when the server does not require it.
func (c *Client) UpdateMessage(ctx context.Context, token string, id int64, content string) (Message, error) {
	var message Message
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPut, messagePath(id), body, token, &message); err != nil {
		return Message{}, err
	}
	return message, nil
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, token string, id int64) error {
	return c.do(ctx, http.MethodDelete, messagePath(id), nil, token, nil)
}

func messagePath(id int64) string {
	return "/messages/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}
	return c.send(ctx, method, path, contentType, reader, token, v)
}

func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}
