package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cli, err := New(srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return cli
}

func TestNewNormalisesBaseURL(t *testing.T) {
	cli, err := New("localhost:9000/")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if cli.baseURL != "http://localhost:9000" {
		t.Fatalf("unexpected base url %q", cli.baseURL)
	}
	cli, err = New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if cli.baseURL != DefaultBaseURL {
		t.Fatalf("expected default base url, got %q", cli.baseURL)
	}
}

func TestLoginSendsForm(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/token" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("username") != "alice@example.com" || r.PostForm.Get("password") != "pw" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "token_type": "bearer", "expires_in": 1800})
	})

	token, err := cli.Login(context.Background(), "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token.AccessToken != "tok" || token.TokenType != "bearer" || token.ExpiresIn != 1800 {
		t.Fatalf("unexpected token %+v", token)
	}
}

func TestCreateMessageSendsBearer(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization %q", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 3, "content": body["content"], "created_at": "2025-06-01T09:00:00Z"})
	})

	msg, err := cli.CreateMessage(context.Background(), " tok ", "hi")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if msg.ID != 3 || msg.Content != "hi" || msg.CreatedAt.IsZero() {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestListMessagesQuery(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("skip") != "5" || r.URL.Query().Get("limit") != "2" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[{"id":6,"content":"a","created_at":"2025-06-01T09:00:00Z"},{"id":7,"content":"b","created_at":"2025-06-01T09:00:00Z"}]`))
	})

	messages, err := cli.ListMessages(context.Background(), 5, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(messages) != 2 || messages[1].ID != 7 {
		t.Fatalf("unexpected messages %+v", messages)
	}
}

func TestAPIErrorsCarryServerMessage(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/messages/9"):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"message not found"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		}
	})

	err := cli.DeleteMessage(context.Background(), "tok", 9)
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Message != "message not found" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}

	_, err = cli.GetMessage(context.Background(), 1)
	if !errors.As(err, &apiErr) || apiErr.Message != "upstream down" {
		t.Fatalf("expected plain-text error body, got %v", err)
	}
}
