package remote

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wesm/mailsaver/internal/errs"
	"github.com/wesm/mailsaver/internal/model"
	"github.com/wesm/mailsaver/internal/session"
)

func TestNew_RejectsHTTPWithoutAllowInsecure(t *testing.T) {
	_, err := New(Config{URL: "http://saver:8080"})
	if err == nil {
		t.Fatal("New() should reject http:// without AllowInsecure")
	}
}

func TestNew_AllowsHTTPWithAllowInsecure(t *testing.T) {
	c, err := New(Config{URL: "http://saver:8080", AllowInsecure: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c == nil {
		t.Fatal("New() returned nil client")
	}
}

func TestNew_RejectsEmptyURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New() should reject empty URL")
	}
}

func TestNew_RejectsInvalidScheme(t *testing.T) {
	_, err := New(Config{URL: "ftp://saver:8080"})
	if err == nil {
		t.Fatal("New() should reject ftp:// scheme")
	}
	if !strings.Contains(err.Error(), "http or https") {
		t.Errorf("error = %q, want mention of http or https", err.Error())
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c, err := New(Config{URL: "http://saver:8080/", AllowInsecure: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.baseURL != "http://saver:8080" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
}

func newTestClient(srv *httptest.Server) *Client {
	return &Client{
		baseURL:    srv.URL,
		httpClient: srv.Client(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func authedContext() context.Context {
	return session.NewContext(context.Background(), &session.Session{UserID: "u1", Token: "tok-123"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_SendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]int{"count": 3})
	}))
	defer srv.Close()

	n, err := newTestClient(srv).CountByField(authedContext(), "user_id", "u1")
	if err != nil {
		t.Fatalf("CountByField() error = %v", err)
	}
	if n != 3 {
		t.Errorf("CountByField() = %d, want 3", n)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer tok-123")
	}
}

func TestClient_CountZeroIsNotMalformed(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"count": 0})
	}))
	defer srv.Close()

	n, err := newTestClient(srv).CountByField(authedContext(), "user_id", "u1")
	if err != nil || n != 0 {
		t.Errorf("CountByField() = %d, %v, want 0, nil", n, err)
	}
}

func TestClient_MalformedResponses(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"unexpected": "shape"})
	}))
	defer srv.Close()
	c := newTestClient(srv)
	ctx := authedContext()

	checks := map[string]func() error{
		"count": func() error {
			_, err := c.CountByField(ctx, "user_id", "u1")
			return err
		},
		"query": func() error {
			_, err := c.QueryByField(ctx, "id", "x")
			return err
		},
		"create": func() error {
			_, err := c.Create(ctx, &model.Item{ID: "x"})
			return err
		},
		"delete": func() error {
			_, err := c.DeleteByKey(ctx, "k")
			return err
		},
		"search": func() error {
			_, err := c.Search(ctx, SearchQuery{Key: "k", Limit: 10})
			return err
		},
		"login": func() error {
			_, err := c.Login(ctx, "a@b.c", "password1")
			return err
		},
	}
	for name, fn := range checks {
		if got := errs.KindOf(fn()); got != errs.KindMalformedResponse {
			t.Errorf("%s: kind = %v, want malformed-response", name, got)
		}
	}
}

func TestClient_RejectsBrokenItems(t *testing.T) {
	for _, body := range []string{
		`{"items":[null]}`,
		`{"items":[{"id":"a","address":"a@x.test"},null]}`,
		`{"items":[{"address":"a@x.test"}]}`,
	} {
		srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, body)
		}))
		c := newTestClient(srv)
		ctx := authedContext()

		if _, err := c.QueryByField(ctx, "user_id", "u1"); errs.KindOf(err) != errs.KindMalformedResponse {
			t.Errorf("QueryByField(%s) error = %v, want malformed-response", body, err)
		}
		if _, err := c.Search(ctx, SearchQuery{Key: "k", Limit: 10}); errs.KindOf(err) != errs.KindMalformedResponse {
			t.Errorf("Search(%s) error = %v, want malformed-response", body, err)
		}
		srv.Close()
	}
}

func TestClient_UndecodableBodyIsMalformed(t *testing.T) {
	for _, body := range []string{"", "<html>ok</html>", `{"count":"three"}`} {
		srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, body)
		}))
		_, err := newTestClient(srv).CountByField(authedContext(), "user_id", "u1")
		if errs.KindOf(err) != errs.KindMalformedResponse {
			t.Errorf("CountByField(%q) error = %v, want malformed-response", body, err)
		}
		srv.Close()
	}
}

func TestClient_ServerErrorIsRemoteUnavailable(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: "db locked"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv).QueryByField(authedContext(), "user_id", "u1")
	if errs.KindOf(err) != errs.KindRemoteUnavailable {
		t.Fatalf("QueryByField() error = %v, want remote-unavailable", err)
	}
	if !strings.Contains(err.Error(), "db locked") {
		t.Errorf("error = %q, want server message for logs", err.Error())
	}
}

func TestClient_UnreachableIsRemoteUnavailable(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(srv)
	srv.Close()

	if _, err := c.CountByField(authedContext(), "user_id", "u1"); errs.KindOf(err) != errs.KindRemoteUnavailable {
		t.Errorf("CountByField() error = %v, want remote-unavailable", err)
	}
}

func TestClient_QueryByFieldEncodesParams(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/items" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("field") != "id" || r.URL.Query().Get("value") != "a b&c" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": []map[string]any{{
			"key": "k1", "id": "a b&c", "address": "x@example.com", "engine": "bing",
			"kind": "real", "created_at": created,
		}}})
	}))
	defer srv.Close()

	items, err := newTestClient(srv).QueryByField(authedContext(), "id", "a b&c")
	if err != nil {
		t.Fatalf("QueryByField() error = %v", err)
	}
	if len(items) != 1 || items[0].Key != "k1" || items[0].Engine != model.EngineBing {
		t.Errorf("QueryByField() = %+v", items)
	}
	if items[0].Action != model.ActionNone {
		t.Errorf("Action = %v, want none from the wire", items[0].Action)
	}
}

func TestClient_CreateSendsItem(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var got map[string]any
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if _, ok := got["action"]; ok {
			t.Error("action tag sent to remote")
		}
		if got["user_id"] != "u1" {
			t.Errorf("user_id = %v", got["user_id"])
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": "key-9"})
	}))
	defer srv.Close()

	key, err := newTestClient(srv).Create(authedContext(), &model.Item{ID: "a", UserID: "u1", Action: model.ActionAdded})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if key != "key-9" {
		t.Errorf("Create() = %q, want key-9", key)
	}
}

func TestClient_AuthErrors(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/register":
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: CodeEmailTaken, Message: "exists"})
		case "/api/v1/auth/login":
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: CodeInvalidCredentials, Message: "nope"})
		}
	}))
	defer srv.Close()
	c := newTestClient(srv)
	ctx := context.Background()

	_, err := c.Register(ctx, "a@b.c", "password1")
	if errs.UserMessage(err) != "Email already registered" {
		t.Errorf("Register() error = %v", err)
	}
	_, err = c.Login(ctx, "a@b.c", "password1")
	if errs.UserMessage(err) != "Invalid credentials" {
		t.Errorf("Login() error = %v", err)
	}
}

func TestClient_LoginSuccess(t *testing.T) {
	exp := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("login should not carry a token")
		}
		writeJSON(w, http.StatusOK, map[string]any{"user_id": "u9", "token": "jwt", "expires_at": exp})
	}))
	defer srv.Close()

	res, err := newTestClient(srv).Login(context.Background(), "a@b.c", "password1")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.UserID != "u9" || res.Token != "jwt" || !res.ExpiresAt.Equal(exp) {
		t.Errorf("Login() = %+v", res)
	}
}

func TestClient_CanceledContext(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"count": 1})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(authedContext())
	cancel()
	if _, err := newTestClient(srv).CountByField(ctx, "user_id", "u1"); err == nil {
		t.Fatal("CountByField() should fail on a canceled context")
	}
}
