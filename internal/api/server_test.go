package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wesm/mailsaver/internal/config"
	"github.com/wesm/mailsaver/internal/model"
	"github.com/wesm/mailsaver/internal/remote"
	"github.com/wesm/mailsaver/internal/store"
	"github.com/wesm/mailsaver/internal/testutil"
)

// testLogger returns a logger for tests that discards output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.Server.JWTSecret = "test-secret"
	cfg.Server.RateLimitRPS = 0
	st := testutil.NewTestStore(t)
	return NewServer(cfg, st, testLogger()), st
}

func do(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response (%d): %v", w.Code, err)
	}
	return v
}

func register(t *testing.T, srv *Server, email string) (string, string) {
	t.Helper()
	w := do(t, srv, "POST", "/api/v1/auth/register", "", remote.CredentialsRequest{Email: email, Password: "password123"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", w.Code, w.Body.String())
	}
	ar := decode[remote.AuthResponse](t, w)
	return *ar.UserID, *ar.Token
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv, "GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decode[map[string]string](t, w)["status"]; got != "ok" {
		t.Errorf("status field = %q", got)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	srv, _ := newTestServer(t)
	uid, token := register(t, srv, "me@example.com")
	if uid == "" || token == "" {
		t.Fatal("register returned an empty identity")
	}

	w := do(t, srv, "POST", "/api/v1/auth/register", "", remote.CredentialsRequest{Email: "me@EXAMPLE.com", Password: "password123"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", w.Code)
	}
	if e := decode[remote.ErrorResponse](t, w); e.Error != remote.CodeEmailTaken {
		t.Errorf("error code = %q", e.Error)
	}

	w = do(t, srv, "POST", "/api/v1/auth/login", "", remote.CredentialsRequest{Email: "me@example.com", Password: "password123"})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body.String())
	}
	ar := decode[remote.AuthResponse](t, w)
	if *ar.UserID != uid || ar.ExpiresAt == nil || !ar.ExpiresAt.After(time.Now()) {
		t.Errorf("login response = %+v", ar)
	}

	w = do(t, srv, "POST", "/api/v1/auth/login", "", remote.CredentialsRequest{Email: "me@example.com", Password: "wrong-password"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", w.Code)
	}
	w = do(t, srv, "POST", "/api/v1/auth/login", "", remote.CredentialsRequest{Email: "nobody@example.com", Password: "password123"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unknown user status = %d, want 401", w.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	tests := []struct {
		name string
		body any
	}{
		{"bad json", "not an object"},
		{"bad email", remote.CredentialsRequest{Email: "nope", Password: "password123"}},
		{"short password", remote.CredentialsRequest{Email: "a@example.com", Password: "short"}},
		{"missing password", remote.CredentialsRequest{Email: "a@example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, "POST", "/api/v1/auth/register", "", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)
	paths := []struct{ method, path string }{
		{"GET", "/api/v1/items?field=user_id&value=x"},
		{"GET", "/api/v1/items/count?field=user_id&value=x"},
		{"POST", "/api/v1/items"},
		{"DELETE", "/api/v1/items/k"},
		{"GET", "/api/v1/search?q=x"},
	}
	for _, p := range paths {
		for _, token := range []string{"", "garbage"} {
			w := do(t, srv, p.method, p.path, token, nil)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("%s %s with token %q: status = %d, want 401", p.method, p.path, token, w.Code)
			}
		}
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	uid, _ := register(t, srv, "me@example.com")
	srv.tokens.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	stale, _, err := srv.tokens.Issue(uid)
	if err != nil {
		t.Fatal(err)
	}
	srv.tokens.now = time.Now

	w := do(t, srv, "GET", "/api/v1/items/count?field=user_id&value="+uid, stale, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestItemsLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	uid, token := register(t, srv, "me@example.com")
	_, other := register(t, srv, "other@example.com")

	item := model.Item{ID: "r1", Address: "info@bakery.test", Engine: model.EngineBing, SearchKey: "bakery"}
	w := do(t, srv, "POST", "/api/v1/items", token, item)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	key := *decode[remote.CreateResponse](t, w).ID

	w = do(t, srv, "POST", "/api/v1/items", token, item)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", w.Code)
	}
	if w := do(t, srv, "POST", "/api/v1/items", token, model.Item{Address: "x@y.test"}); w.Code != http.StatusBadRequest {
		t.Errorf("create without id status = %d, want 400", w.Code)
	}

	w = do(t, srv, "GET", "/api/v1/items?field=id&value=r1", token, nil)
	items := *decode[remote.ItemsResponse](t, w).Items
	if len(items) != 1 || items[0].Key != key || items[0].UserID != uid || items[0].Engine != model.EngineBing {
		t.Errorf("query items = %+v", items)
	}

	// Another user filtering on the same id sees nothing.
	w = do(t, srv, "GET", "/api/v1/items?field=id&value=r1", other, nil)
	if got := *decode[remote.ItemsResponse](t, w).Items; len(got) != 0 {
		t.Errorf("other user sees %d items", len(got))
	}
	if w := do(t, srv, "DELETE", "/api/v1/items/"+key, other, nil); w.Code != http.StatusNotFound {
		t.Errorf("other user delete status = %d, want 404", w.Code)
	}

	w = do(t, srv, "GET", "/api/v1/items/count?field=user_id&value="+uid, token, nil)
	if n := *decode[remote.CountResponse](t, w).Count; n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	w = do(t, srv, "DELETE", "/api/v1/items/"+key, token, nil)
	if w.Code != http.StatusOK || *decode[remote.DeleteResponse](t, w).Status != "deleted" {
		t.Errorf("delete status = %d", w.Code)
	}
	w = do(t, srv, "GET", "/api/v1/items/count?field=user_id&value="+uid, token, nil)
	if n := *decode[remote.CountResponse](t, w).Count; n != 0 {
		t.Errorf("count after delete = %d, want 0", n)
	}
}

func TestQueryRejectsUnknownField(t *testing.T) {
	srv, _ := newTestServer(t)
	_, token := register(t, srv, "me@example.com")
	for _, path := range []string{
		"/api/v1/items?field=password_hash&value=x",
		"/api/v1/items/count?value=x",
	} {
		if w := do(t, srv, "GET", path, token, nil); w.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", path, w.Code)
		}
	}
}

func TestHandleSearch(t *testing.T) {
	srv, st := newTestServer(t)
	_, token := register(t, srv, "me@example.com")
	err := st.AddDirectoryEntries(context.Background(), []store.DirectoryEntry{
		{Address: "info@bakery.test", Source: "bakery.test", Engine: model.EngineGoogle, Keywords: "bakery bread"},
		{Address: "hello@bakery.test", Source: "bakery.test", Engine: model.EngineBing, Keywords: "bakery"},
		{Address: "team@cafe.test", Source: "cafe.test", Engine: model.EngineGoogle, Keywords: "coffee"},
	})
	testutil.MustNoErr(t, err, "AddDirectoryEntries")

	w := do(t, srv, "GET", "/api/v1/search?q=bread&engine=google&limit=10", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	items := *decode[remote.ItemsResponse](t, w).Items
	if len(items) != 1 || items[0].Address != "info@bakery.test" || items[0].SearchKey != "bread" {
		t.Fatalf("items = %+v", items)
	}

	w = do(t, srv, "GET", "/api/v1/search?q=bakery&engine=google", token, nil)
	again := *decode[remote.ItemsResponse](t, w).Items
	if len(again) != 1 || again[0].ID != items[0].ID {
		t.Errorf("result id not stable across searches: %+v", again)
	}

	for _, bad := range []string{"q=", "q=x&engine=lycos", "q=x&limit=0", "q=x&limit=abc"} {
		if w := do(t, srv, "GET", "/api/v1/search?"+bad, token, nil); w.Code != http.StatusBadRequest {
			t.Errorf("search %q status = %d, want 400", bad, w.Code)
		}
	}
}

func TestServeAndShutdown(t *testing.T) {
	srv, _ := newTestServer(t)
	ln, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := <-errc; err != nil {
		t.Errorf("Serve() error = %v, want nil after shutdown", err)
	}
}
