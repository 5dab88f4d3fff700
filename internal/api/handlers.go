package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/wesm/mailsaver/internal/errs"
	"github.com/wesm/mailsaver/internal/model"
	"github.com/wesm/mailsaver/internal/remote"
	"github.com/wesm/mailsaver/internal/store"
	"github.com/wesm/mailsaver/internal/validate"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
	maxBodyBytes       = 1 << 20
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, remote.ErrorResponse{Error: code, Message: message})
}

// writeValidation reports a validation failure as 400.
func writeValidation(w http.ResponseWriter, err error) {
	code := "invalid_request"
	if errs.KindOf(err) == errs.KindMissingParameter {
		code = "missing_parameter"
	}
	writeError(w, http.StatusBadRequest, code, errs.UserMessage(err))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON")
		return false
	}
	return true
}

func (s *Server) credentials(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	var req remote.CredentialsRequest
	if !decodeBody(w, r, &req) {
		return "", "", false
	}
	email, err := validate.Email("email", req.Email)
	if err != nil {
		writeValidation(w, err)
		return "", "", false
	}
	if _, err := validate.Password("password", req.Password, s.cfg.Auth.MinPasswordLength); err != nil {
		writeValidation(w, err)
		return "", "", false
	}
	return email, req.Password, true
}

func (s *Server) writeAuth(w http.ResponseWriter, status int, userID string) {
	token, exp, err := s.tokens.Issue(userID)
	if err != nil {
		s.logger.Error("failed to issue token", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to issue token")
		return
	}
	writeJSON(w, status, remote.AuthResponse{UserID: &userID, Token: &token, ExpiresAt: &exp})
}

// handleRegister creates an account and returns a token for it.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	email, password, ok := s.credentials(w, r)
	if !ok {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create account")
		return
	}
	u := &store.User{ID: uuid.NewString(), Email: email, PasswordHash: string(hash)}
	if err := s.backend.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, remote.CodeEmailTaken, "Email already registered")
			return
		}
		s.logger.Error("failed to create user", "email", email, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create account")
		return
	}
	s.logger.Info("user registered", "user_id", u.ID)
	s.writeAuth(w, http.StatusCreated, u.ID)
}

// handleLogin exchanges credentials for a token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	email, password, ok := s.credentials(w, r)
	if !ok {
		return
	}
	u, err := s.backend.UserByEmail(r.Context(), email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("failed to look up user", "email", email, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to log in")
		return
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		writeError(w, http.StatusUnauthorized, remote.CodeInvalidCredentials, "Invalid credentials")
		return
	}
	s.writeAuth(w, http.StatusOK, u.ID)
}

// handleCreateItem stores an item for the authenticated user.
func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var it model.Item
	if !decodeBody(w, r, &it) {
		return
	}
	if err := validate.Required(validate.F("id", it.ID), validate.F("address", it.Address)); err != nil {
		writeValidation(w, err)
		return
	}
	uid := userID(r)
	key, err := s.backend.InsertItem(r.Context(), uid, &it)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "conflict", "Item already saved")
			return
		}
		s.logger.Error("failed to insert item", "user_id", uid, "id", it.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to save item")
		return
	}
	writeJSON(w, http.StatusCreated, remote.CreateResponse{ID: &key})
}

// filter reads the field/value query parameters.
func filter(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	q := r.URL.Query()
	field, value := q.Get("field"), q.Get("value")
	if err := validate.Required(validate.F("field", field)); err != nil {
		writeValidation(w, err)
		return "", "", false
	}
	if !store.IsQueryableField(field) {
		writeError(w, http.StatusBadRequest, "invalid_field", "Field cannot be queried: "+field)
		return "", "", false
	}
	return field, value, true
}

// handleQueryItems lists the authenticated user's items matching a filter.
func (s *Server) handleQueryItems(w http.ResponseWriter, r *http.Request) {
	field, value, ok := filter(w, r)
	if !ok {
		return
	}
	items, err := s.backend.QueryItems(r.Context(), userID(r), field, value)
	if err != nil {
		s.logger.Error("failed to query items", "field", field, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve items")
		return
	}
	if items == nil {
		items = []*model.Item{}
	}
	writeJSON(w, http.StatusOK, remote.ItemsResponse{Items: &items})
}

// handleCountItems counts the authenticated user's items matching a filter.
func (s *Server) handleCountItems(w http.ResponseWriter, r *http.Request) {
	field, value, ok := filter(w, r)
	if !ok {
		return
	}
	n, err := s.backend.CountItems(r.Context(), userID(r), field, value)
	if err != nil {
		s.logger.Error("failed to count items", "field", field, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to count items")
		return
	}
	writeJSON(w, http.StatusOK, remote.CountResponse{Count: &n})
}

// handleDeleteItem removes one of the authenticated user's items by key.
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	uid := userID(r)
	if err := s.backend.DeleteItem(r.Context(), uid, key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, remote.CodeNotFound, "Item not found")
			return
		}
		s.logger.Error("failed to delete item", "user_id", uid, "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to delete item")
		return
	}
	status := "deleted"
	writeJSON(w, http.StatusOK, remote.DeleteResponse{Status: &status})
}

// resultID derives a stable id for a directory entry, so the same address
// found twice is recognized as already saved.
func resultID(e store.DirectoryEntry) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+strings.ToLower(e.Address)+"#"+e.Engine.String())).String()
}

// handleSearch looks up addresses in the directory.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, err := validate.SearchKey("q", q.Get("q"))
	if err != nil {
		writeValidation(w, err)
		return
	}
	engine := model.EngineGoogle
	if v := q.Get("engine"); v != "" {
		if engine, err = validate.Engine("engine", v); err != nil {
			writeValidation(w, err)
			return
		}
	}
	limit := defaultSearchLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSearchLimit {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid value: limit")
			return
		}
		limit = n
	}

	entries, err := s.backend.SearchDirectory(r.Context(), key, engine, limit)
	if err != nil {
		s.logger.Error("failed to search directory", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Search failed")
		return
	}
	items := make([]*model.Item, len(entries))
	for i, e := range entries {
		items[i] = &model.Item{
			ID:        resultID(e),
			Address:   e.Address,
			Source:    e.Source,
			CreatedAt: e.CreatedAt,
			Engine:    e.Engine,
			SearchKey: key,
			Kind:      model.KindReal,
		}
	}
	writeJSON(w, http.StatusOK, remote.ItemsResponse{Items: &items})
}
