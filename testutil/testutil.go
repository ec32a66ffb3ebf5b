// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/danielhkuo/real-hero/auth"
	"github.com/danielhkuo/real-hero/cliparse"
	"github.com/danielhkuo/real-hero/lifecycle"
	"github.com/danielhkuo/real-hero/models"
	"github.com/danielhkuo/real-hero/store"
)

const (
	TestLinkSecret = "test-link-secret"
	TestJWTSecret  = "test-jwt-secret"
	TestIssuer     = "real-hero"
	TestBase       = "http://localhost:5000"
)

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:           5000,
		DatabaseType:   "memory",
		LinkSecret:     TestLinkSecret,
		JWTSecret:      TestJWTSecret,
		ServerBase:     TestBase,
		NotifyStream:   "notifications",
		SweepInterval:  5 * time.Minute,
		ResponseWindow: lifecycle.DefaultResponseWindow,
		ExpiryPolicy:   "all",
		AllowedOrigins: []string{"*"},
	}
}

// Notes records notifications instead of sending them
type Notes struct {
	mu    sync.Mutex
	notes []models.Notification
}

func (n *Notes) Notify(_ context.Context, note models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return nil
}

// Last returns the most recent notification with template
func (n *Notes) Last(t *testing.T, template string) models.Notification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.notes) - 1; i >= 0; i-- {
		if n.notes[i].Template == template {
			return n.notes[i]
		}
	}
	t.Fatalf("No %s notification recorded", template)
	return models.Notification{}
}

// Count returns how many notifications with template were recorded
func (n *Notes) Count(template string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, note := range n.notes {
		if note.Template == template {
			count++
		}
	}
	return count
}

// Env is a controller over a fresh memory store with a settable clock
type Env struct {
	Store      *store.Memory
	Controller *lifecycle.Controller
	Resolver   *auth.JWTResolver
	Notes      *Notes

	mu  sync.Mutex
	now time.Time
}

// NewEnv builds a test environment starting at a fixed time
func NewEnv(t *testing.T) *Env {
	t.Helper()
	cfg := GetTestConfig()
	env := &Env{
		Store:    store.NewMemory(),
		Resolver: auth.NewJWTResolver(cfg.JWTSecret, TestIssuer),
		Notes:    &Notes{},
		now:      time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	ctrl, err := lifecycle.New(lifecycle.Config{
		Store:          env.Store,
		Notifier:       env.Notes,
		Signer:         auth.NewLinkSigner(cfg.LinkSecret),
		BaseURL:        cfg.ServerBase,
		ResponseWindow: cfg.ResponseWindow,
		Clock:          env.Now,
	})
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	env.Controller = ctrl
	return env
}

func (e *Env) Now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *Env) Advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

// CreateTestUser stores a user with predictable contact details
func CreateTestUser(t *testing.T, st store.Store, id string) *models.User {
	t.Helper()
	u := &models.User{
		ID:    id,
		UID:   "uid-" + id,
		Name:  "User " + id,
		Email: id + "@example.com",
		Phone: "+91 98000 00000",
	}
	if err := st.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return u
}

// CreateTestRequest opens a request on behalf of requesterID
func CreateTestRequest(t *testing.T, ctrl *lifecycle.Controller, requesterID string) *models.Request {
	t.Helper()
	r, err := ctrl.CreateRequest(context.Background(), models.CreateRequestRequest{
		Name:       "Test Patient",
		Phone:      "+91 90000 00000",
		BloodGroup: "O+",
		Hospital:   "Test Hospital",
		Location:   &models.GeoPoint{Lat: 18.52, Lng: 73.85},
	}, requesterID)
	if err != nil {
		t.Fatalf("Failed to create test request: %v", err)
	}
	return r
}

// AuthHeader returns an Authorization header for userID
func AuthHeader(t *testing.T, resolver *auth.JWTResolver, userID string) map[string]string {
	t.Helper()
	token, err := resolver.IssueToken(userID, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
