package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/securecookie"

	"github.com/example/srt-watcher/internal/auth"
	"github.com/example/srt-watcher/internal/logbuf"
	"github.com/example/srt-watcher/internal/monitor"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	hash, err := auth.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	store := auth.NewStore(
		securecookie.GenerateRandomKey(32),
		securecookie.GenerateRandomKey(32),
		hash,
	)
	sched := monitor.New(monitor.Config{}, func(ctx context.Context) (monitor.ScrapeClient, error) {
		return nil, errors.New("no browser in tests")
	}, nil, nil, nil)
	return &Server{
		Auth:      store,
		Scheduler: sched,
		Logs:      logbuf.New(50),
	}
}

func login(t *testing.T, h http.Handler) *http.Cookie {
	t.Helper()
	form := url.Values{"password": {"hunter2"}}
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusFound {
		t.Fatalf("login code = %d, body = %s", w.Code, w.Body.String())
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("login cookies = %d", len(cookies))
	}
	return cookies[0]
}

func TestHealthzIsOpen(t *testing.T) {
	h := testServer(t).Routes()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestPanelRequiresAuth(t *testing.T) {
	h := testServer(t).Routes()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/login" {
		t.Fatalf("code=%d location=%q", w.Code, w.Header().Get("Location"))
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	h := testServer(t).Routes()
	form := url.Values{"password": {"wrong"}}
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Invalid password") {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
}

func TestStatusJSON(t *testing.T) {
	h := testServer(t).Routes()
	cookie := login(t, h)

	r := httptest.NewRequest(http.MethodGet, "/status", nil)
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}

	var st monitor.State
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != monitor.StatusIdle {
		t.Fatalf("status = %q, want idle", st.Status)
	}
}

func TestStartRejectsBadItinerary(t *testing.T) {
	h := testServer(t).Routes()
	cookie := login(t, h)

	form := url.Values{
		"origin":      {"수서"},
		"destination": {"수서"}, // same station
		"date":        {"20990101"},
		"hour":        {"18"},
		"from_train":  {"1"},
		"to_train":    {"3"},
	}
	r := httptest.NewRequest(http.MethodPost, "/start", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	body, _ := io.ReadAll(w.Result().Body)
	if w.Code != http.StatusOK || !strings.Contains(string(body), "destination") {
		t.Fatalf("code=%d body=%s", w.Code, body)
	}
}

func TestLogsJSON(t *testing.T) {
	s := testServer(t)
	slog.New(s.Logs.Handler(slog.NewTextHandler(io.Discard, nil))).Info("hello")
	h := s.Routes()
	cookie := login(t, h)

	r := httptest.NewRequest(http.MethodGet, "/logs.json", nil)
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	var entries []logbuf.Entry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "hello" {
		t.Fatalf("entries = %+v", entries)
	}
}
