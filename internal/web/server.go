// Package web is the operator control panel: one page to start, stop and
// reset the watch, plus JSON endpoints for status and recent logs.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/srt-watcher/internal/auth"
	"github.com/example/srt-watcher/internal/itinerary"
	"github.com/example/srt-watcher/internal/logbuf"
	"github.com/example/srt-watcher/internal/monitor"
)

//go:embed templates/*.html
var fs embed.FS

type Server struct {
	Auth      *auth.Store
	Scheduler *monitor.Scheduler
	Logs      *logbuf.Buffer
}

type tmplData struct {
	Title string
	Flash string

	State monitor.State
	Form  itinerary.Raw
	Hours []string
}

// hourGrid is the even-hour select the schedule site offers.
var hourGrid = []string{"00", "02", "04", "06", "08", "10", "12", "14", "16", "18", "20", "22"}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)

	mux.Handle("/", s.Auth.RequireAuth(http.HandlerFunc(s.handleHome)))
	mux.Handle("/start", s.Auth.RequireAuth(http.HandlerFunc(s.handleStart)))
	mux.Handle("/stop", s.Auth.RequireAuth(http.HandlerFunc(s.handleStop)))
	mux.Handle("/reset", s.Auth.RequireAuth(http.HandlerFunc(s.handleReset)))
	mux.Handle("/status", s.Auth.RequireAuth(http.HandlerFunc(s.handleStatus)))
	mux.Handle("/logs.json", s.Auth.RequireAuth(http.HandlerFunc(s.handleLogs)))

	return mux
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.render(w, "templates/panel.html", tmplData{
		Title: "SRT Watch",
		State: s.Scheduler.Status(),
		Form:  defaultForm(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, "templates/login.html", tmplData{Title: "Login"})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.Auth.Authenticate(r.FormValue("password")); err != nil {
			s.render(w, "templates/login.html", tmplData{Title: "Login", Flash: "Invalid password"})
			return
		}
		if err := s.Auth.SetSession(w, r); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	raw := itinerary.Raw{
		Origin:      strings.TrimSpace(r.FormValue("origin")),
		Destination: strings.TrimSpace(r.FormValue("destination")),
		Date:        strings.TrimSpace(r.FormValue("date")),
		Hour:        strings.TrimSpace(r.FormValue("hour")),
		Seats:       strings.TrimSpace(r.FormValue("seats")),
	}
	raw.FromTrain, _ = strconv.Atoi(r.FormValue("from_train"))
	raw.ToTrain, _ = strconv.Atoi(r.FormValue("to_train"))

	q, err := itinerary.Validate(raw)
	if err != nil {
		s.render(w, "templates/panel.html", tmplData{
			Title: "SRT Watch",
			Flash: err.Error(),
			State: s.Scheduler.Status(),
			Form:  raw,
		})
		return
	}

	if err := s.Scheduler.Start(q); err != nil {
		s.render(w, "templates/panel.html", tmplData{
			Title: "SRT Watch",
			Flash: err.Error(),
			State: s.Scheduler.Status(),
			Form:  raw,
		})
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// Stopping an idle watcher is not worth a flash message.
	_ = s.Scheduler.Stop()
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.Scheduler.Reset(); err != nil {
		s.render(w, "templates/panel.html", tmplData{
			Title: "SRT Watch",
			Flash: err.Error(),
			State: s.Scheduler.Status(),
			Form:  defaultForm(),
		})
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Scheduler.Status())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Logs.Entries())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func defaultForm() itinerary.Raw {
	return itinerary.Raw{
		Origin:      "동탄",
		Destination: "동대구",
		Hour:        "18",
		FromTrain:   1,
		ToTrain:     3,
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data tmplData) {
	data.Hours = hourGrid
	t, err := template.ParseFS(fs,
		"templates/base.html",
		name,
	)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
	}
}

func Start(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return srv.ListenAndServe()
}
