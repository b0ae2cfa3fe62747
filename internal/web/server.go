package web

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bist-tracker/internal/dashboard"
	"bist-tracker/internal/render"
)

const (
	sessionCookie = "bist_session"
	sessionTTL    = 12 * time.Hour
)

// Server serves the dashboard. Each browser session, keyed by a cookie, owns
// its own selection state; the "ticker" query parameter is the selection event.
type Server struct {
	presenter *dashboard.Presenter
	size      render.Size
	logger    zerolog.Logger
	server    *http.Server

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu       sync.Mutex
	sel      dashboard.Selection
	lastSeen time.Time
}

// NewServer creates a dashboard server listening on addr.
func NewServer(addr string, presenter *dashboard.Presenter, size render.Size, logger zerolog.Logger) *Server {
	s := &Server{
		presenter: presenter,
		size:      size,
		logger:    logger.With().Str("component", "web").Logger(),
		sessions:  make(map[string]*session),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleIndex)
	return mux
}

// Start listens until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting dashboard server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server. A server shut down before Start
// makes Start return immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	sess := s.session(w, r)

	query := r.URL.Query()
	if ticker := query.Get("ticker"); ticker != "" {
		s.selectTicker(r.Context(), sess, ticker)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	rows, _ := strconv.Atoi(query.Get("rows"))

	sess.mu.Lock()
	page, err := s.presenter.Build(r.Context(), &sess.sel, rows)
	sess.mu.Unlock()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build page")
		http.Error(w, "failed to load data", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := render.WritePage(&buf, page, s.size); err != nil {
		s.logger.Error().Err(err).Msg("failed to render page")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) selectTicker(ctx context.Context, sess *session, ticker string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.presenter.Select(ctx, &sess.sel, ticker); err != nil {
		s.logger.Warn().Err(err).Str("ticker", ticker).Msg("selection ignored")
		return
	}
	s.logger.Info().Str("ticker", ticker).Msg("selection changed")
}

// session returns the caller's session, starting a new one and setting its
// cookie when the request carries none or an expired one.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, err := r.Cookie(sessionCookie); err == nil {
		if sess, ok := s.sessions[c.Value]; ok {
			sess.lastSeen = now
			return sess
		}
	}

	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) > sessionTTL {
			delete(s.sessions, id)
		}
	}

	id := newSessionID()
	sess := &session{lastSeen: now}
	s.sessions[id] = sess
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

// Sessions returns the number of live browser sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func newSessionID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
