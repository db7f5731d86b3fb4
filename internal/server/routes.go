// Package server exposes the game API over HTTP and websockets.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/BioHazard786/bola/internal/config"
	"github.com/BioHazard786/bola/internal/leaderboard"
	"github.com/BioHazard786/bola/internal/signaling"
	"github.com/BioHazard786/bola/internal/tournament"
	"github.com/BioHazard786/bola/internal/version"
)

// Server holds the dependencies of every route.
type Server struct {
	cfg         *config.Config
	manager     *signaling.Manager
	leaderboard *leaderboard.Leaderboard
	tournament  *tournament.Tournament
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// New creates a Server.
func New(cfg *config.Config, manager *signaling.Manager, lb *leaderboard.Leaderboard, tour *tournament.Tournament, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:         cfg,
		manager:     manager,
		leaderboard: lb,
		tournament:  tour,
		logger:      logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthCheckHandler)
	mux.HandleFunc("GET /ws/multiplayer", s.serveMultiplayer)
	mux.HandleFunc("GET /ws/leaderboard", s.serveLeaderboard)
	mux.HandleFunc("POST /highscore/{difficulty}", s.postHighscore)
	mux.HandleFunc("GET /tournament", s.getTournament)
	mux.HandleFunc("GET /stats", s.getStats)
	return mux
}

// Health Check endpoint
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("bola server is healthy."))
}

// checkOrigin admits browsers from the configured origins. Requests without
// an Origin header are native clients and always pass.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, origin)
}

// serveWs upgrades the request and runs fn until it returns. The
// connection is closed afterwards once queued messages are flushed.
func (s *Server) serveWs(w http.ResponseWriter, r *http.Request, c codec, fn func(context.Context, *client)) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("failed to upgrade connection", "error", err)
		return
	}

	cl, ctx := newClient(r.Context(), conn, c, s.logger)
	cl.logger.Debug("client connected", "path", r.URL.Path, "remote", conn.RemoteAddr())

	go cl.writePump()
	go cl.readPump(ctx)

	fn(ctx, cl)
	cl.finish()
	cl.logger.Debug("client finished")
}

func (s *Server) serveMultiplayer(w http.ResponseWriter, r *http.Request) {
	c, err := codecFor(r.URL.Query().Get("codec"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.serveWs(w, r, c, s.runMultiplayer)
}

// serveLeaderboard streams a board: a snapshot first, then every update.
// Any frame from the client ends the stream.
func (s *Server) serveLeaderboard(w http.ResponseWriter, r *http.Request) {
	difficulty, err := leaderboard.ParseDifficulty(r.URL.Query().Get("difficulty"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.serveWs(w, r, jsonCodec{}, func(ctx context.Context, c *client) {
		updates, unsubscribe, err := s.leaderboard.Subscribe(difficulty)
		if err != nil {
			return
		}
		defer unsubscribe()

		entries, _ := s.leaderboard.Snapshot(difficulty)
		if !c.write(ctx, leaderboard.Update{Difficulty: difficulty, Entries: entries}) {
			return
		}

		for {
			select {
			case update := <-updates:
				if !c.write(ctx, update) {
					return
				}
			case <-c.incoming:
				return
			case <-ctx.Done():
				return
			}
		}
	})
}

type highscoreRequest struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
}

func (s *Server) postHighscore(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	difficulty, err := leaderboard.ParseDifficulty(r.PathValue("difficulty"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req highscoreRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Score < 0 {
		http.Error(w, "username and a non-negative score are required", http.StatusBadRequest)
		return
	}

	entry := leaderboard.Entry{Username: req.Username, Score: req.Score}
	if err := s.leaderboard.Add(r.Context(), difficulty, entry); err != nil {
		s.logger.Error("adding highscore failed", "difficulty", difficulty, "error", err)
		http.Error(w, "failed to save highscore", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorized checks the bearer token against the bcrypt hash when one is
// configured, else against the plain token. With neither, nobody is
// authorized.
func (s *Server) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return false
	}
	if s.cfg.APITokenHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(s.cfg.APITokenHash), []byte(token)) == nil
	}
	if s.cfg.APIToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIToken)) == 1
}

func (s *Server) getTournament(w http.ResponseWriter, r *http.Request) {
	week, err := s.tournament.Current()
	if errors.Is(err, tournament.ErrNotStarted) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, week)
}

// Stats is the body of GET /stats.
type Stats struct {
	Version string `json:"version"`
	signaling.Stats
	Leaderboards map[leaderboard.Difficulty]int `json:"leaderboards"`
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats := Stats{
		Version:      version.Version,
		Stats:        s.manager.Stats(),
		Leaderboards: make(map[leaderboard.Difficulty]int, len(leaderboard.Difficulties)),
	}
	for _, d := range leaderboard.Difficulties {
		stats.Leaderboards[d] = s.leaderboard.Subscribers(d)
	}
	writeJSON(w, stats)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
