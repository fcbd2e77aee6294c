package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aadithya-v/rollcall"
	"github.com/aadithya-v/rollcall/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// principalHeader carries the verified principal set by the identity proxy
// in front of this server.
const principalHeader = "X-Principal-ID"

type server struct {
	engine     *rollcall.Engine
	trustProxy bool
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	engineCfg := rollcall.Config{
		RotationInterval:  cfg.RotationInterval,
		TokenTTL:          cfg.TokenTTL,
		SweepInterval:     cfg.SweepInterval,
		Retention:         cfg.Retention,
		NetworkMismatchKM: cfg.NetworkMismatchKM,
		GeoIPDatabasePath: cfg.GeoIPPath,
		Registerer:        prometheus.DefaultRegisterer,
	}

	// Attendance archive: MySQL when configured, SQLite otherwise.
	if cfg.MySQLDSN != "" {
		archive, err := store.NewMySQLArchiveFromDSN(cfg.MySQLDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to MySQL")
		}
		engineCfg.Archive = archive
	} else {
		engineCfg.ArchiveDatabasePath = cfg.ArchivePath
	}

	if cfg.RedisAddr != "" {
		rosters, err := store.NewRedisRosterSourceFromConfig(store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		engineCfg.Rosters = rosters
	}

	engine, err := rollcall.New(engineCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize rollcall")
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	engine.Start(ctx)

	s := &server{engine: engine, trustProxy: cfg.TrustProxy}
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("rollcall example server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", s.createSession)
	mux.HandleFunc("GET /sessions/{id}", s.getSession)
	mux.HandleFunc("POST /sessions/{id}/rotate", s.rotateToken)
	mux.HandleFunc("POST /sessions/{id}/resync", s.resyncRoster)
	mux.HandleFunc("POST /sessions/{id}/end", s.endSession)
	mux.HandleFunc("GET /sessions/{id}/attendance", s.listAttendance)
	mux.HandleFunc("POST /redeem", s.redeem)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

type createSessionBody struct {
	ClassID     string             `json:"class_id"`
	Roster      []string           `json:"roster"`
	WindowStart time.Time          `json:"window_start"`
	WindowEnd   time.Time          `json:"window_end"`
	Geofence    *rollcall.Geofence `json:"geofence"`
}

func (s *server) createSession(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(principalHeader)
	if owner == "" {
		http.Error(w, "missing principal", http.StatusUnauthorized)
		return
	}

	var body createSessionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	req := rollcall.CreateSessionRequest{
		ClassID:     body.ClassID,
		OwnerID:     owner,
		Roster:      body.Roster,
		WindowStart: body.WindowStart,
		WindowEnd:   body.WindowEnd,
		Geofence:    body.Geofence,
	}

	var (
		session *rollcall.Session
		err     error
	)
	if len(body.Roster) == 0 {
		session, err = s.engine.CreateSessionForClass(r.Context(), req)
	} else {
		session, err = s.engine.CreateSession(req)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// ownedSession loads a session and checks that the caller owns it.
func (s *server) ownedSession(w http.ResponseWriter, r *http.Request) (*rollcall.Session, bool) {
	session, err := s.engine.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if session.OwnerID != r.Header.Get(principalHeader) {
		http.Error(w, "not the session owner", http.StatusForbidden)
		return nil, false
	}
	return session, true
}

func (s *server) getSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *server) rotateToken(w http.ResponseWriter, r *http.Request) {
	session, ok := s.ownedSession(w, r)
	if !ok {
		return
	}

	token, expiry, err := s.engine.RotateToken(session.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":  token,
		"expiry": expiry,
	})
}

func (s *server) resyncRoster(w http.ResponseWriter, r *http.Request) {
	session, ok := s.ownedSession(w, r)
	if !ok {
		return
	}

	if err := s.engine.ResyncRoster(r.Context(), session.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) endSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.ownedSession(w, r)
	if !ok {
		return
	}

	if err := s.engine.EndSession(r.Context(), session.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listAttendance also serves sessions that only survive in the archive, so
// ownership is checked through SessionOwner rather than ownedSession.
func (s *server) listAttendance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	owner, err := s.engine.SessionOwner(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if owner != r.Header.Get(principalHeader) {
		http.Error(w, "not the session owner", http.StatusForbidden)
		return
	}

	records, err := s.engine.ListAttendance(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"attendance": records,
		"count":      len(records),
	})
}

type redeemBody struct {
	Token    string          `json:"token"`
	Location *rollcall.Point `json:"location"`
}

func (s *server) redeem(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get(principalHeader)
	if principal == "" {
		http.Error(w, "missing principal", http.StatusUnauthorized)
		return
	}

	var body redeemBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	device, network := s.engine.ExtractRequestInfo(r, s.trustProxy)
	record, err := s.engine.Redeem(r.Context(), rollcall.RedeemRequest{
		Token:     body.Token,
		Principal: principal,
		Location:  body.Location,
		Device:    device,
		Network:   network,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rollcall.ErrNotEnrolled):
		return http.StatusForbidden
	case errors.Is(err, rollcall.ErrAlreadyMarked), errors.Is(err, rollcall.ErrSessionEnded), errors.Is(err, rollcall.ErrSessionActive):
		return http.StatusConflict
	case errors.Is(err, rollcall.ErrSessionNotFound):
		return http.StatusNotFound
	case rollcall.IsRetryable(err):
		return http.StatusServiceUnavailable
	case rollcall.Classify(err) == rollcall.ClassClient:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, map[string]interface{}{
		"error":     message,
		"class":     rollcall.Classify(err).String(),
		"retryable": rollcall.IsRetryable(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
