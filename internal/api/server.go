package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	"github.com/TeneoProtocolAI/teneo-tax-ledger/pkg/version"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
)

// statusClientClosed is reported when a run is cancelled by its caller.
const statusClientClosed = 499

const maxRequestBody = 1 << 20

type Options struct {
	JWTSecret      string
	AllowedOrigins []string
}

// Server exposes ledger runs over HTTP and websocket.
type Server struct {
	runner domain.LedgerRunner
	opts   Options
}

func NewServer(runner domain.LedgerRunner, opts Options) *Server {
	return &Server{runner: runner, opts: opts}
}

// Handler returns the routed handler wrapped in CORS.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	if s.opts.JWTSecret != "" {
		v1.Use(bearerAuth([]byte(s.opts.JWTSecret)))
	}
	v1.HandleFunc("/ledger", s.handleLedger).Methods(http.MethodPost)
	v1.HandleFunc("/ledger/stream", s.handleStream).Methods(http.MethodGet)

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	})
	return c.Handler(r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, version.GetBuildInfo())
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	l := log.WithFields(log.Fields{
		"package": "api",
		"func":    "handleLedger",
	})

	var req LedgerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	input, err := req.Input()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	out, err := s.runner.Run(r.Context(), input, domain.RunOptions{})
	if err != nil {
		l.WithField("wallet", input.Wallet).Warnf("run failed: %v", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	l.WithFields(log.Fields{
		"run_id":  out.RunID,
		"rows":    len(out.Rows),
		"elapsed": time.Since(start).String(),
	}).Info("run complete")
	writeJSON(w, http.StatusOK, out)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrHistoryUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrCancelled):
		return statusClientClosed
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithFields(log.Fields{
			"package": "api",
			"func":    "writeJSON",
		}).Error(err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
