package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/replybot/replybot/internal/logging"
	"github.com/replybot/replybot/internal/metrics"
	"github.com/replybot/replybot/internal/router"
	"github.com/replybot/replybot/internal/webhook"
)

const defaultMaxBodyBytes = 1 << 20

// Options configure the HTTP surface.
type Options struct {
	Port        int
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 verification when set.
	AppSecret    string
	MaxBodyBytes int64
}

type Server struct {
	opts       Options
	router     *router.Router
	metrics    *metrics.Metrics
	logger     logging.Logger
	httpServer *http.Server
}

func New(opts Options, rt *router.Router, m *metrics.Metrics, logger logging.Logger) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if rt == nil {
		rt = router.New(router.Deps{Logger: logger, Metrics: m})
	}
	return &Server{
		opts:    opts,
		router:  rt,
		metrics: m,
		logger:  logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.opts.Port),
		Handler:      s.setupRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.WithField("port", s.opts.Port).Info("Starting webhook server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.HandleFunc("/webhook", s.handleWebhook)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleVerify(w, r)
	case http.MethodPost:
		s.handleEvents(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		s.respond(w, r, http.StatusMethodNotAllowed, "Method Not Allowed")
	}
}

// handleVerify answers the subscription handshake.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "" || token == "" {
		s.respond(w, r, http.StatusBadRequest, "No mode/token")
		return
	}
	if mode == "subscribe" && s.opts.VerifyToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.VerifyToken)) == 1 {
		s.logger.Info("Webhook subscription verified")
		s.respond(w, r, http.StatusOK, challenge)
		return
	}
	s.logger.WithField("mode", mode).Warn("Webhook verification failed")
	s.respond(w, r, http.StatusForbidden, "Verification failed")
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := s.logger.WithField("request_id", middleware.GetReqID(r.Context()))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		log.WithError(err).Error("Failed to read webhook body")
		s.respond(w, r, http.StatusInternalServerError, "ERR")
		return
	}

	if s.opts.AppSecret != "" && !webhook.VerifySignature(s.opts.AppSecret, body, r.Header.Get(webhook.SignatureHeader)) {
		log.Warn("Webhook signature mismatch")
		s.respond(w, r, http.StatusForbidden, "Invalid signature")
		return
	}

	payload, err := webhook.Decode(body)
	if err != nil {
		log.WithError(err).Error("Webhook payload rejected")
		s.respond(w, r, http.StatusInternalServerError, "ERR")
		return
	}
	if !payload.HasEntries() {
		s.respond(w, r, http.StatusOK, "no entry")
		return
	}

	events, skips := payload.Events()
	s.metrics.AddSkipped(len(skips))
	for _, sk := range skips {
		log.WithFields(logging.Fields{
			"entry":  sk.Entry,
			"reason": sk.Reason,
		}).Debug("Webhook record skipped")
	}

	// Side effects run to completion even if the platform drops the connection.
	ctx := context.WithoutCancel(r.Context())
	sum, err := s.dispatch(ctx, events)
	if err != nil {
		log.WithError(err).Error("Webhook processing failed")
		s.respond(w, r, http.StatusInternalServerError, "ERR")
		return
	}

	log.WithFields(logging.Fields{
		"comments": sum.Comments,
		"messages": sum.Messages,
		"failed":   sum.Failed,
		"skipped":  len(skips),
	}).Info("Webhook processed")
	s.respond(w, r, http.StatusOK, "EVENT_RECEIVED")
}

func (s *Server) dispatch(ctx context.Context, events []webhook.Event) (sum router.Summary, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("dispatch panicked: %v", p)
		}
	}()
	return s.router.Dispatch(ctx, events), nil
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, code int, body string) {
	s.metrics.IncWebhook(r.Method, strconv.Itoa(code))
	writeText(w, code, body)
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	io.WriteString(w, body)
}
