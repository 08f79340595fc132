package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/waply/internal/config"
	"github.com/antoniostano/waply/internal/observability"
	"github.com/antoniostano/waply/internal/webhook"
	"github.com/antoniostano/waply/internal/whatsapp"
)

const maxWebhookBody = 1 << 20

// Processor runs the event pipeline for one parsed webhook delivery.
type Processor interface {
	Process(ctx context.Context, event webhook.InboundEvent) webhook.Result
}

type Server struct {
	cfg       config.Config
	processor Processor
	metrics   *observability.Metrics
}

func New(cfg config.Config, processor Processor, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		processor: processor,
		metrics:   metrics,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/webhook", s.handleVerify)
	r.Post("/webhook", s.handleEvent)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleVerify answers the platform's subscription handshake: echo the
// numeric challenge when the mode and verify token match.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode != "subscribe" || token != s.cfg.MetaVerifyToken {
		respondError(w, http.StatusForbidden, "verification_failed", "verification failed")
		return
	}

	n, err := strconv.Atoi(strings.TrimSpace(challenge))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_challenge", "hub.challenge must be an integer")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(strconv.Itoa(n)))
}

// handleEvent verifies the signature, then acknowledges with 200 no
// matter how processing went: the response flags carry what happened,
// and a non-2xx here would only trigger the platform's retry storm.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "read_failed", "could not read request body")
		return
	}
	defer r.Body.Close()

	sig := r.Header.Get("X-Hub-Signature-256")
	if err := whatsapp.VerifySignature(s.cfg.MetaAppSecret, body, sig); err != nil {
		if errors.Is(err, whatsapp.ErrNoAppSecret) {
			respondError(w, http.StatusInternalServerError, "misconfigured", "app secret missing")
			return
		}
		s.metrics.SignatureRejects.Inc()
		respondError(w, http.StatusForbidden, "unauthenticated", err.Error())
		return
	}

	event, found, err := webhook.ParseEvent(body)
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"ok": true, "error": true})
		return
	}
	if !found {
		respondJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	res := s.processor.Process(r.Context(), event)

	ack := map[string]any{"ok": true}
	switch res.Outcome {
	case webhook.OutcomeRateLimited:
		ack["rate_limited"] = true
	case webhook.OutcomeSendFailed:
		ack["send_failed"] = true
	case webhook.OutcomeFailed:
		ack["error"] = true
	}
	respondJSON(w, http.StatusOK, ack)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
