package httpapi

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Cypherspark/reminder-bot/internal/core"
)

const maxInteractionBody = 1 << 20

type Server struct {
	Lifecycle *core.Service
	Store     core.Store
	PublicKey ed25519.PublicKey
	Log       zerolog.Logger
}

func NewServer(svc *core.Service, store core.Store, publicKey ed25519.PublicKey, log zerolog.Logger) *Server {
	return &Server{Lifecycle: svc, Store: store, PublicKey: publicKey, Log: log}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.logRequests, instrument, middleware.Recoverer)

	s.mountHealth(r)
	s.mountMetrics(r)
	r.Post("/interactions", s.interactions)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// interactions is the webhook Discord calls. Everything past signature
// verification answers 200 with an interaction response.
func (s *Server) interactions(w http.ResponseWriter, r *http.Request) {
	log := s.Log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()

	if len(s.PublicKey) == 0 {
		log.Error().Msg("discord public key is not configured")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_configuration_error"})
		return
	}
	if r.Header.Get("X-Signature-Ed25519") == "" || r.Header.Get("X-Signature-Timestamp") == "" {
		log.Warn().Msg("missing signature headers")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "bad_request_signature"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInteractionBody))
	if err != nil || len(body) == 0 {
		log.Warn().Err(err).Msg("empty or unreadable interaction body")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "bad_request_signature"})
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if !discordgo.VerifyInteraction(r, s.PublicKey) {
		log.Warn().Msg("invalid interaction signature")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_signature"})
		return
	}

	var in discordgo.Interaction
	if err := json.Unmarshal(body, &in); err != nil {
		log.Warn().Err(err).Msg("undecodable interaction")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}

	writeJSON(w, http.StatusOK, s.route(r.Context(), log, &in))
}
