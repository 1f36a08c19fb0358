package control

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/WebFirstLanguage/lanchat/pkg/node"
	"github.com/WebFirstLanguage/lanchat/pkg/pool"
)

// messageRequest is the body of POST /api/messages
type messageRequest struct {
	Peer string `json:"peer"`
	Text string `json:"text"`
}

// NewHTTPHandler returns the chi router serving the node status API
func NewHTTPHandler(n *node.Node) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"state":  n.State().String(),
			"id":     n.ID().String(),
		})
	})

	r.Handle("/metrics", n.Metrics().Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/info", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, NodeInfo(n))
		})
		r.Get("/peers", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, Peers(n))
		})
		r.Get("/names", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, Names(n))
		})
		r.Post("/messages", func(w http.ResponseWriter, r *http.Request) {
			var req messageRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}

			result, err := SendText(r.Context(), n, req.Peer, req.Text)
			if errors.Is(err, pool.ErrPeerUnknown) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeJSON(w, http.StatusAccepted, result)
		})
	})

	return r
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
