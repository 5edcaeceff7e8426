package main

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mujykun/ucube"
	"github.com/mujykun/ucube/internal/watch"
)

// statsResponse is the admin /stats payload: cache and tracker counters from
// the client, plus the current state of the watch profile.
type statsResponse struct {
	ucube.Stats
	WatchProfileLoaded bool   `json:"watch_profile_loaded"`
	WatchProfileDigest string `json:"watch_profile_digest,omitempty"`
}

func handleStats(client *ucube.AsyncClient, watches *watch.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		stats, err := client.Stats().Wait(r.Context())
		if err != nil {
			// a closed client or a cancelled request: either way there is no
			// answer to give
			log.Info().Msgf("stats unavailable: %v", err)
			writeJSONError(w, http.StatusServiceUnavailable, "stats unavailable")
			return
		}

		profile := watches.Current()
		response := statsResponse{
			Stats:              stats,
			WatchProfileLoaded: profile.IsLoaded(),
			WatchProfileDigest: profile.Digest(),
		}

		marshalled, err := json.Marshal(response)
		if err != nil {
			requestError(w, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, err = w.Write(marshalled)
		if err != nil {
			// record failure to log: trying to respond to the client at this
			// point will likely fail
			log.Info().Msgf("failed to write response: %v\n", err)
			return
		}
	})
}

func handleHealthCheck() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, limit)
	}
}

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSONError writes a JSON error response with the given status code and message.
func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{Error: message}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// At this point the status code has been written, so we can only log
		log.Info().Msgf("failed to write JSON error response: %v", err)
	}
}

func requestError(w http.ResponseWriter, statusCode int) {
	http.Error(w, http.StatusText(statusCode), statusCode)
}

// drainRequestBody drains the request body by reading and discarding the
// contents. This keeps the connection reusable for HTTP/1 clients. Past the
// cap we assume the client is broken or malicious and let the connection
// close.
func drainRequestBody(r *http.Request) {
	if r.Body != nil {
		io.CopyN(io.Discard, r.Body, 5*1024*1024)
	}
}
