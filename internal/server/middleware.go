package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"textfile-qa/internal/helper"
)

type contextKey struct{}

var sessionKey = contextKey{}

// RequestLogger logs one event per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// SessionCookie makes sure every request carries a canonical UUID session id, issuing a
// new one on the first visit. Other UUID spellings are rewritten; anything else is replaced.
func SessionCookie(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			issue := true
			if c, err := r.Cookie(name); err == nil {
				if canonical, ok := helper.CanonicalUUID(c.Value); ok {
					id = canonical
					issue = canonical != c.Value
				}
			}
			if id == "" {
				var err error
				id, err = helper.GenerateUUID()
				if err != nil {
					log.Error().Err(err).Msg("Error creating session id")
					http.Error(w, "failed to create session", http.StatusInternalServerError)
					return
				}
			}
			if issue {
				http.SetCookie(w, &http.Cookie{
					Name:     name,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, id)))
		})
	}
}

func sessionID(r *http.Request) string {
	id, _ := r.Context().Value(sessionKey).(string)
	return id
}
