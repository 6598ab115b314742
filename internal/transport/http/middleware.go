package http

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type ctxKey int

const ownerKey ctxKey = iota

// KeyValidator is satisfied by auth.Authenticator.
type KeyValidator interface {
	Validate(ctx context.Context, apiKey string) (string, bool)
}

type AuthMiddleware struct {
	auth KeyValidator
}

func NewAuthMiddleware(a KeyValidator) *AuthMiddleware {
	return &AuthMiddleware{auth: a}
}

// Wrap rejects requests without a valid key. Browsers cannot set headers on
// websocket upgrades, so the key may also come as the api_key query value.
func (m *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}
		if apiKey == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing X-API-Key header"})
			return
		}

		owner, ok := m.auth.Validate(r.Context(), apiKey)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid API key"})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
	})
}

// Owner returns the API key owner stored by AuthMiddleware.
func Owner(ctx context.Context) string {
	s, _ := ctx.Value(ownerKey).(string)
	return s
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func RequestLogger(log logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("http request")
	})
}
