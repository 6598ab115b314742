package http

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"fleet-monitor/tracking/internal/metrics"
)

type ServerDeps struct {
	Auth          KeyValidator
	Dispatcher    Submitter
	Processor     PositionProcessor
	Notifications Notifications
	SMS           SMSSender
	WebSocket     http.Handler
}

type Server struct {
	srv *http.Server
	log logrus.FieldLogger
}

// NewRouter builds the HTTP surface. Health and metrics are open; every
// /api route and the websocket need an API key.
func NewRouter(deps ServerDeps, log logrus.FieldLogger) http.Handler {
	h := &Handlers{
		dispatcher:    deps.Dispatcher,
		processor:     deps.Processor,
		notifications: deps.Notifications,
		sms:           deps.SMS,
		log:           log.WithField("component", "http"),
	}
	auth := NewAuthMiddleware(deps.Auth)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/positions", h.HandlePositions)
	api.HandleFunc("GET /api/notifications/notificators", h.HandleNotificators)
	api.HandleFunc("POST /api/notifications/test", h.HandleTestAll)
	api.HandleFunc("POST /api/notifications/test/{notificator}", h.HandleTest)
	api.HandleFunc("POST /api/notifications/send_sms", h.HandleSendSMS)
	if deps.WebSocket != nil {
		api.Handle("GET /ws", deps.WebSocket)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", HandleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("/", auth.Wrap(api))

	return RequestLogger(log, mux)
}

func NewServer(addr string, handler http.Handler, log logrus.FieldLogger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.WithField("component", "http_server"),
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.srv.Addr).Info("http server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
