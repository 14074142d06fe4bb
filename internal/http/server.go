package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/homesentry/internal/observability/logger"
)

// Server envuelve http.Server con timeouts razonables y shutdown prolijo.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}}
}

// ListenAndServe bloquea hasta que el server cae o Shutdown lo apaga.
func (s *Server) ListenAndServe() error {
	logger.L().Info("http server escuchando", logger.String("addr", s.srv.Addr))
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drena conexiones respetando el contexto.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
