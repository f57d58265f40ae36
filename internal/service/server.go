package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// 导入上传最大 10MB、导出整表下载，读写超时按慢速移动网络放宽
const (
	serverReadHeaderTimeout = 5 * time.Second
	serverReadTimeout       = 2 * time.Minute
	serverWriteTimeout      = 3 * time.Minute
	serverIdleTimeout       = 90 * time.Second
)

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: serverReadHeaderTimeout,
		ReadTimeout:       serverReadTimeout,
		WriteTimeout:      serverWriteTimeout,
		IdleTimeout:       serverIdleTimeout,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}
	return &Server{httpServer: s, logger: logger}
}

// Start blocks until the server stops; a graceful Stop returns nil.
func (s *Server) Start() error {
	s.logger.Info("Starting iuran-data HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping iuran-data HTTP server")
	return s.httpServer.Shutdown(ctx)
}
