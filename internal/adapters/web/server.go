// Package web — HTTP-поверхность шлюза: JSON-эндпоинты авторизации, списка
// каналов и multipart-пересылки файлов поверх доменного сервиса gateway.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"telegram-gateway/internal/domain/gateway"
	"telegram-gateway/internal/infra/logger"
)

// Service — операции доменного сервиса, доступные по HTTP.
type Service interface {
	Start(ctx context.Context, creds gateway.Credentials) error
	SendCode(ctx context.Context, phone string) error
	Verify(ctx context.Context, phone, code string) (string, error)
	QRStart(ctx context.Context, creds gateway.Credentials) (string, error)
	QRStatus(ctx context.Context) (bool, error)
	QRCancel()
	Channels(ctx context.Context) ([]gateway.Channel, error)
	Send(ctx context.Context, target string, files []gateway.Upload) error
}

// Options — параметры HTTP-сервера.
type Options struct {
	Address        string
	BodyLimitBytes int64
	UploadDir      string
}

// Server представляет HTTP-сервер шлюза.
type Server struct {
	srv  *http.Server
	svc  Service
	opts Options
}

const (
	readHeaderTimeout = 10 * time.Second
	// Загрузка крупных файлов и их пересылка идут внутри одного запроса.
	readTimeout  = 15 * time.Minute
	writeTimeout = 15 * time.Minute
	idleTimeout  = 60 * time.Second
)

// NewServer создаёт сервер и настраивает маршруты.
func NewServer(svc Service, opts Options) *Server {
	s := &Server{svc: svc, opts: opts}
	s.srv = &http.Server{
		Addr:              opts.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

// Handler возвращает корневой обработчик со всеми middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /auth/start", s.handleStart)
	mux.HandleFunc("POST /auth/sendCode", s.handleSendCode)
	mux.HandleFunc("POST /auth/verify", s.handleVerify)
	mux.HandleFunc("POST /auth/qr/start", s.handleQRStart)
	mux.HandleFunc("GET /auth/qr/status", s.handleQRStatus)
	mux.HandleFunc("POST /auth/qr/cancel", s.handleQRCancel)

	mux.HandleFunc("GET /channels", s.handleChannels)
	mux.HandleFunc("POST /send", s.handleSend)

	return loggingMiddleware(recoverMiddleware(corsMiddleware(bodyLimitMiddleware(s.opts.BodyLimitBytes, mux))))
}

// Start запускает сервер и блокируется до его остановки.
func (s *Server) Start() error {
	logger.Info("Starting HTTP server", zap.String("address", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown корректно останавливает сервер, дожидаясь активных запросов.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down HTTP server...")
	return s.srv.Shutdown(ctx)
}
