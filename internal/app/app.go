// Package app — верхний уровень сборки шлюза. Здесь связываются конфигурация,
// кэш пиров, gotd-адаптер, доменный сервис и HTTP-сервер, и организуется
// корректный shutdown: сначала HTTP-сервер дожидается активных запросов,
// затем закрываются MTProto-клиенты и файл кэша.
package app

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	tgclient "telegram-gateway/internal/adapters/telegram/client"
	"telegram-gateway/internal/adapters/web"
	"telegram-gateway/internal/domain/gateway"
	"telegram-gateway/internal/infra/config"
	"telegram-gateway/internal/infra/logger"
	"telegram-gateway/internal/infra/storage"
	"telegram-gateway/internal/infra/telegram/peers"
)

const webServerShutdownTimeout = 10 * time.Second

// App агрегирует зависимости шлюза.
type App struct {
	cfg     config.EnvConfig
	version string

	peers *peers.Cache
	svc   *gateway.Service
	web   *web.Server
}

// NewApp создаёт пустой каркас приложения. Фактическая инициализация выполняется в Init().
func NewApp(cfg config.EnvConfig, version string) *App {
	return &App{cfg: cfg, version: version}
}

// Init открывает кэш пиров, готовит каталог загрузок и собирает сервисы.
// ctx ограничивает жизнь всех MTProto-клиентов.
func (a *App) Init(ctx context.Context) error {
	if err := storage.EnsureDirPath(a.cfg.UploadDir); err != nil {
		return errors.Wrap(err, "ensure upload dir")
	}
	removeStaleUploads(a.cfg.UploadDir)

	cache, err := peers.Open(a.cfg.PeersCacheFile)
	if err != nil {
		return errors.Wrap(err, "open peers cache")
	}
	a.peers = cache

	dialer := tgclient.NewDialer(tgclient.Options{
		BaseCtx:     ctx,
		ThrottleRPS: a.cfg.ThrottleRPS,
		TestDC:      a.cfg.TestDC,
		Peers:       cache,
		AppVersion:  a.version,
	})

	a.svc = gateway.NewService(gateway.Options{
		Dialer:              dialer,
		QRPollTimeout:       time.Duration(a.cfg.QRPollTimeoutMS) * time.Millisecond,
		ContinueOnSendError: a.cfg.SendContinueOnError,
	})

	a.web = web.NewServer(a.svc, web.Options{
		Address:        a.cfg.HTTPAddress,
		BodyLimitBytes: a.cfg.BodyLimitBytes(),
		UploadDir:      a.cfg.UploadDir,
	})
	return nil
}

// Run запускает HTTP-сервер и блокируется до отмены ctx или ошибки сервера.
func (a *App) Run(ctx context.Context) error {
	if a.web == nil {
		return errors.New("app is not initialized")
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.web.Start()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-serverErr:
		if runErr == nil {
			runErr = errors.New("http server stopped unexpectedly")
		}
	}

	a.shutdown()
	return runErr
}

// shutdown останавливает узлы в обратном порядке запуска.
func (a *App) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), webServerShutdownTimeout)
	defer cancel()

	if err := a.web.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := a.svc.Close(); err != nil {
		logger.Errorf("gateway service close failed: %v", err)
	}
	if err := a.peers.Close(); err != nil {
		logger.Errorf("peers cache close failed: %v", err)
	}
}

// removeStaleUploads удаляет временные файлы шлюза, оставшиеся в каталоге
// загрузок после аварийного завершения прошлого запуска. Чужие файлы не трогает.
func removeStaleUploads(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("read upload dir failed", zap.String("dir", dir), zap.Error(err))
		return
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !storage.IsStagedUpload(entry.Name()) {
			continue
		}
		if err := storage.Remove(filepath.Join(dir, entry.Name())); err != nil {
			logger.Warn("stale upload cleanup failed", zap.String("name", entry.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Infof("Removed %d stale uploads from %s", removed, dir)
	}
}
