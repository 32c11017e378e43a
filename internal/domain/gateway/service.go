package gateway

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"telegram-gateway/internal/infra/logger"
	"telegram-gateway/internal/infra/storage"
)

// DefaultQRPollTimeout — ожидание подтверждения QR за один вызов QRStatus.
const DefaultQRPollTimeout = time.Second

// Options задаёт параметры сервиса.
type Options struct {
	Dialer Dialer
	// QRPollTimeout ограничивает ожидание в QRStatus. Ноль — DefaultQRPollTimeout.
	QRPollTimeout time.Duration
	// ContinueOnSendError: при true Send обрабатывает все файлы пакета и
	// возвращает объединённую ошибку, при false останавливается на первой.
	ContinueOnSendError bool
}

// Channel — канал из списка диалогов. ID — десятичная строка идентификатора.
type Channel struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Service хранит единственный на процесс контекст сессии.
//
// Состояние защищено mu. Мьютекс держится только на время чтения или замены
// полей, сетевые вызовы выполняются на снимке хэндла без блокировки. Из двух
// одновременных Start остаётся клиент, записанный последним.
type Service struct {
	dialer              Dialer
	qrPollTimeout       time.Duration
	continueOnSendError bool

	mu       sync.Mutex
	client   Client
	creds    Credentials
	session  string
	pending  map[string]string
	qr       *qrState
	shutdown bool
}

// NewService создаёт сервис без активной сессии.
func NewService(opts Options) *Service {
	timeout := opts.QRPollTimeout
	if timeout <= 0 {
		timeout = DefaultQRPollTimeout
	}
	return &Service{
		dialer:              opts.Dialer,
		qrPollTimeout:       timeout,
		continueOnSendError: opts.ContinueOnSendError,
		pending:             make(map[string]string),
	}
}

// SessionToken возвращает последний сохранённый токен сессии.
func (s *Service) SessionToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Start подключает основной клиент и заменяет им предыдущий. Если токен
// сессии уже сохранён, клиент восстанавливается из него.
func (s *Service) Start(ctx context.Context, creds Credentials) error {
	if !creds.valid() {
		return validationError("apiId and apiHash are required")
	}

	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	client, err := s.dialer.Dial(ctx, creds, session)
	if err != nil {
		return externalError(err)
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		closeClient(client, "main")
		return preconditionError("service is shutting down")
	}
	prev := s.client
	s.client = client
	s.creds = creds
	s.mu.Unlock()

	closeClient(prev, "superseded main")
	logger.Info("client started", zap.Int("api_id", creds.APIID), zap.Bool("restored", session != ""))
	return nil
}

// SendCode запрашивает код подтверждения и запоминает хеш для phone.
func (s *Service) SendCode(ctx context.Context, phone string) error {
	client := s.currentClient()
	if client == nil {
		return preconditionError("not started")
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return validationError("phone is required")
	}

	out := tryShapes("sendCode",
		func() (any, error) { return client.RequestCode(ctx, phone) },
		func() (any, error) { return client.SendCode(ctx, phone) },
	)
	if out.Err != nil {
		return externalError(out.Err)
	}

	hash, err := extractCodeHash(out.Value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pending[phone] = hash
	s.mu.Unlock()

	logger.Info("code requested", zap.String("phone", phone), zap.Stringer("shape", out.Shape))
	return nil
}

// Verify входит по коду и возвращает новый токен сессии. Запись о
// запрошенном коде не удаляется: повторная проверка с тем же хешем допустима.
func (s *Service) Verify(ctx context.Context, phone, code string) (string, error) {
	phone = strings.TrimSpace(phone)
	code = strings.TrimSpace(code)

	s.mu.Lock()
	client := s.client
	hash, ok := s.pending[phone]
	s.mu.Unlock()

	if client == nil {
		return "", preconditionError("not started")
	}
	if phone == "" || code == "" {
		return "", validationError("phone and code are required")
	}
	if !ok {
		return "", preconditionError("no pending code for this phone")
	}

	req := SignInRequest{Phone: phone, Code: code, CodeHash: hash}
	out := tryShapes("signIn",
		noValue(func() error { return client.SignIn(ctx, req) }),
		noValue(func() error { return client.SignInRaw(ctx, req) }),
	)
	if out.Err != nil {
		return "", externalError(out.Err)
	}

	token, err := client.Session(ctx)
	if err != nil {
		return "", externalError(err)
	}
	if token == "" {
		return "", upstreamContractError("client returned empty session")
	}

	s.mu.Lock()
	s.session = token
	s.mu.Unlock()

	logger.Info("signed in", zap.String("phone", phone), zap.Stringer("shape", out.Shape))
	return token, nil
}

// Channels возвращает только каналы из списка диалогов в порядке провайдера.
func (s *Service) Channels(ctx context.Context) ([]Channel, error) {
	client := s.currentClient()
	if client == nil {
		return nil, preconditionError("not logged in")
	}

	dialogs, err := client.Dialogs(ctx)
	if err != nil {
		return nil, externalError(err)
	}

	channels := make([]Channel, 0, len(dialogs))
	for _, d := range dialogs {
		if !d.IsChannel {
			continue
		}
		channels = append(channels, Channel{ID: strconv.FormatInt(d.ID, 10), Title: d.Title})
	}
	return channels, nil
}

// Send пересылает файлы в канал target по одному, в порядке запроса. Каждый
// временный файл удаляется сразу после своей попытки отправки.
func (s *Service) Send(ctx context.Context, target string, files []Upload) error {
	client := s.currentClient()
	if client == nil {
		return preconditionError("not logged in")
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return validationError("channelId is required")
	}

	var errs []error
	for i, file := range files {
		err := s.sendOne(ctx, client, target, file)
		if err == nil {
			continue
		}
		if !s.continueOnSendError {
			logger.Warn("send aborted",
				zap.String("target", target),
				zap.Int("file_index", i),
				zap.Int("remaining", len(files)-i-1),
				zap.Error(err))
			return externalError(err)
		}
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return externalError(errors.Join(errs...))
	}
	return nil
}

func (s *Service) sendOne(ctx context.Context, client Client, target string, file Upload) error {
	defer func() {
		if err := storage.Remove(file.Path); err != nil {
			logger.Warn("staged file cleanup failed", zap.String("path", file.Path), zap.Error(err))
		}
	}()

	caption := file.Name
	out := tryShapes("sendFile",
		noValue(func() error { return client.SendFile(ctx, target, file, caption) }),
		noValue(func() error { return client.SendMessage(ctx, target, file, caption) }),
	)
	if out.Err != nil {
		return out.Err
	}
	logger.Info("file sent",
		zap.String("target", target),
		zap.String("name", file.Name),
		zap.Int64("size", file.Size),
		zap.Stringer("shape", out.Shape))
	return nil
}

// Close закрывает основной и QR-клиент. После Close новые клиенты не принимаются.
func (s *Service) Close() error {
	s.mu.Lock()
	client := s.client
	qr := s.qr
	s.client = nil
	s.qr = nil
	s.shutdown = true
	s.mu.Unlock()

	closeClient(client, "main")
	if qr != nil {
		closeClient(qr.client, "qr")
	}
	return nil
}

func (s *Service) currentClient() Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// closeClient закрывает клиент, если он есть; ошибка только логируется.
func closeClient(client Client, role string) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		logger.Warn("client close failed", zap.String("role", role), zap.Error(err))
	}
}
