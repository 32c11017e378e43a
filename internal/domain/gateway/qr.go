package gateway

import (
	"context"
	"encoding/base64"
	"errors"

	"go.uber.org/zap"

	"telegram-gateway/internal/infra/logger"
)

// QRDataPrefix — префикс текстового представления токена входа.
const QRDataPrefix = "data:text/plain;base64,"

// qrState — единственная ожидающая попытка входа по QR.
// Отсутствие состояния (s.qr == nil) соответствует Idle.
type qrState struct {
	client    Client
	attempt   QRAttempt
	confirmed bool
	// restored: основной клиент уже поднят из токена этой попытки.
	restored bool
}

// QRStart создаёт отдельный клиент без сохранённой сессии и запрашивает токен
// входа. Предыдущая попытка, если была, закрывается.
func (s *Service) QRStart(ctx context.Context, creds Credentials) (string, error) {
	if !creds.valid() {
		return "", validationError("apiId and apiHash are required")
	}

	client, err := s.dialer.Dial(ctx, creds, "")
	if err != nil {
		return "", externalError(err)
	}

	loginer, ok := client.(QRLoginer)
	if !ok {
		closeClient(client, "qr")
		return "", unsupportedError("qr login is not supported by the client", nil)
	}

	attempt, err := loginer.QRLogin(ctx)
	if err != nil {
		closeClient(client, "qr")
		if errors.Is(err, ErrQRUnsupported) {
			return "", unsupportedError("", err)
		}
		return "", externalError(err)
	}

	token := attempt.Token()
	if len(token) == 0 {
		closeClient(client, "qr")
		return "", upstreamContractError("qr login returned empty token")
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		closeClient(client, "qr")
		return "", preconditionError("service is shutting down")
	}
	prev := s.qr
	s.qr = &qrState{client: client, attempt: attempt}
	s.creds = creds
	s.mu.Unlock()

	if prev != nil {
		closeClient(prev.client, "superseded qr")
	}
	logger.Info("qr login started", zap.Int("api_id", creds.APIID))
	return QRDataPrefix + base64.StdEncoding.EncodeToString(token), nil
}

// QRStatus опрашивает ожидающую попытку не дольше qrPollTimeout. Таймаут и
// любые ошибки ожидания дают false без ошибки; попытка остаётся ожидающей.
// После подтверждения сохраняет токен сессии, заменяет основной клиент
// клиентом из этого токена и далее всегда возвращает true.
func (s *Service) QRStatus(ctx context.Context) (bool, error) {
	s.mu.Lock()
	st := s.qr
	confirmed := st != nil && st.confirmed
	restored := st != nil && st.restored
	creds, session := s.creds, s.session
	s.mu.Unlock()

	if st == nil {
		return false, nil
	}
	if confirmed {
		if !restored {
			if err := s.bootstrapMain(ctx, st, creds, session); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.qrPollTimeout)
	err := st.attempt.Wait(waitCtx)
	cancel()
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			logger.Debug("qr wait finished without login", zap.Error(err))
		}
		return false, nil
	}

	token, err := st.client.Session(ctx)
	if err != nil || token == "" {
		logger.Warn("qr login confirmed but session is unavailable", zap.Error(err))
		return false, nil
	}

	s.mu.Lock()
	if s.qr != st {
		// попытку отменили или заменили, пока шло ожидание
		s.mu.Unlock()
		return false, nil
	}
	if st.confirmed {
		s.mu.Unlock()
		return true, nil
	}
	st.confirmed = true
	s.session = token
	creds = s.creds
	s.mu.Unlock()

	closeClient(st.client, "confirmed qr")
	logger.Info("qr login confirmed")

	if err := s.bootstrapMain(ctx, st, creds, token); err != nil {
		return false, err
	}
	return true, nil
}

// bootstrapMain поднимает основной клиент из токена, полученного по QR, и
// заменяет им текущий: клиент после start без сессии не авторизован.
func (s *Service) bootstrapMain(ctx context.Context, st *qrState, creds Credentials, token string) error {
	client, err := s.dialer.Dial(ctx, creds, token)
	if err != nil {
		return externalError(err)
	}

	s.mu.Lock()
	if s.shutdown || s.qr != st || st.restored {
		s.mu.Unlock()
		closeClient(client, "redundant main")
		return nil
	}
	prev := s.client
	s.client = client
	st.restored = true
	s.mu.Unlock()

	closeClient(prev, "superseded main")
	logger.Info("main client restored from qr session", zap.Int("api_id", creds.APIID))
	return nil
}

// QRCancel сбрасывает попытку в Idle. Повторный вызов безопасен.
func (s *Service) QRCancel() {
	s.mu.Lock()
	st := s.qr
	s.qr = nil
	confirmed := st != nil && st.confirmed
	s.mu.Unlock()

	if st == nil {
		return
	}
	if !confirmed {
		closeClient(st.client, "cancelled qr")
	}
	logger.Info("qr login cancelled")
}
