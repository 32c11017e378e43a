package client

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"

	"telegram-gateway/internal/domain/gateway"
)

// qrImportTimeout ограничивает импорт авторизации после сигнала подтверждения.
// Импорт не привязан к короткому таймауту опроса.
const qrImportTimeout = 30 * time.Second

// QRLogin экспортирует токен входа. Подтверждение приходит апдейтом
// updateLoginToken, который ловит диспетчер, настроенный в Dial.
func (c *Client) QRLogin(ctx context.Context) (gateway.QRAttempt, error) {
	resp, err := c.api.AuthExportLoginToken(ctx, &tg.AuthExportLoginTokenRequest{
		APIID:   c.creds.APIID,
		APIHash: c.creds.APIHash,
	})
	if err != nil {
		return nil, errors.Wrap(err, "auth.exportLoginToken")
	}

	token, err := loginToken(resp)
	if err != nil {
		return nil, err
	}

	signaled := make(chan struct{})
	go func() {
		select {
		case <-c.loggedIn:
			close(signaled)
		case <-c.lifeCtx.Done():
		}
	}()

	return &qrAttempt{
		token:    token,
		base:     c.lifeCtx,
		signaled: signaled,
		importFn: func(ctx context.Context) error {
			_, err := c.tg.QR().Import(ctx)
			return err
		},
	}, nil
}

// loginToken достаёт байты токена из ответа auth.exportLoginToken.
// Перенос на другой DC здесь не ожидается: он приходит только после
// сканирования, а его обрабатывает QR().Import.
func loginToken(resp tg.AuthLoginTokenClass) ([]byte, error) {
	switch t := resp.(type) {
	case *tg.AuthLoginToken:
		return t.Token, nil
	case *tg.AuthLoginTokenMigrateTo:
		return nil, errors.Errorf("login token requires migration to DC %d", t.DCID)
	case *tg.AuthLoginTokenSuccess:
		return nil, errors.New("client is already authorized")
	default:
		return nil, errors.Errorf("unexpected login token response: %T", resp)
	}
}

// importRun — один запуск импорта авторизации. err читается после закрытия done.
type importRun struct {
	done chan struct{}
	err  error
}

// qrAttempt ждёт сигнал qrlogin и импортирует авторизацию. Импорт идёт в
// отдельной горутине, поэтому Wait никогда не ждёт дольше своего ctx.
// Неудачный импорт повторяется следующим Wait.
type qrAttempt struct {
	token    []byte
	base     context.Context
	signaled <-chan struct{}
	importFn func(ctx context.Context) error

	mu  sync.Mutex
	run *importRun
}

func (a *qrAttempt) Token() []byte { return a.token }

func (a *qrAttempt) Wait(ctx context.Context) error {
	select {
	case <-a.signaled:
	case <-ctx.Done():
		return ctx.Err()
	}

	run := a.startImport()
	select {
	case <-run.done:
		return run.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startImport возвращает текущий запуск импорта или начинает новый, если
// прошлый завершился ошибкой.
func (a *qrAttempt) startImport() *importRun {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.run != nil {
		select {
		case <-a.run.done:
			if a.run.err == nil {
				return a.run
			}
		default:
			return a.run
		}
	}

	run := &importRun{done: make(chan struct{})}
	a.run = run
	go func() {
		ctx, cancel := context.WithTimeout(a.base, qrImportTimeout)
		defer cancel()
		if err := a.importFn(ctx); err != nil {
			run.err = errors.Wrap(err, "import login token")
		}
		close(run.done)
	}()
	return run
}
