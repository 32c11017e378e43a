package client

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"github.com/gotd/td/tg"

	"telegram-gateway/internal/domain/gateway"
	"telegram-gateway/internal/infra/telegram/peers"
	"telegram-gateway/internal/infra/telegram/session"
)

// Client — подключённый gotd-клиент.
type Client struct {
	tg    *telegram.Client
	api   *tg.Client
	creds gateway.Credentials
	store *session.MemoryStorage
	peers *peers.Cache

	loggedIn qrlogin.LoggedIn

	// lifeCtx отменяется при Close и ограничивает фоновую работу клиента.
	lifeCtx   context.Context
	cancel    context.CancelFunc
	done      chan error
	closeOnce sync.Once

	accountMu sync.Mutex
	account   *peers.Account
}

var (
	_ gateway.Client    = (*Client)(nil)
	_ gateway.QRLoginer = (*Client)(nil)
)

// RequestCode запрашивает код через auth-клиент gotd.
func (c *Client) RequestCode(ctx context.Context, phone string) (any, error) {
	sent, err := c.tg.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "send code")
	}
	return sent, nil
}

// SendCode запрашивает код прямым вызовом auth.sendCode.
func (c *Client) SendCode(ctx context.Context, phone string) (any, error) {
	sent, err := c.api.AuthSendCode(ctx, &tg.AuthSendCodeRequest{
		PhoneNumber: phone,
		APIID:       c.creds.APIID,
		APIHash:     c.creds.APIHash,
		Settings:    tg.CodeSettings{},
	})
	if err != nil {
		return nil, errors.Wrap(err, "auth.sendCode")
	}
	return sent, nil
}

// SignIn входит через auth-клиент gotd.
func (c *Client) SignIn(ctx context.Context, req gateway.SignInRequest) error {
	if _, err := c.tg.Auth().SignIn(ctx, req.Phone, req.Code, req.CodeHash); err != nil {
		return errors.Wrap(err, "sign in")
	}
	return nil
}

// SignInRaw входит прямым вызовом auth.signIn.
func (c *Client) SignInRaw(ctx context.Context, req gateway.SignInRequest) error {
	resp, err := c.api.AuthSignIn(ctx, &tg.AuthSignInRequest{
		PhoneNumber:   req.Phone,
		PhoneCodeHash: req.CodeHash,
		PhoneCode:     req.Code,
	})
	if err != nil {
		return errors.Wrap(err, "auth.signIn")
	}
	if _, ok := resp.(*tg.AuthAuthorizationSignUpRequired); ok {
		return errors.New("auth.signIn: account is not registered")
	}
	return nil
}

// Session возвращает текущую сессию в виде токена.
func (c *Client) Session(_ context.Context) (string, error) {
	return c.store.Token(), nil
}

// Close останавливает клиент и ждёт завершения его горутины.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
	})
	return nil
}

// peerAccount лениво открывает корзину кэша текущего аккаунта.
// Возвращает nil без ошибки, если кэш не настроен.
func (c *Client) peerAccount(ctx context.Context) (*peers.Account, error) {
	if c.peers == nil {
		return nil, nil
	}

	c.accountMu.Lock()
	defer c.accountMu.Unlock()
	if c.account != nil {
		return c.account, nil
	}

	self, err := c.tg.Self(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get self")
	}
	account, err := c.peers.Account(self.ID)
	if err != nil {
		return nil, err
	}
	c.account = account
	return account, nil
}
