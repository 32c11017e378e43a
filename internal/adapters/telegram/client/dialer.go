// Package client — адаптер gotd к контракту шлюза (gateway.Dialer / gateway.Client).
// Каждый Dial поднимает отдельный MTProto-клиент со своей сессией в памяти,
// своими middleware (floodwait, ratelimit) и диспетчером апдейтов. Клиент
// живёт в фоновой горутине до Close или отмены базового контекста приложения.
package client

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"telegram-gateway/internal/domain/gateway"
	"telegram-gateway/internal/infra/logger"
	"telegram-gateway/internal/infra/telegram/peers"
	"telegram-gateway/internal/infra/telegram/session"
)

// Options — общие для всех клиентов параметры.
type Options struct {
	// BaseCtx ограничивает жизнь всех клиентов. Отмена останавливает их.
	BaseCtx context.Context
	// ThrottleRPS — лимит исходящих RPC на клиента.
	ThrottleRPS int
	// TestDC включает тестовые дата-центры Telegram.
	TestDC bool
	// Peers — кэш каналов; nil отключает персистентность (каналы ищутся в диалогах).
	Peers *peers.Cache
	// AppVersion попадает в DeviceConfig.
	AppVersion string
}

// Dialer создаёт gotd-клиентов.
type Dialer struct {
	opts Options
}

var _ gateway.Dialer = (*Dialer)(nil)

// NewDialer возвращает Dialer с нормализованными параметрами.
func NewDialer(opts Options) *Dialer {
	if opts.BaseCtx == nil {
		opts.BaseCtx = context.Background()
	}
	if opts.ThrottleRPS <= 0 {
		opts.ThrottleRPS = 1
	}
	if opts.AppVersion == "" {
		opts.AppVersion = "dev"
	}
	return &Dialer{opts: opts}
}

// Dial подключается к Telegram и ждёт готовности соединения. ctx ограничивает
// только ожидание подключения; само соединение живёт до Close.
func (d *Dialer) Dial(ctx context.Context, creds gateway.Credentials, token string) (gateway.Client, error) {
	store, err := session.NewMemoryStorage(token)
	if err != nil {
		return nil, err
	}

	dispatcher := tg.NewUpdateDispatcher()
	loggedIn := qrlogin.OnLoginToken(dispatcher)
	waiter := floodwait.NewWaiter()

	options := telegram.Options{
		SessionStorage: store,
		UpdateHandler:  dispatcher,
		Middlewares: []telegram.Middleware{
			waiter,
			ratelimit.New(
				rate.Limit(d.opts.ThrottleRPS),
				d.opts.ThrottleRPS*2, //nolint:mnd // burst = 2*rate
			),
		},
		OnDead: func() {
			logger.Warn("mtproto connection is dead, reconnecting", zap.Int("api_id", creds.APIID))
		},
		Device: telegram.DeviceConfig{
			DeviceModel:   "telegram-gateway",
			SystemVersion: "linux",
			AppVersion:    d.opts.AppVersion,
		},
		Logger: logger.Logger().Named("mtproto").WithOptions(zap.IncreaseLevel(zap.InfoLevel)),
	}
	if d.opts.TestDC {
		options.DCList = dcs.Test()
	}

	tgClient := telegram.NewClient(creds.APIID, creds.APIHash, options)

	runCtx, cancel := context.WithCancel(d.opts.BaseCtx)
	ready := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- waiter.Run(runCtx, func(ctx context.Context) error {
			return tgClient.Run(ctx, func(ctx context.Context) error {
				close(ready)
				<-ctx.Done()
				return ctx.Err()
			})
		})
	}()

	select {
	case <-ready:
	case err := <-done:
		cancel()
		if err == nil {
			err = errors.New("client stopped before connecting")
		}
		return nil, errors.Wrap(err, "connect")
	case <-ctx.Done():
		cancel()
		<-done
		return nil, errors.Wrap(ctx.Err(), "connect")
	}

	logger.Debug("mtproto client connected", zap.Int("api_id", creds.APIID), zap.Bool("restored", token != ""))
	return &Client{
		tg:       tgClient,
		api:      tgClient.API(),
		creds:    creds,
		store:    store,
		peers:    d.opts.Peers,
		loggedIn: loggedIn,
		lifeCtx:  runCtx,
		cancel:   cancel,
		done:     done,
	}, nil
}
