package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"otp-gateway/internal/config"
	"otp-gateway/internal/service"
)

// Supported values of TELEGRAM_TRANSPORT.
const (
	TransportTCP       = "tcp"
	TransportTCP6      = "tcp6"
	TransportWebsocket = "websocket"
)

var errSessionClosed = errors.New("telegram session closed before it was ready")

// TelegramAdapter delivers login codes through the Telegram MTProto API.
// Every Connect opens a fresh in-memory session; nothing is persisted.
type TelegramAdapter struct {
	maxRetries  int
	dialTimeout time.Duration
	transport   string
	logger      *zap.Logger
}

var _ service.Adapter = (*TelegramAdapter)(nil)

func NewTelegramAdapter(cfg config.TelegramConfig, logger *zap.Logger) *TelegramAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := strings.ToLower(strings.TrimSpace(cfg.Transport))
	switch transport {
	case TransportTCP, TransportTCP6, TransportWebsocket:
	default:
		logger.Warn("Unknown Telegram transport, using tcp", zap.String("transport", cfg.Transport))
		transport = TransportTCP
	}
	return &TelegramAdapter{
		maxRetries:  cfg.MaxRetries,
		dialTimeout: cfg.DialTimeout,
		transport:   transport,
		logger:      logger,
	}
}

// Transport returns the normalized transport name.
func (a *TelegramAdapter) Transport() string {
	return a.transport
}

func (a *TelegramAdapter) resolver() dcs.Resolver {
	switch a.transport {
	case TransportWebsocket:
		return dcs.Websocket(dcs.WebsocketOptions{})
	case TransportTCP6:
		return dcs.Plain(dcs.PlainOptions{PreferIPv6: true})
	default:
		return dcs.Plain(dcs.PlainOptions{})
	}
}

func (a *TelegramAdapter) options() telegram.Options {
	return telegram.Options{
		Logger:      a.logger.Named("mtproto"),
		Resolver:    a.resolver(),
		MaxRetries:  a.maxRetries,
		DialTimeout: a.dialTimeout,
		NoUpdates:   true,
	}
}

type telegramSession struct {
	client *telegram.Client
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// Connect starts a client and returns once the connection is usable. The
// session outlives ctx and stays open until Disconnect.
func (a *TelegramAdapter) Connect(ctx context.Context, creds config.Credentials) (service.Session, error) {
	client := telegram.NewClient(creds.APIID, creds.APIHash, a.options())

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	session := &telegramSession{
		client: client,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	ready := make(chan struct{})
	go func() {
		defer close(session.done)
		session.runErr = client.Run(runCtx, func(runCtx context.Context) error {
			close(ready)
			<-runCtx.Done()
			return runCtx.Err()
		})
	}()

	select {
	case <-ready:
		a.logger.Debug("Telegram session connected", zap.String("transport", a.transport))
		return session, nil
	case <-session.done:
		cancel()
		if session.runErr != nil {
			return nil, session.runErr
		}
		return nil, errSessionClosed
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
}

// SendCode requests a login code for phone and returns the phone code hash
// as the delivery reference.
func (a *TelegramAdapter) SendCode(ctx context.Context, s service.Session, creds config.Credentials, phone string) (*service.SentCode, error) {
	session, ok := s.(*telegramSession)
	if !ok || session == nil {
		return nil, fmt.Errorf("unexpected session type %T", s)
	}

	res, err := session.client.API().AuthSendCode(ctx, &tg.AuthSendCodeRequest{
		PhoneNumber: phone,
		APIID:       creds.APIID,
		APIHash:     creds.APIHash,
		Settings:    tg.CodeSettings{},
	})
	if err != nil {
		return nil, err
	}

	var sent tg.AuthSentCodeClass = res
	switch code := sent.(type) {
	case *tg.AuthSentCode:
		return &service.SentCode{DeliveryReference: code.PhoneCodeHash}, nil
	default:
		return nil, fmt.Errorf("unexpected sent code type %T", sent)
	}
}

// Disconnect stops the session and waits for the client to exit or ctx to end.
func (a *TelegramAdapter) Disconnect(ctx context.Context, s service.Session) error {
	session, ok := s.(*telegramSession)
	if !ok || session == nil {
		return fmt.Errorf("unexpected session type %T", s)
	}

	session.cancel()
	select {
	case <-session.done:
		a.logger.Debug("Telegram session closed")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telegram session did not stop: %w", ctx.Err())
	}
}
