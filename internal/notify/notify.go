// Package notify delivers customer-facing shipment messages.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spinhouse/delivery/internal/delivery"
)

// Log writes messages to the service log instead of sending them.
type Log struct {
	logger *otelzap.Logger
}

// NewLog creates a Log notifier.
func NewLog(logger *otelzap.Logger) *Log {
	return &Log{logger: logger}
}

// Notify logs the message.
func (l *Log) Notify(ctx context.Context, phone, message string) error {
	l.logger.Ctx(ctx).Info("Customer notification",
		zap.String("phone", phone),
		zap.String("message", message),
	)
	return nil
}

// MessageAPI is the subset of the Twilio REST API used by WhatsApp.
type MessageAPI interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// WhatsAppConfig holds Twilio credentials and the sending number.
type WhatsAppConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

// WhatsApp sends messages through Twilio's WhatsApp channel.
type WhatsApp struct {
	api  MessageAPI
	from string
}

// NewWhatsApp creates a WhatsApp notifier backed by the Twilio REST client.
func NewWhatsApp(cfg WhatsAppConfig) (*WhatsApp, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		return nil, errors.New("notify: twilio account sid, auth token and sender are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return NewWhatsAppWithAPI(client.Api, cfg.From), nil
}

// NewWhatsAppWithAPI creates a WhatsApp notifier over a custom API, for tests.
func NewWhatsAppWithAPI(api MessageAPI, from string) *WhatsApp {
	return &WhatsApp{api: api, from: whatsappAddress(from)}
}

// Notify sends message to phone. The Twilio client does not take a
// context, so cancellation is only checked before sending.
func (w *WhatsApp) Notify(ctx context.Context, phone, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(whatsappAddress(phone))
	params.SetFrom(w.from)
	params.SetBody(message)

	if _, err := w.api.CreateMessage(params); err != nil {
		return fmt.Errorf("sending whatsapp message: %w", err)
	}
	return nil
}

func whatsappAddress(phone string) string {
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	return "whatsapp:" + phone
}

// Multi fans a message out to several notifiers concurrently.
type Multi []delivery.Notifier

// Notify sends through every notifier and returns their joined errors.
func (m Multi) Notify(ctx context.Context, phone, message string) error {
	errs := make([]error, len(m))
	var g errgroup.Group
	for i, n := range m {
		g.Go(func() error {
			errs[i] = n.Notify(ctx, phone, message)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

var (
	_ delivery.Notifier = (*Log)(nil)
	_ delivery.Notifier = (*WhatsApp)(nil)
	_ delivery.Notifier = Multi(nil)
)
