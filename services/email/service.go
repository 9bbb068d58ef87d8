package emailsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core"
)

// Sender delivers one rendered message, making a single attempt.
type Sender interface {
	Send(ctx context.Context, msg core.EmailMessage) error
}

// service renders messages and hands them to its Sender, retrying failures with an exponential backoff.
type service struct {
	sender      Sender
	maxAttempts int
	baseDelay   time.Duration
	logger      core.Logger
	synchronous bool
}

var _ core.EmailService = (*service)(nil)

func NewService(sender Sender, conf *core.Config, logger core.Logger) core.EmailService {
	return newService(sender, conf, logger)
}

func newService(sender Sender, conf *core.Config, logger core.Logger) *service {
	maxAttempts := conf.Email.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &service{
		sender:      sender,
		maxAttempts: maxAttempts,
		baseDelay:   conf.Email.RetryBaseDelay,
		logger:      logger,
	}
}

func (svc *service) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		if svc.synchronous {
			svc.sendMessage(msg)
			continue
		}
		go svc.sendMessage(msg)
	}
}

func (svc *service) sendMessage(msg *core.EmailMessage) {
	if err := svc.Send(context.Background(), msg); err != nil {
		svc.logger.Error(fmt.Sprintf("sending email %q: %v", msg.Subject, err), err)
	}
}

// Send renders msg and delivers it, with up to maxAttempts attempts.
// Messages without recipients or content are silently dropped.
func (svc *service) Send(ctx context.Context, msg *core.EmailMessage) error {
	if err := msg.Render(); err != nil {
		return errors.Wrap(err, "rendering email")
	}
	if !msg.HasRecipients() || !(msg.HasContent() || msg.HasAttachments()) {
		return nil
	}

	var attempt int
	op := func() error {
		attempt++
		err := svc.sender.Send(ctx, *msg)
		if err != nil && attempt < svc.maxAttempts {
			svc.logger.Warn(fmt.Sprintf("sending email, attempt %d/%d: %v", attempt, svc.maxAttempts, err))
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(svc.backoff(), ctx))
}

func (svc *service) backoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = svc.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(svc.maxAttempts-1))
}
