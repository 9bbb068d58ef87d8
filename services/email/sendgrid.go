package emailsvc

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/vilmosmisota/sportapp/core"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

type sendgridSender struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
}

var _ Sender = (*sendgridSender)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	return NewService(newSendgridSender(conf), conf, logger)
}

func newSendgridSender(conf *core.Config) *sendgridSender {
	return &sendgridSender{
		key:        conf.Email.SendgridAPIKey,
		from:       sgmail.NewEmail(conf.DefaultFromEmail.Name, conf.DefaultFromEmail.Address),
		subjPrefix: "[" + conf.AppName + "] ",
	}
}

func (s sendgridSender) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject

	for _, to := range msg.To {
		p.AddTos(getSGEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(getSGEmail(cc))
	}
	for _, bcc := range msg.Bcc {
		p.AddBCCs(getSGEmail(bcc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)

	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}

	for _, a := range msg.Attachments {
		m.AddAttachment(getSGAttachment(a))
	}
	return m
}

func getSGEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

func getSGAttachment(at core.Attachment) *sgmail.Attachment {
	return &sgmail.Attachment{
		Content:     at.Content.String(),
		Type:        at.ContentType,
		Filename:    at.Filename,
		Disposition: "attachment",
	}
}

// Send makes one request to the sendgrid API. Client errors other than 429 are not retried.
func (s sendgridSender) Send(ctx context.Context, msg core.EmailMessage) error {
	req := sendgrid.GetRequest(s.key, endpoint, host)
	req.Method = rest.Post
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return errors.Wrap(err, "calling sendgrid")
	}
	return checkStatus(res.StatusCode, res.Body)
}

func checkStatus(code int, body string) error {
	if code < http.StatusBadRequest {
		return nil
	}
	err := fmt.Errorf("sendgrid status: %d - body: %s", code, body)
	if code < http.StatusInternalServerError && code != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}
