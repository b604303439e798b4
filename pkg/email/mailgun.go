package email

import (
	"context"
	"fmt"

	"github.com/mailgun/mailgun-go/v4"
)

// MailgunSender delivers mail through the Mailgun API.
type MailgunSender struct {
	mg   *mailgun.MailgunImpl
	from string
}

func NewMailgunSender(config *EmailConfig) (*MailgunSender, error) {
	if config.APIKey == "" || config.Domain == "" {
		return nil, fmt.Errorf("mailgun domain and API key are required")
	}
	if config.FromEmail == "" {
		return nil, fmt.Errorf("from email is required")
	}

	mg := mailgun.NewMailgun(config.Domain, config.APIKey)
	if config.BaseURL != "" {
		mg.SetAPIBase(config.BaseURL)
	}

	from := config.FromEmail
	if config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", config.FromName, config.FromEmail)
	}
	return &MailgunSender{mg: mg, from: from}, nil
}

func (s *MailgunSender) Send(ctx context.Context, msg Message) error {
	m := s.mg.NewMessage(s.from, msg.Subject, "", msg.To)
	m.SetHtml(msg.HTML)

	if _, _, err := s.mg.Send(ctx, m); err != nil {
		return fmt.Errorf("mailgun: %w", err)
	}
	return nil
}
