package email

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Sender delivers a single rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a rendered email
type Message struct {
	To      string
	Subject string
	HTML    string
}

// EmailConfig holds email provider configuration
type EmailConfig struct {
	Provider  string // resend, mailgun, relay or log
	APIKey    string
	Domain    string // mailgun sending domain
	FromEmail string
	FromName  string
	BaseURL   string // relay endpoint or mailgun API base
	Timeout   time.Duration
}

// NewSender builds the sender selected by cfg.Provider.
func NewSender(cfg *EmailConfig, logger *zap.Logger) (Sender, error) {
	switch cfg.Provider {
	case "resend":
		return NewResendSender(cfg)
	case "mailgun":
		return NewMailgunSender(cfg)
	case "relay":
		return NewRelaySender(cfg)
	case "", "log":
		return NewLogSender(logger), nil
	}
	return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
}

// Notifier renders KegTracker messages and hands them to a Sender in the
// background. Delivery failures are logged and never reach the caller.
type Notifier struct {
	sender      Sender
	frontendURL string
	timeout     time.Duration
	logger      *zap.Logger
}

func NewNotifier(sender Sender, frontendURL string, timeout time.Duration, logger *zap.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		sender:      sender,
		frontendURL: frontendURL,
		timeout:     timeout,
		logger:      logger,
	}
}

// InviteLink is the registration link embedded in invite emails.
func (n *Notifier) InviteLink(token string) string {
	return fmt.Sprintf("%s/register?token=%s", n.frontendURL, token)
}

func (n *Notifier) ResetLink(token string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", n.frontendURL, token)
}

func (n *Notifier) SendInvite(to, link string) {
	n.dispatch(Message{To: to, Subject: "KegTracker Registration", HTML: InviteEmailTemplate(link)})
}

func (n *Notifier) SendPasswordReset(to, link string) {
	n.dispatch(Message{To: to, Subject: "Reset your KegTracker password", HTML: PasswordResetEmailTemplate(to, link)})
}

func (n *Notifier) dispatch(msg Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := n.sender.Send(ctx, msg); err != nil {
			n.logger.Error("failed to send email",
				zap.String("to", msg.To),
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
			return
		}
		n.logger.Info("email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	}()
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email delivery disabled, message logged",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("html_bytes", len(msg.HTML)),
	)
	return nil
}
