package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"feedharvest/pkg/config"
	"feedharvest/pkg/logger"
	"feedharvest/pkg/models"
)

// Notifier alerts the operator about conditions that need a human
type Notifier interface {
	// OnSessionInvalid reports that a platform's cookies were rejected and
	// must be refreshed
	OnSessionInvalid(ctx context.Context, platform models.Platform) error
}

// Dialer sends prepared messages; *gomail.Dialer implements it
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier sends alerts over SMTP
type EmailNotifier struct {
	from       string
	recipients []string
	dialer     Dialer
}

// NewEmailNotifier builds a notifier from the SMTP settings
func NewEmailNotifier(cfg config.NotificationConfig) (*EmailNotifier, error) {
	if cfg.SMTPHost == "" {
		return nil, errors.New("smtp host is required for email notifications")
	}
	if len(cfg.Recipients) == 0 {
		return nil, errors.New("at least one recipient is required for email notifications")
	}
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	return NewEmailNotifierWithDialer(cfg.From, cfg.Recipients, dialer), nil
}

// NewEmailNotifierWithDialer builds a notifier around an existing dialer
func NewEmailNotifierWithDialer(from string, recipients []string, dialer Dialer) *EmailNotifier {
	return &EmailNotifier{from: from, recipients: recipients, dialer: dialer}
}

func platformTitle(p models.Platform) string {
	s := string(p)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func sessionInvalidBody(platform models.Platform) string {
	return fmt.Sprintf(`<h2>%[1]s Cookies Expired</h2>
<p>Your %[1]s session cookies were rejected. Nothing new will be harvested from %[1]s until they are replaced.</p>
<p>Export fresh cookies from a logged-in browser and run <code>feedharvest cookies set %[2]s</code>.</p>`,
		platformTitle(platform), platform.Short())
}

// OnSessionInvalid implements Notifier
func (n *EmailNotifier) OnSessionInvalid(ctx context.Context, platform models.Platform) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	title := platformTitle(platform)
	msg := gomail.NewMessage()
	msg.SetHeader("From", n.from)
	msg.SetHeader("To", n.recipients...)
	msg.SetHeader("Subject", fmt.Sprintf("feedharvest: %s cookies expired", title))
	msg.SetBody("text/html", sessionInvalidBody(platform))

	if err := n.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send %s alert: %w", platform, err)
	}
	return nil
}

// LogNotifier writes alerts to the log
type LogNotifier struct {
	Logger logger.Logger
}

// OnSessionInvalid implements Notifier
func (n LogNotifier) OnSessionInvalid(ctx context.Context, platform models.Platform) error {
	n.Logger.WithField("platform", string(platform)).
		Error("Session cookies rejected; replace them with `feedharvest cookies set`")
	return nil
}

// Multi fans an alert out to every notifier, collecting their errors
type Multi []Notifier

// OnSessionInvalid implements Notifier
func (m Multi) OnSessionInvalid(ctx context.Context, platform models.Platform) error {
	var errs []error
	for _, n := range m {
		if err := n.OnSessionInvalid(ctx, platform); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig returns a log notifier, combined with email and desktop
// notifiers when they are enabled
func FromConfig(cfg config.NotificationConfig, log logger.Logger) (Notifier, error) {
	notifiers := Multi{LogNotifier{Logger: log}}
	if cfg.Enabled {
		email, err := NewEmailNotifier(cfg)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, email)
	}
	if cfg.Desktop {
		notifiers = append(notifiers, NewDesktopNotifier())
	}
	return notifiers, nil
}
