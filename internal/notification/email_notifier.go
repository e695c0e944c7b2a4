package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"sort"
	"strings"

	"github.com/railyard/railyard-api/internal/config"
	"github.com/railyard/railyard-api/internal/models"
	"github.com/rs/zerolog"
)

// EmailNotifier delivers notifications over plain SMTP. Email is the noisy
// channel, so severities below the configured floor are skipped.
type EmailNotifier struct {
	host        string
	port        int
	username    string
	password    string
	from        string
	recipients  []string
	minSeverity models.NotificationSeverity
	logger      zerolog.Logger
}

func NewEmailNotifier(cfg config.EmailConfig, logger zerolog.Logger) (*EmailNotifier, error) {
	recipients := sanitizeRecipients(cfg.Recipients)
	host := strings.TrimSpace(cfg.SMTPHost)
	from := strings.TrimSpace(cfg.From)
	if host == "" {
		return nil, fmt.Errorf("smtp_host is required for email notifier")
	}
	if from == "" {
		return nil, fmt.Errorf("from is required for email notifier")
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	floor := models.NotificationSeverity(strings.ToLower(strings.TrimSpace(cfg.MinSeverity)))
	if !models.IsValidSeverity(floor) {
		floor = models.NotificationSeverityWarning
	}

	return &EmailNotifier{
		host:        host,
		port:        port,
		username:    strings.TrimSpace(cfg.Username),
		password:    cfg.Password,
		from:        from,
		recipients:  recipients,
		minSeverity: floor,
		logger:      logger.With().Str("notifier", "email").Logger(),
	}, nil
}

func (n *EmailNotifier) Notify(_ context.Context, notif models.Notification) error {
	if len(n.recipients) == 0 {
		return nil
	}
	if !notif.Severity.AtLeast(n.minSeverity) {
		n.logger.Debug().
			Str("notification_id", notif.ID).
			Str("severity", string(notif.Severity)).
			Msg("severity below email floor, skipping")
		return nil
	}

	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password, n.host)
	}

	if err := smtp.SendMail(addr, auth, n.from, n.recipients, n.buildMessage(notif)); err != nil {
		return err
	}

	n.logger.Info().
		Str("notification_id", notif.ID).
		Str("event_type", string(notif.EventType)).
		Strs("recipients", n.recipients).
		Msg("email notification sent")
	return nil
}

// buildMessage renders the headers and a plain-text body. The severity is
// carried in the subject prefix; metadata is flattened into sorted key/value
// lines so job and execution ids are readable without unpacking JSON.
func (n *EmailNotifier) buildMessage(notif models.Notification) []byte {
	subject := strings.TrimSpace(notif.Title)
	if subject == "" {
		subject = "Notification"
	}
	switch notif.Severity {
	case models.NotificationSeverityError:
		subject = "[Railyard] ERROR: " + subject
	case models.NotificationSeverityWarning:
		subject = "[Railyard] WARNING: " + subject
	default:
		subject = "[Railyard] " + subject
	}

	var body strings.Builder
	body.WriteString(strings.TrimSpace(notif.Message))
	body.WriteString("\n\n")
	fmt.Fprintf(&body, "Event: %s\n", notif.EventType)
	fmt.Fprintf(&body, "Created: %s\n", notif.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	for _, line := range metadataLines(notif.Metadata) {
		body.WriteString(line)
		body.WriteString("\n")
	}

	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n",
		n.from, strings.Join(n.recipients, ","), subject)
	return []byte(headers + body.String())
}

func metadataLines(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return []string{fmt.Sprintf("Metadata: %s", string(raw))}
	}
	keys := make([]string, 0, len(meta))
	for key := range meta {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", key, meta[key]))
	}
	return lines
}

func (n *EmailNotifier) String() string {
	return "email"
}
