package adapters

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/stockline/stockline_service/internal/domain/entities"
	"github.com/stockline/stockline_service/pkg/security"
)

const (
	defaultSendGridHost = "https://api.sendgrid.com"
	sendGridMailPath    = "/v3/mail/send"
)

// EmailServiceConfig holds email service configuration
type EmailServiceConfig struct {
	APIKey     string
	FromEmail  string
	FromName   string
	AdminEmail string
	Host       string
}

// EmailService sends operational e-mails through SendGrid
type EmailService struct {
	logger *zap.Logger
	config EmailServiceConfig
}

// NewEmailService creates a new email service
func NewEmailService(logger *zap.Logger, config EmailServiceConfig) *EmailService {
	if config.Host == "" {
		config.Host = defaultSendGridHost
	}
	return &EmailService{
		logger: logger,
		config: config,
	}
}

// Enabled reports whether an API key and a recipient are configured.
func (e *EmailService) Enabled() bool {
	return strings.TrimSpace(e.config.APIKey) != "" && strings.TrimSpace(e.config.AdminEmail) != ""
}

// SendTicketAlert notifies the admin inbox about a new ticket.
func (e *EmailService) SendTicketAlert(ctx context.Context, alert entities.TicketAlert) error {
	if !e.Enabled() {
		return nil
	}
	subject := fmt.Sprintf("New %s request %s", alert.Kind, alert.Reference)
	return e.sendEmail(ctx, e.config.AdminEmail, subject, buildAlertHTML(alert), buildAlertText(alert))
}

func (e *EmailService) sendEmail(ctx context.Context, to, subject, htmlContent, textContent string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	from := mail.NewEmail(e.config.FromName, e.config.FromEmail)
	message := mail.NewSingleEmail(from, subject, mail.NewEmail("", to), textContent, htmlContent)

	request := sendgrid.GetRequest(e.config.APIKey, sendGridMailPath, e.config.Host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(message)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		e.logger.Error("Failed to send email",
			zap.String("provider", "sendgrid"),
			zap.String("to", security.MaskEmail(to)),
			zap.String("subject", subject),
			zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		e.logger.Error("Email service returned error",
			zap.String("provider", "sendgrid"),
			zap.String("to", security.MaskEmail(to)),
			zap.Int("status_code", response.StatusCode),
			zap.String("response_body", response.Body))
		return fmt.Errorf("email service error: status %d, body: %s", response.StatusCode, response.Body)
	}

	e.logger.Info("Email sent successfully",
		zap.String("provider", "sendgrid"),
		zap.String("to", security.MaskEmail(to)),
		zap.String("subject", subject),
		zap.Int("status_code", response.StatusCode))
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func buildAlertText(alert entities.TicketAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A new %s request was submitted.\n\n", alert.Kind)
	fmt.Fprintf(&b, "Reference: %s\nAirtable record: %s\nCustomer: %s\n", alert.Reference, alert.RecordID, alert.Email)
	for _, key := range sortedKeys(alert.Summary) {
		fmt.Fprintf(&b, "%s: %s\n", key, alert.Summary[key])
	}
	return b.String()
}

func buildAlertHTML(alert entities.TicketAlert) string {
	var rows strings.Builder
	for _, key := range sortedKeys(alert.Summary) {
		fmt.Fprintf(&rows, "<tr><td><strong>%s</strong></td><td>%s</td></tr>",
			html.EscapeString(key), html.EscapeString(alert.Summary[key]))
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
<h2>New %s request</h2>
<p>Reference <strong>%s</strong>, Airtable record %s, customer %s.</p>
<table cellpadding="4">%s</table>
</body>
</html>`,
		html.EscapeString(alert.Kind),
		html.EscapeString(alert.Reference),
		html.EscapeString(alert.RecordID),
		html.EscapeString(alert.Email),
		rows.String())
}
