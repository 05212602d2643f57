package services

import (
	"fmt"
	"log"

	"github.com/resend/resend-go/v2"
)

type EmailService struct {
	Client *resend.Client
	From   string
}

func NewEmailService(apiKey, fromEmail string) *EmailService {
	log.Printf("📧 Email Service Initialized (Resend)")
	log.Printf("   - From Email: %s", fromEmail)
	log.Printf("   - API Key: %s", maskAPIKey(apiKey))

	if apiKey == "" {
		log.Printf("⚠️  WARNING: RESEND_API_KEY is empty!")
	}
	if fromEmail == "" {
		log.Printf("⚠️  WARNING: FROM_EMAIL is empty!")
		fromEmail = "onboarding@resend.dev" // Resend's default test email
	}

	return &EmailService{
		Client: resend.NewClient(apiKey),
		From:   fromEmail,
	}
}

// Helper function to mask API key for logging
func maskAPIKey(key string) string {
	if len(key) == 0 {
		return "❌ EMPTY"
	}
	if len(key) < 8 {
		return "***"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// SendEscrowEmail sends a short escrow event email via Resend.
func (es *EmailService) SendEscrowEmail(to, subject, heading, body string) error {
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .footer { margin-top: 30px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <h2>%s</h2>
        <p>%s</p>
        <div class="footer">
            <p>This is an automated message, please do not reply.</p>
        </div>
    </div>
</body>
</html>
    `, heading, body)

	params := &resend.SendEmailRequest{
		From:    es.From,
		To:      []string{to},
		Subject: subject,
		Html:    htmlBody,
	}

	sent, err := es.Client.Emails.Send(params)
	if err != nil {
		log.Printf("❌ Resend API Error: %v", err)
		return fmt.Errorf("failed to send email: %v", err)
	}

	log.Printf("✅ Email sent successfully to: %s (ID: %s)", to, sent.Id)
	return nil
}
