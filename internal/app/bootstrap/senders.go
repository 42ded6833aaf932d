package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/karthik-ak-dev/pulse-ops/internal/config"
	"github.com/karthik-ak-dev/pulse-ops/internal/notify"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

// BuildWhatsAppSender picks the WhatsApp delivery path from configuration.
// It returns the sender, the provider name, and a reason when falling back
// to the log sender.
func BuildWhatsAppSender(cfg *appconfig.Config, logger *logging.Logger) (notify.WhatsAppSender, string, string) {
	if cfg == nil {
		return notify.NewLogSender(logger), "log", "missing config"
	}
	if !cfg.WhatsAppEnabled {
		return notify.NewLogSender(logger), "log", "whatsapp disabled"
	}

	sender := notify.NewCloudSender(notify.WhatsAppConfig{
		BaseURL:       cfg.WhatsAppBaseURL,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		AccessToken:   cfg.WhatsAppAccessToken,
	}, logger)
	if sender == nil {
		return notify.NewLogSender(logger), "log", "whatsapp credentials incomplete"
	}
	return sender, "whatsapp_cloud", ""
}

// BuildEmailSender picks the email provider: SES first, SendGrid as
// fallback, the stub when neither is configured.
func BuildEmailSender(awsCfg aws.Config, cfg *appconfig.Config, logger *logging.Logger) (notify.EmailSender, string, string) {
	if cfg == nil {
		return notify.NewStubEmailSender(logger), "stub", "missing config"
	}

	if cfg.SESFromEmail != "" {
		sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
		if sender != nil {
			return sender, "ses", ""
		}
	}

	if sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sender != nil {
		return sender, "sendgrid", ""
	}

	return notify.NewStubEmailSender(logger), "stub", "no email provider configured"
}
