package config

// MailConfig carries the SMTP settings used for password reset notifications.
type MailConfig struct {
    Host     string
    Port     int
    Username string
    Password string
    From     string
    TLS      string // mandatory, opportunistic or none
}

// LoadMailConfig reads SMTP_* and MAIL_FROM.  Without SMTP_HOST the mailer
// stays disabled and notifications are only logged.
func LoadMailConfig() MailConfig {
    return MailConfig{
        Host:     getenv("SMTP_HOST", ""),
        Port:     envInt("SMTP_PORT", 587),
        Username: getenv("SMTP_USERNAME", ""),
        Password: getenv("SMTP_PASSWORD", ""),
        From:     getenv("MAIL_FROM", "noreply@affiliates.local"),
        TLS:      getenv("SMTP_TLS", "mandatory"),
    }
}

// Enabled reports whether enough configuration exists to send email.
func (m MailConfig) Enabled() bool { return m.Host != "" }
