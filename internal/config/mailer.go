package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Mail transports.
const (
	TransportSMTP = "smtp"
	TransportSES  = "ses"
)

// MailerConfig holds the settings of the mail HTTP service.
type MailerConfig struct {
	Port       string `validate:"required,numeric"`
	Transport  string `validate:"oneof=smtp ses"`
	SMTPHost   string `validate:"required_if=Transport smtp"`
	SMTPPort   int    `validate:"gte=1,lte=65535"`
	SMTPUser   string `validate:"required_if=Transport smtp"`
	SMTPPass   string `validate:"required_if=Transport smtp"`
	MailFrom   string `validate:"required,email"`
	FromName   string
	AWSRegion  string `validate:"required_if=Transport ses"`
	AppBaseURL string `validate:"omitempty,url"`
	JWTSecret  string
	LogMode    string `validate:"oneof=dev prod"`
}

// LoadMailer loads .env and resolves the mailer configuration from the environment.
func LoadMailer(envFile string) (MailerConfig, error) {
	if err := LoadEnvFile(envFile); err != nil {
		return MailerConfig{}, err
	}
	return ResolveMailer(os.Getenv)
}

// ResolveMailer reads the mailer configuration through getenv and validates it.
func ResolveMailer(getenv func(string) string) (MailerConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	smtpUser := pick("", getenv, "SMTP_USER", "")
	port, err := strconv.Atoi(pick("", getenv, "SMTP_PORT", "587"))
	if err != nil {
		return MailerConfig{}, &ValidationError{Problems: []string{"SMTP_PORT must be a number"}}
	}
	cfg := MailerConfig{
		Port:       pick("", getenv, "PORT", "3001"),
		Transport:  pick("", getenv, "MAIL_TRANSPORT", TransportSMTP),
		SMTPHost:   pick("", getenv, "SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:   port,
		SMTPUser:   smtpUser,
		SMTPPass:   pick("", getenv, "SMTP_PASS", ""),
		MailFrom:   pick("", getenv, "MAIL_FROM", smtpUser),
		FromName:   pick("", getenv, "MAIL_FROM_NAME", "Lumi"),
		AWSRegion:  pick("", getenv, "AWS_REGION", ""),
		AppBaseURL: pick("", getenv, "APP_BASE_URL", "http://localhost:5173"),
		JWTSecret:  pick("", getenv, "SUPABASE_JWT_SECRET", ""),
		LogMode:    pick("", getenv, "LOG_MODE", "dev"),
	}
	if err := cfg.Validate(); err != nil {
		return MailerConfig{}, err
	}
	return cfg, nil
}

// Validate checks c and returns a *ValidationError describing every problem.
func (c MailerConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		verr.Problems = append(verr.Problems, describe(fe))
	}
	return verr
}
