// Package email sends account and invitation mail over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"

	"gopkg.in/gomail.v2"
)

const appName = "Tablero"

var ErrNotConfigured = errors.New("email not configured")

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type Service struct {
	config Config
	dialer sender
}

func NewService(config Config) *Service {
	return &Service{
		config: config,
		dialer: gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
	}
}

// IsConfigured reports whether host, port and sender are all set.
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != 0 && s.config.From != ""
}

// SendHTMLEmail sends an HTML email with a plain-text alternative.
func (s *Service) SendHTMLEmail(to, subject, htmlBody, textBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.config.From, s.config.FromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)
	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

type VerificationData struct {
	AppName         string
	UserName        string
	VerificationURL string
}

type PasswordResetData struct {
	AppName  string
	UserName string
	ResetURL string
}

type InvitationData struct {
	AppName     string
	UserName    string
	InviterName string
	TargetKind  string
	TargetName  string
	TargetURL   string
}

func (s *Service) SendVerificationEmail(to, userName, verificationURL string) error {
	html, err := render(verificationPage, VerificationData{
		AppName:         appName,
		UserName:        userName,
		VerificationURL: verificationURL,
	})
	if err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}
	text := fmt.Sprintf("Hola %s, verifica tu cuenta en %s", userName, verificationURL)
	return s.SendHTMLEmail(to, "Verifica tu cuenta de "+appName, html, text)
}

func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	html, err := render(passwordResetPage, PasswordResetData{
		AppName:  appName,
		UserName: userName,
		ResetURL: resetURL,
	})
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	text := fmt.Sprintf("Hola %s, restablece tu contraseña en %s (válido por 1 hora)", userName, resetURL)
	return s.SendHTMLEmail(to, "Restablece tu contraseña de "+appName, html, text)
}

// SendInvitationEmail tells a user they were invited to a workspace or board.
func (s *Service) SendInvitationEmail(to string, data InvitationData) error {
	data.AppName = appName
	html, err := render(invitationPage, data)
	if err != nil {
		return fmt.Errorf("render invitation template: %w", err)
	}
	text := fmt.Sprintf("%s te invitó a %s %q: %s", data.InviterName, data.TargetKind, data.TargetName, data.TargetURL)
	return s.SendHTMLEmail(to, fmt.Sprintf("Invitación a %s %s", data.TargetKind, data.TargetName), html, text)
}

func render(page *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := page.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// newPage combines the shared layout with a page-specific title and body.
func newPage(title, body string) *template.Template {
	t := template.Must(template.New("layout").Parse(layoutHTML))
	template.Must(t.New("title").Parse(title))
	template.Must(t.New("body").Parse(body))
	return t
}

const layoutHTML = `<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="UTF-8">
<title>{{template "title" .}}</title>
<style>
body { margin: 0; background: #f4f5f7; font-family: Arial, Helvetica, sans-serif; color: #1f2933; }
.card { max-width: 560px; margin: 32px auto; background: #ffffff; border-radius: 8px; padding: 28px; }
.brand { font-size: 20px; font-weight: bold; color: #5b3cc4; margin-bottom: 18px; }
.cta { display: inline-block; background: #5b3cc4; color: #ffffff; padding: 10px 20px; border-radius: 6px; text-decoration: none; }
.url { font-size: 12px; color: #52606d; word-break: break-all; }
.note { font-size: 12px; color: #7b8794; margin-top: 24px; }
</style>
</head>
<body>
<div class="card">
<div class="brand">{{.AppName}}</div>
{{template "body" .}}
</div>
</body>
</html>`

var (
	verificationPage = newPage(`Verifica tu cuenta de {{.AppName}}`, `
<p>Bienvenido, {{.UserName}}.</p>
<p>Confirma tu correo electrónico para activar tu cuenta.</p>
<p><a class="cta" href="{{.VerificationURL}}">Verificar correo</a></p>
<p class="url">{{.VerificationURL}}</p>
<p class="note">El enlace expira en 24 horas. Si no creaste una cuenta, ignora este mensaje.</p>`)

	passwordResetPage = newPage(`Restablece tu contraseña de {{.AppName}}`, `
<p>Hola {{.UserName}},</p>
<p>Recibimos una solicitud para restablecer tu contraseña.</p>
<p><a class="cta" href="{{.ResetURL}}">Restablecer contraseña</a></p>
<p class="url">{{.ResetURL}}</p>
<p class="note">El enlace expira en 1 hora. Si no lo solicitaste, tu contraseña no cambiará.</p>`)

	invitationPage = newPage(`Invitación a {{.TargetName}}`, `
<p>Hola {{.UserName}},</p>
<p>{{.InviterName}} te invitó a colaborar en {{.TargetKind}} <strong>{{.TargetName}}</strong>.</p>
<p><a class="cta" href="{{.TargetURL}}">Abrir</a></p>
<p class="url">{{.TargetURL}}</p>`)
)
