// Package mail はアカウント関連メールの送信を提供する。
package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"

	gomail "github.com/wneessen/go-mail"
)

// Mailer はテンプレートメールの送信先。
type Mailer interface {
	SendVerification(ctx context.Context, to, verifyURL string) error
	SendWelcome(ctx context.Context, to string) error
}

// compile-time interface check
var _ Mailer = (*SMTPMailer)(nil)
var _ Mailer = (*NopMailer)(nil)

var verificationTemplate = template.Must(template.New("verification").Parse(
	`Welcome to Feedsync!

Please confirm your e-mail address by opening the link below:

{{.VerifyURL}}

If you did not sign up, you can ignore this message.
`))

var welcomeTemplate = template.Must(template.New("welcome").Parse(
	`Welcome to Feedsync!

Your account is ready. Sign in and add your first feed to get started.
`))

// SMTPMailer はgo-mailを使用したSMTP送信実装。
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	logger   *slog.Logger
}

// NewSMTPMailer はSMTPMailerを生成する。
func NewSMTPMailer(host string, port int, username, password, from string, logger *slog.Logger) *SMTPMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPMailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		logger:   logger,
	}
}

// SendVerification は本人確認メールを送信する。
func (m *SMTPMailer) SendVerification(ctx context.Context, to, verifyURL string) error {
	var body bytes.Buffer
	if err := verificationTemplate.Execute(&body, map[string]string{"VerifyURL": verifyURL}); err != nil {
		return fmt.Errorf("確認メール本文の生成に失敗しました: %w", err)
	}
	return m.send(ctx, to, "Confirm your e-mail address", body.String())
}

// SendWelcome はウェルカムメールを送信する。
func (m *SMTPMailer) SendWelcome(ctx context.Context, to string) error {
	var body bytes.Buffer
	if err := welcomeTemplate.Execute(&body, nil); err != nil {
		return fmt.Errorf("ウェルカムメール本文の生成に失敗しました: %w", err)
	}
	return m.send(ctx, to, "Welcome to Feedsync", body.String())
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, body string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("送信元アドレスの設定に失敗しました: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("宛先アドレスの設定に失敗しました: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	opts := []gomail.Option{
		gomail.WithPort(m.port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if m.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.username),
			gomail.WithPassword(m.password),
		)
	}
	client, err := gomail.NewClient(m.host, opts...)
	if err != nil {
		return fmt.Errorf("SMTPクライアントの生成に失敗しました: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("メールの送信に失敗しました: %w", err)
	}
	m.logger.InfoContext(ctx, "mail sent", slog.String("to", to), slog.String("subject", subject))
	return nil
}

// NopMailer はSMTPが未設定の環境向けの実装。送信内容をログに残すだけで
// 常に成功する。
type NopMailer struct {
	logger *slog.Logger
}

// NewNopMailer はNopMailerを生成する。
func NewNopMailer(logger *slog.Logger) *NopMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &NopMailer{logger: logger}
}

func (m *NopMailer) SendVerification(ctx context.Context, to, verifyURL string) error {
	m.logger.InfoContext(ctx, "mail disabled, skipping verification mail",
		slog.String("to", to),
		slog.String("verify_url", verifyURL),
	)
	return nil
}

func (m *NopMailer) SendWelcome(ctx context.Context, to string) error {
	m.logger.InfoContext(ctx, "mail disabled, skipping welcome mail",
		slog.String("to", to),
	)
	return nil
}
