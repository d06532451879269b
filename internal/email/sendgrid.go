package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const sendURL = "https://api.sendgrid.com/v3/mail/send"

type Client struct {
	apiKey      string
	fromEmail   string
	frontendURL string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(apiKey, fromEmail, frontendURL string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		fromEmail:   fromEmail,
		frontendURL: frontendURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type address struct {
	Email string `json:"email"`
}

type personalization struct {
	To []address `json:"to"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendgridMail struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

// SendVerificationEmail sends the email-verification link for a new signup.
func (c *Client) SendVerificationEmail(toEmail, verifyToken, firstName string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", c.frontendURL, verifyToken)
	subject := "Verify your SharedCart email"
	html := fmt.Sprintf(
		`<p>Hi %s,</p><p>Click the link below to verify your email address:</p><p><a href="%s">Verify email</a></p><p>This link expires in 24 hours.</p>`,
		firstName, link,
	)
	text := fmt.Sprintf("Hi %s,\n\nVerify your email address:\n\n%s\n\nThis link expires in 24 hours.", firstName, link)

	return c.send(toEmail, subject, html, text)
}

// SendPasswordResetEmail sends the password-reset link.
func (c *Client) SendPasswordResetEmail(toEmail, resetToken, firstName string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", c.frontendURL, resetToken)
	subject := "Reset your SharedCart password"
	html := fmt.Sprintf(
		`<p>Hi %s,</p><p>Click the link below to reset your password:</p><p><a href="%s">Reset password</a></p><p>This link expires in 1 hour. If you didn't request this, you can ignore this email.</p>`,
		firstName, link,
	)
	text := fmt.Sprintf("Hi %s,\n\nReset your password:\n\n%s\n\nThis link expires in 1 hour.", firstName, link)

	return c.send(toEmail, subject, html, text)
}

func (c *Client) send(toEmail, subject, htmlBody, textBody string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing API key")
	}

	payload := sendgridMail{
		Personalizations: []personalization{{To: []address{{Email: toEmail}}}},
		From:             address{Email: c.fromEmail},
		Subject:          subject,
		Content: []content{
			{Type: "text/plain", Value: textBody},
			{Type: "text/html", Value: htmlBody},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", sendURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid API error: status %d", resp.StatusCode)
	}

	return nil
}
