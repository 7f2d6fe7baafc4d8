package mail

import (
	"bytes"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"
)

var (
	resetText = texttemplate.Must(texttemplate.New("reset").Parse(`Hello {{.Nickname}},

You requested to reset your password. Please use the link below to set a new password:

{{.URL}}

This link will expire in {{.Minutes}} minutes.

If you didn't request this, please ignore this email.
`))

	resetHTML = htmltemplate.Must(htmltemplate.New("reset").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <h2>Password Reset Request</h2>
  <p>Hello <strong>{{.Nickname}}</strong>,</p>
  <p>You requested to reset your password. Click the link below to set a new password:</p>
  <p><a href="{{.URL}}">Reset Password</a></p>
  <p>Or copy this link into your browser:<br>{{.URL}}</p>
  <p><strong>This link will expire in {{.Minutes}} minutes.</strong></p>
  <p>If you didn't request this, please ignore this email.</p>
</body>
</html>
`))

	verifyText = texttemplate.Must(texttemplate.New("verify").Parse(`Hello {{.Nickname}},

Please verify your email address by clicking the link below:

{{.URL}}

If you didn't create an account, please ignore this email.
`))

	verifyHTML = htmltemplate.Must(htmltemplate.New("verify").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <h2>Verify Your Email Address</h2>
  <p>Hello <strong>{{.Nickname}}</strong>,</p>
  <p>Please verify your email address by clicking the link below:</p>
  <p><a href="{{.URL}}">Verify Email</a></p>
  <p>If you didn't create an account, please ignore this email.</p>
</body>
</html>
`))
)

type templateData struct {
	Nickname string
	URL      string
	Minutes  int
}

// ResetURL builds <origin>/reset-password?token=<token>.
func ResetURL(origin, token string) string {
	return strings.TrimRight(origin, "/") + "/reset-password?token=" + url.QueryEscape(token)
}

// PasswordResetMessage renders the reset email. expiry is rounded to whole
// minutes.
func PasswordResetMessage(to, nickname, resetURL string, expiry time.Duration) (Message, error) {
	data := templateData{Nickname: nickname, URL: resetURL, Minutes: int(expiry.Round(time.Minute) / time.Minute)}
	return render(to, "Password Reset Request", resetText, resetHTML, data)
}

func EmailVerificationMessage(to, nickname, verifyURL string) (Message, error) {
	data := templateData{Nickname: nickname, URL: verifyURL}
	return render(to, "Verify Your Email Address", verifyText, verifyHTML, data)
}

func render(to, subject string, text *texttemplate.Template, html *htmltemplate.Template, data templateData) (Message, error) {
	var tb, hb bytes.Buffer
	if err := text.Execute(&tb, data); err != nil {
		return Message{}, err
	}
	if err := html.Execute(&hb, data); err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: subject, Text: tb.String(), HTML: hb.String()}, nil
}
