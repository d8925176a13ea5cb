package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/Hara602/regmon/internal/config"
)

// SendMailFunc 与 smtp.SendMail 签名一致，测试中替换
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email 通过 SMTP 发送 HTML 邮件；服务器支持时 smtp.SendMail 会先 STARTTLS 再认证
type Email struct {
	cfg      config.EmailConfig
	sendMail SendMailFunc
}

func NewEmail(cfg config.EmailConfig) *Email {
	return &Email{cfg: cfg, sendMail: smtp.SendMail}
}

// WithSendMail 替换底层发送函数
func (e *Email) WithSendMail(fn SendMailFunc) *Email {
	e.sendMail = fn
	return e
}

func (e *Email) Name() string { return "email" }

func (e *Email) Notify(ctx context.Context, n Notification) (bool, error) {
	if !e.cfg.Enabled() {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	subject, body, err := e.render(n)
	if err != nil {
		return false, err
	}
	msg, err := buildMessage(e.cfg.User, e.cfg.Recipients, subject, body)
	if err != nil {
		return false, err
	}
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	auth := smtp.PlainAuth("", e.cfg.User, e.cfg.Password, e.cfg.Host)
	if err := e.sendMail(addr, auth, e.cfg.User, e.cfg.Recipients, msg); err != nil {
		return false, fmt.Errorf("smtp %s: %w", addr, err)
	}
	return true, nil
}

type emailView struct {
	Notification
	Error string
}

func (e *Email) render(n Notification) (subject string, body []byte, err error) {
	switch n.Kind {
	case KindUpdates:
		subject = fmt.Sprintf("📋 Regulatory standard updates (%d)", len(n.Updates))
	case KindError:
		subject = "🚨 Monitor run failed"
	case KindHeartbeat:
		subject = "✅ Weekly health report"
	default:
		return "", nil, fmt.Errorf("email: unknown notification kind %q", n.Kind)
	}
	var buf bytes.Buffer
	view := emailView{Notification: n, Error: Truncate(n.Error, e.cfg.MaxErrorLength)}
	if err := emailTemplate.ExecuteTemplate(&buf, string(n.Kind), view); err != nil {
		return "", nil, fmt.Errorf("email: render %s: %w", n.Kind, err)
	}
	return subject, buf.Bytes(), nil
}

func buildMessage(from string, to []string, subject string, html []byte) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write(html); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var emailTemplate = template.Must(template.New("email").Funcs(template.FuncMap{
	"upper": strings.ToUpper,
}).Parse(`
{{define "style"}}<style>
body { font-family: Arial, sans-serif; line-height: 1.6; }
.header { color: white; padding: 15px; border-radius: 5px; }
.item { border-left: 4px solid #2196F3; padding: 10px; margin: 10px 0; background: #f9f9f9; }
.old { color: #999; text-decoration: line-through; }
.new { color: #4CAF50; font-weight: bold; }
pre { background: #263238; color: #aed581; padding: 15px; border-radius: 5px; overflow-x: auto; }
.footer { margin-top: 20px; padding-top: 10px; border-top: 1px solid #ddd; color: #666; font-size: 12px; }
</style>{{end}}

{{define "updates"}}<html><head>{{template "style"}}</head><body>
<div class="header" style="background:#4CAF50"><h2>📋 Regulatory standard updates</h2></div>
<p>The following standards have changed:</p>
{{range .Updates}}<div class="item">
<strong>{{.Name}}</strong> ({{.StandardID}})<br>
<span class="old">Old: {{.OldVersion}}</span><br>
<span class="new">New: {{.NewVersion}}</span><br>
<small>Type: {{.Type}} · detected {{.DetectedAt}}</small>
</div>
{{end}}<div class="footer"><p>Detected at: {{.At}}</p></div>
</body></html>{{end}}

{{define "error"}}<html><head>{{template "style"}}</head><body>
<div class="header" style="background:#f44336"><h2>🚨 Monitor run failed</h2></div>
<p><strong>Error:</strong></p>
<pre>{{.Error}}</pre>
<p>Check the scheduler logs for details.</p>
<div class="footer"><p>Occurred at: {{.At}}</p></div>
</body></html>{{end}}

{{define "heartbeat"}}<html><head>{{template "style"}}</head><body>
<div class="header" style="background:#2196F3"><h2>✅ Weekly health report</h2></div>
<p>🟢 <strong>Monitor is running</strong></p>
<p>Standards checked: <strong>{{.StandardsChecked}}</strong></p>
<p>Status: <strong>{{upper .Status}}</strong></p>
{{with .Host}}<p>Runner: {{.String}}</p>{{end}}
<div class="footer"><p>Reported at: {{.At}}</p></div>
</body></html>{{end}}
`))
