package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"scholira/internal/model"
)

const closingSoonWindow = 30 * 24 * time.Hour

// EmailConfig 邮件配置，Host、Port、From、To 均设置时才启用。
// Subject 可包含一个 %d，用于填入本次新增数量。
type EmailConfig struct {
	Host     string   `yaml:"host" json:"host"`
	Port     int      `yaml:"port" json:"port"`
	Username string   `yaml:"username" json:"username"`
	Password string   `yaml:"password" json:"password"`
	From     string   `yaml:"from" json:"from"`
	To       []string `yaml:"to" json:"to"`
	Subject  string   `yaml:"subject" json:"subject"`
}

// Enabled 判断邮件摘要是否已配置。
func (c EmailConfig) Enabled() bool {
	return c.Host != "" && c.Port > 0 && c.From != "" && len(c.To) > 0
}

// EmailMessage 为一封奖学金摘要：Text 为 Markdown 纯文本，HTML 由其渲染而来。
type EmailMessage struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
	Count   int
}

// EmailSender 抽象发送接口，便于测试替换。
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// SMTPClient 在单个 SMTP 会话内投递摘要，服务器支持时升级 STARTTLS。
type SMTPClient struct {
	host string
	addr string
	auth smtp.Auth
}

func NewSMTPClient(cfg EmailConfig) *SMTPClient {
	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPClient{host: cfg.Host, addr: net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)), auth: auth}
}

// Send 拨号受 ctx 约束，ctx 的截止时间同时作用于整个会话。
func (c *SMTPClient) Send(ctx context.Context, msg EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", c.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, c.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake %s: %w", c.addr, err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: c.host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if c.auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(c.auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}
	if err := client.Mail(msg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range msg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}
	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	data := buildEmailData(msg, uuid.NewString(), time.Now(), "<"+uuid.NewString()+"@scholira>")
	if _, err := wc.Write([]byte(data)); err != nil {
		wc.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return client.Quit()
}

// EmailNotifier 将新出现的奖学金按截止日期分组后发送摘要，已过期的条目不会发送。
type EmailNotifier struct {
	cfg    EmailConfig
	sender EmailSender
	now    func() time.Time
}

// NewEmailNotifier 创建 EmailNotifier。
func NewEmailNotifier(cfg EmailConfig, sender EmailSender) *EmailNotifier {
	if sender == nil {
		sender = NewSMTPClient(cfg)
	}
	if cfg.Subject == "" {
		cfg.Subject = "Scholira: %d new scholarships for you"
	}
	return &EmailNotifier{cfg: cfg, sender: sender, now: time.Now}
}

// Notify 发送摘要，过滤后为空时跳过。
func (n EmailNotifier) Notify(ctx context.Context, items []model.Scholarship) error {
	d := newDigest(items, n.now())
	if d.size() == 0 {
		return nil
	}

	text := d.markdown()
	html, err := renderHTML(text)
	if err != nil {
		return err
	}
	subject := n.cfg.Subject
	if strings.Contains(subject, "%d") {
		subject = fmt.Sprintf(subject, d.size())
	}
	return n.sender.Send(ctx, EmailMessage{
		From:    n.cfg.From,
		To:      n.cfg.To,
		Subject: subject,
		Text:    text,
		HTML:    html,
		Count:   d.size(),
	})
}

var deadlineLayouts = []string{"2006-01-02", "January 2, 2006", "Jan 2, 2006", "2 January 2006", "2006/01/02"}

// parseDeadline 截止日期为自由文本，仅识别常见日期格式，"Rolling" 等返回 false。
func parseDeadline(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type digestEntry struct {
	model.Scholarship
	due      time.Time
	daysLeft int
}

type digest struct {
	closingSoon []digestEntry
	later       []digestEntry
	open        []digestEntry
}

func newDigest(items []model.Scholarship, now time.Time) digest {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var d digest
	for _, s := range items {
		due, ok := parseDeadline(s.Deadline)
		if !ok {
			d.open = append(d.open, digestEntry{Scholarship: s})
			continue
		}
		if due.Before(today) {
			continue
		}
		e := digestEntry{Scholarship: s, due: due, daysLeft: int(due.Sub(today).Hours() / 24)}
		if due.Sub(today) <= closingSoonWindow {
			d.closingSoon = append(d.closingSoon, e)
		} else {
			d.later = append(d.later, e)
		}
	}
	byDue := func(es []digestEntry) {
		sort.SliceStable(es, func(i, j int) bool { return es[i].due.Before(es[j].due) })
	}
	byDue(d.closingSoon)
	byDue(d.later)
	return d
}

func (d digest) size() int {
	return len(d.closingSoon) + len(d.later) + len(d.open)
}

func (d digest) markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %d new scholarships match your profile\n", d.size())
	writeSection(&b, "Closing within 30 days", d.closingSoon)
	writeSection(&b, "Later deadlines", d.later)
	writeSection(&b, "Rolling or unspecified deadline", d.open)
	return b.String()
}

func writeSection(b *strings.Builder, title string, entries []digestEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n", title)
	for _, e := range entries {
		fmt.Fprintf(b, "- **%s** (%s)\n", e.Name, e.Provider)
		if e.Amount != "" {
			fmt.Fprintf(b, "  - Amount: %s\n", e.Amount)
		}
		if e.due.IsZero() {
			fmt.Fprintf(b, "  - Deadline: %s\n", e.Deadline)
		} else {
			fmt.Fprintf(b, "  - Deadline: %s (%d days left)\n", e.Deadline, e.daysLeft)
		}
		if e.Location != "" {
			fmt.Fprintf(b, "  - Location: %s\n", e.Location)
		}
		if len(e.Eligibility) > 0 {
			fmt.Fprintf(b, "  - Eligibility: %s\n", strings.Join(e.Eligibility, "; "))
		}
		if e.ApplicationURL != "" {
			fmt.Fprintf(b, "  - [Apply](%s)\n", e.ApplicationURL)
		}
	}
}

var md = goldmark.New()

func renderHTML(text string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return buf.String(), nil
}

// buildEmailData 组装 multipart/alternative 报文，纯文本在前、HTML 在后。
func buildEmailData(msg EmailMessage, boundary string, sent time.Time, messageID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", sent.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&b, "X-Scholira-Digest: %d\r\n", msg.Count)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	writePart(&b, boundary, "text/plain", msg.Text)
	if msg.HTML != "" {
		writePart(&b, boundary, "text/html", msg.HTML)
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.String()
}

func writePart(b *strings.Builder, boundary, contentType, body string) {
	fmt.Fprintf(b, "--%s\r\n", boundary)
	fmt.Fprintf(b, "Content-Type: %s; charset=utf-8\r\n\r\n", contentType)
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
}
