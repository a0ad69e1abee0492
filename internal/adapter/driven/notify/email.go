package notify

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
)

func (d *Dispatcher) sendEmail(report model.Report, to []string) error {
	from := firstNonEmpty(d.cfg.SMTP.From, d.cfg.SMTP.Username)
	if from == "" {
		return errors.New("no sender address configured")
	}

	msg, err := buildEmail(from, to, report)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if d.cfg.SMTP.Username != "" {
		auth = smtp.PlainAuth("", d.cfg.SMTP.Username, d.cfg.SMTP.Password, d.cfg.SMTP.Host)
	}

	addr := net.JoinHostPort(d.cfg.SMTP.Host, strconv.Itoa(d.cfg.SMTP.Port))
	if err := d.sendMail(addr, auth, from, to, msg); err != nil {
		return fmt.Errorf("send via %s: %w", addr, err)
	}
	return nil
}

// buildEmail renders a multipart/alternative message carrying the report's
// Markdown as text and its sanitized HTML.
func buildEmail(from string, to []string, report model.Report) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", report.Markdown},
		{"text/html; charset=utf-8", report.HTML},
	}
	for _, p := range parts {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, fmt.Errorf("create %s part: %w", p.contentType, err)
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("write %s part: %w", p.contentType, err)
		}
		if err := qp.Close(); err != nil {
			return nil, fmt.Errorf("write %s part: %w", p.contentType, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	var msg bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&msg, "%s: %s\r\n", k, v) }
	header("From", from)
	header("To", strings.Join(to, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", report.Title()))
	header("Date", report.GeneratedAt.UTC().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())

	return msg.Bytes(), nil
}
