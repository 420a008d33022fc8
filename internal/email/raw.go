package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"
)

// BuildRaw renders msg as an RFC 5322 message from sender. Messages with
// both bodies use multipart/alternative; attachments wrap the body in
// multipart/mixed.
func BuildRaw(sender string, msg *Email) ([]byte, error) {
	var buf bytes.Buffer

	if sender != "" {
		fmt.Fprintf(&buf, "From: %s\r\n", sender)
	}
	if len(msg.To) > 0 {
		fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	}
	if len(msg.Cc) > 0 {
		fmt.Fprintf(&buf, "Cc: %s\r\n", strings.Join(msg.Cc, ", "))
	}
	if len(msg.Bcc) > 0 {
		fmt.Fprintf(&buf, "Bcc: %s\r\n", strings.Join(msg.Bcc, ", "))
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", msg.Subject))
	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}
	fmt.Fprintf(&buf, "Date: %s\r\n", date.Format(time.RFC1123Z))
	if msg.MessageID != "" {
		fmt.Fprintf(&buf, "Message-ID: %s\r\n", msg.MessageID)
	}
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(msg.Attachments) == 0 {
		if err := writeBody(&buf, msg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mixed := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed.Boundary())

	var body bytes.Buffer
	if err := writeBody(&body, msg); err != nil {
		return nil, err
	}
	header, content := splitHeader(body.Bytes())
	part, err := mixed.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create body part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}

	for _, att := range msg.Attachments {
		attHeader := make(textproto.MIMEHeader)
		ct := att.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		attHeader.Set("Content-Type", ct)
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename}))

		part, err := mixed.CreatePart(attHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment part: %w", err)
		}
		if _, err := part.Write([]byte(encodeBase64Lines(att.Content))); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeBody writes the body headers, a blank line and the body. Text parts
// are quoted-printable so long or 8-bit lines survive 7-bit relays.
func writeBody(buf *bytes.Buffer, msg *Email) error {
	switch {
	case msg.TextBody != "" && msg.HtmlBody != "":
		alt := multipart.NewWriter(buf)
		fmt.Fprintf(buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", alt.Boundary())
		for _, p := range []struct{ ct, body string }{
			{"text/plain; charset=UTF-8", msg.TextBody},
			{"text/html; charset=UTF-8", msg.HtmlBody},
		} {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Type", p.ct)
			h.Set("Content-Transfer-Encoding", "quoted-printable")
			part, err := alt.CreatePart(h)
			if err != nil {
				return fmt.Errorf("failed to create body part: %w", err)
			}
			if err := writeQuoted(part, p.body); err != nil {
				return err
			}
		}
		return alt.Close()
	case msg.HtmlBody != "":
		buf.WriteString("Content-Type: text/html; charset=UTF-8\r\nContent-Transfer-Encoding: quoted-printable\r\n\r\n")
		return writeQuoted(buf, msg.HtmlBody)
	default:
		buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\nContent-Transfer-Encoding: quoted-printable\r\n\r\n")
		return writeQuoted(buf, msg.TextBody)
	}
}

func writeQuoted(w io.Writer, body string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := io.WriteString(qp, body); err != nil {
		return fmt.Errorf("failed to encode body: %w", err)
	}
	return qp.Close()
}

// splitHeader separates the header lines written by writeBody from the
// content that follows them.
func splitHeader(b []byte) (textproto.MIMEHeader, []byte) {
	h := make(textproto.MIMEHeader)
	head, rest, _ := bytes.Cut(b, []byte("\r\n\r\n"))
	for _, line := range strings.Split(string(head), "\r\n") {
		if name, value, ok := strings.Cut(line, ": "); ok {
			h.Set(name, value)
		}
	}
	return h, rest
}

// encodeBase64Lines encodes data as base64 wrapped at 76 characters per
// RFC 2045.
func encodeBase64Lines(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var lines []string
	for i := 0; i < len(encoded); i += 76 {
		end := min(i+76, len(encoded))
		lines = append(lines, encoded[i:end])
	}
	return strings.Join(lines, "\r\n")
}
