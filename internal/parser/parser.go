// Package parser decodes RFC 5322 messages, including MIME multipart bodies,
// into the shared mail model. The Gmail tool uses it to render messages
// fetched in raw format.
package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"github.com/shineum/skillkit/internal/email"
)

var headerDecoder = new(mime.WordDecoder)

// Parse decodes a raw message. Unrecognized MIME parts are skipped with a
// debug log; a malformed top-level Content-Type is read as plain text.
func Parse(raw []byte) (*email.Email, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	result := &email.Email{
		RawHeaders: make(map[string][]string, len(msg.Header)),
	}
	for key, values := range msg.Header {
		result.RawHeaders[key] = values
	}

	result.From = decodeHeader(msg.Header.Get("From"))
	result.Subject = decodeHeader(msg.Header.Get("Subject"))
	result.MessageID = msg.Header.Get("Message-Id")
	result.To = parseAddressList(msg.Header.Get("To"))
	result.Cc = parseAddressList(msg.Header.Get("Cc"))
	result.Bcc = parseAddressList(msg.Header.Get("Bcc"))
	if date, err := msg.Header.Date(); err == nil {
		result.Date = date
	}

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	encoding := msg.Header.Get("Content-Transfer-Encoding")

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		slog.Debug("unparseable content type, reading as plain text", "content_type", contentType, "error", err)
		body, err := decodeTransfer(encoding, msg.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read message body: %w", err)
		}
		result.TextBody = string(body)
		return result, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart message missing boundary")
		}
		if err := walkMultipart(msg.Body, boundary, result); err != nil {
			return nil, fmt.Errorf("failed to parse multipart message: %w", err)
		}
		return result, nil
	}

	body, err := decodeTransfer(encoding, msg.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}
	if mediaType == "text/html" {
		result.HtmlBody = string(body)
	} else {
		result.TextBody = string(body)
	}
	return result, nil
}

// walkMultipart collects the first text/plain and text/html bodies and every
// attachment, descending into nested multiparts.
func walkMultipart(body io.Reader, boundary string, result *email.Email) error {
	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		partType := part.Header.Get("Content-Type")
		if partType == "" {
			partType = "text/plain"
		}
		mediaType, params, err := mime.ParseMediaType(partType)
		if err != nil {
			slog.Debug("skipping part with bad content type", "content_type", partType, "error", err)
			continue
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			if nested := params["boundary"]; nested != "" {
				if err := walkMultipart(part, nested, result); err != nil {
					slog.Debug("failed to parse nested multipart", "error", err)
				}
			}
			continue
		}

		// multipart.Reader already strips quoted-printable.
		content, err := decodeTransfer(part.Header.Get("Content-Transfer-Encoding"), part)
		if err != nil {
			slog.Debug("failed to read part", "content_type", mediaType, "error", err)
			continue
		}

		disposition := part.Header.Get("Content-Disposition")
		filename := partFilename(part, params)
		isAttachment := strings.HasPrefix(disposition, "attachment") ||
			(filename != "" && mediaType != "text/plain" && mediaType != "text/html")

		switch {
		case isAttachment:
			if filename == "" {
				filename = fallbackName(mediaType)
			}
			result.Attachments = append(result.Attachments, email.Attachment{
				Filename:    filename,
				ContentType: mediaType,
				Content:     content,
			})
		case mediaType == "text/plain":
			if result.TextBody == "" {
				result.TextBody = string(content)
			}
		case mediaType == "text/html":
			if result.HtmlBody == "" {
				result.HtmlBody = string(content)
			}
		default:
			slog.Debug("skipping unrecognized part", "content_type", mediaType, "disposition", disposition)
		}
	}
}

// decodeTransfer reads r, undoing a base64 or quoted-printable
// Content-Transfer-Encoding.
func decodeTransfer(encoding string, r io.Reader) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		cleaned := strings.NewReplacer("\r", "", "\n", "", " ", "").Replace(string(raw))
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "="))
			if err != nil {
				return nil, fmt.Errorf("failed to decode base64 content: %w", err)
			}
		}
		return decoded, nil
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(r))
	default:
		return io.ReadAll(r)
	}
}

func partFilename(part *multipart.Part, params map[string]string) string {
	if fn := part.FileName(); fn != "" {
		return decodeHeader(fn)
	}
	return decodeHeader(params["name"])
}

func fallbackName(mediaType string) string {
	if _, sub, ok := strings.Cut(mediaType, "/"); ok && sub != "" {
		return "attachment." + sub
	}
	return "attachment"
}

func decodeHeader(v string) string {
	if v == "" {
		return ""
	}
	decoded, err := headerDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

// parseAddressList returns bare addresses from a header value, falling back
// to a comma split when the list is not RFC 5322 compliant.
func parseAddressList(raw string) []string {
	if raw == "" {
		return nil
	}

	addresses, err := mail.ParseAddressList(raw)
	if err != nil {
		var out []string
		for _, p := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}

	out := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		out = append(out, addr.Address)
	}
	return out
}
