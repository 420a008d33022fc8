// Package graph sends mail as the signed-in user through Microsoft Graph.
package graph

import (
	"encoding/base64"

	"github.com/shineum/skillkit/internal/email"
)

// sendMailRequest is the body of POST /me/sendMail.
type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

type sendMailMessage struct {
	Subject       string           `json:"subject"`
	Body          messageBody      `json:"body"`
	ToRecipients  []recipient      `json:"toRecipients"`
	CcRecipients  []recipient      `json:"ccRecipients,omitempty"`
	BccRecipients []recipient      `json:"bccRecipients,omitempty"`
	Attachments   []fileAttachment `json:"attachments,omitempty"`
}

type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type fileAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

func recipients(addrs []string) []recipient {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]recipient, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, recipient{EmailAddress: emailAddress{Address: addr}})
	}
	return out
}

// buildSendMailRequest converts msg to a sendMail body. HTML wins over text
// when both are present.
func buildSendMailRequest(msg *email.Email) *sendMailRequest {
	body := messageBody{ContentType: "Text", Content: msg.TextBody}
	if msg.HtmlBody != "" {
		body = messageBody{ContentType: "HTML", Content: msg.HtmlBody}
	}

	var attachments []fileAttachment
	for _, att := range msg.Attachments {
		attachments = append(attachments, fileAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         att.Filename,
			ContentType:  att.ContentType,
			ContentBytes: base64.StdEncoding.EncodeToString(att.Content),
		})
	}

	return &sendMailRequest{
		Message: sendMailMessage{
			Subject:       msg.Subject,
			Body:          body,
			ToRecipients:  recipients(msg.To),
			CcRecipients:  recipients(msg.Cc),
			BccRecipients: recipients(msg.Bcc),
			Attachments:   attachments,
		},
		SaveToSentItems: true,
	}
}
