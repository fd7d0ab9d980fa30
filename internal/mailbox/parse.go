package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"
)

// extractBody pulls the display body out of a raw RFC 2822 message.
// Parts are walked in original order; the first inline text/plain part
// wins, the first inline text/html part is the fallback, and
// attachments are skipped.
func extractBody(raw []byte) (string, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parsing message: %w", err)
	}
	defer mr.Close()

	var plainBody, htmlBody string
	var readErr error

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := header.ContentType()
		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			if plainBody == "" {
				body, err := io.ReadAll(part.Body)
				if err != nil {
					readErr = fmt.Errorf("reading text/plain part: %w", err)
					continue
				}
				plainBody = string(body)
			}
		case strings.HasPrefix(contentType, "text/html"):
			if htmlBody == "" {
				body, err := io.ReadAll(part.Body)
				if err != nil {
					readErr = fmt.Errorf("reading text/html part: %w", err)
					continue
				}
				htmlBody = string(body)
			}
		}
	}

	if plainBody != "" {
		return plainBody, nil
	}
	if htmlBody != "" {
		return htmlBody, nil
	}
	// No part yielded a body; a failed read, if any, explains why.
	return "", readErr
}
