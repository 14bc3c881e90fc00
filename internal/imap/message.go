package imap

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/mailindex/internal/model"
)

// ParseMessage turns one raw RFC 5322 message into a ParsedEmail.
// Malformed input returns an error; no partial email is ever produced.
// Missing sender and body fall back to sentinel values rather than
// propagating empty fields with no meaning.
func ParseMessage(raw []byte) (*model.ParsedEmail, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing message: %w", err)
	}
	defer mr.Close()

	parsed := &model.ParsedEmail{
		From: model.UnknownSender,
	}

	if subject, err := mr.Header.Subject(); err == nil {
		parsed.Subject = subject
	}
	if date, err := mr.Header.Date(); err == nil {
		parsed.Date = date
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		parsed.From = formatAddress(from[0])
	}
	if to, err := mr.Header.AddressList("To"); err == nil {
		for _, addr := range to {
			parsed.To = append(parsed.To, addr.Address)
		}
	}

	textBody, htmlBody := readBodies(mr)
	parsed.Body = textBody
	if parsed.Body == "" && htmlBody != "" {
		parsed.Body = stripHTML(htmlBody)
	}

	return parsed, nil
}

// readBodies walks the MIME parts and returns the first text/plain and
// text/html bodies found. Unreadable parts are skipped.
func readBodies(mr *mail.Reader) (textBody, htmlBody string) {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && textBody == "":
			textBody = string(body)
		case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
			htmlBody = string(body)
		}
	}

	return textBody, htmlBody
}

// formatAddress renders an address as its display name when present,
// otherwise the bare address.
func formatAddress(addr *mail.Address) string {
	if addr.Name != "" {
		return addr.Name
	}
	return addr.Address
}

// htmlTagPattern matches HTML tags for stripping.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTML removes HTML tags from a string and decodes common
// entities, providing a basic plain-text rendering.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := html
	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	result = replacer.Replace(result)

	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(result)
}
