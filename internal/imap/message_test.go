package imap

import (
	"strings"
	"testing"

	"github.com/nhle/mailindex/internal/model"
)

func rawMessage(headers, body string) []byte {
	return []byte(strings.ReplaceAll(headers+"\n\n"+body, "\n", "\r\n"))
}

func TestParseMessagePlainText(t *testing.T) {
	raw := rawMessage(
		"From: Alice Example <alice@example.com>\n"+
			"To: bob@example.com\n"+
			"Subject: Quarterly Sync\n"+
			"Date: Mon, 02 Feb 2026 10:00:00 +0000\n"+
			"Content-Type: text/plain; charset=utf-8",
		"Let's book a call next week",
	)

	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}

	if parsed.Subject != "Quarterly Sync" {
		t.Errorf("Subject = %q, want %q", parsed.Subject, "Quarterly Sync")
	}
	if parsed.From != "Alice Example" {
		t.Errorf("From = %q, want %q", parsed.From, "Alice Example")
	}
	if len(parsed.To) != 1 || parsed.To[0] != "bob@example.com" {
		t.Errorf("To = %v, want [bob@example.com]", parsed.To)
	}
	if strings.TrimSpace(parsed.Body) != "Let's book a call next week" {
		t.Errorf("Body = %q", parsed.Body)
	}
	if parsed.Date.IsZero() {
		t.Error("Date should be set")
	}
}

func TestParseMessageMissingSenderDefaults(t *testing.T) {
	raw := rawMessage(
		"Subject: No sender here\n"+
			"Content-Type: text/plain; charset=utf-8",
		"body text",
	)

	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}

	if parsed.From != model.UnknownSender {
		t.Errorf("From = %q, want %q", parsed.From, model.UnknownSender)
	}
}

func TestParseMessageHTMLFallback(t *testing.T) {
	raw := rawMessage(
		"From: carol@example.com\n"+
			"Subject: HTML only\n"+
			"Content-Type: text/html; charset=utf-8",
		"<p>Hello <b>there</b></p><p>Second line</p>",
	)

	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}

	if !strings.Contains(parsed.Body, "Hello there") {
		t.Errorf("Body = %q, want stripped HTML text", parsed.Body)
	}
	if strings.Contains(parsed.Body, "<") {
		t.Errorf("Body = %q, should not contain tags", parsed.Body)
	}
}

func TestParseMessageMultipart(t *testing.T) {
	raw := rawMessage(
		"From: dave@example.com\n"+
			"Subject: Multipart\n"+
			"MIME-Version: 1.0\n"+
			"Content-Type: multipart/alternative; boundary=xyz",
		"--xyz\n"+
			"Content-Type: text/plain; charset=utf-8\n"+
			"\n"+
			"plain version\n"+
			"--xyz\n"+
			"Content-Type: text/html; charset=utf-8\n"+
			"\n"+
			"<p>html version</p>\n"+
			"--xyz--",
	)

	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}

	if strings.TrimSpace(parsed.Body) != "plain version" {
		t.Errorf("Body = %q, want plain part preferred", parsed.Body)
	}
}

func TestParseMessageMalformed(t *testing.T) {
	// A multipart header whose body cannot be read as such.
	raw := []byte("Content-Type: multipart/mixed; boundary\r\nbroken")

	if _, err := ParseMessage(raw); err == nil {
		t.Fatal("expected error for malformed message")
	}
}

func TestParseMessageEmptyBody(t *testing.T) {
	raw := rawMessage(
		"From: erin@example.com\n"+
			"Subject: Empty\n"+
			"Content-Type: text/plain; charset=utf-8",
		"",
	)

	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if strings.TrimSpace(parsed.Body) != "" {
		t.Errorf("Body = %q, want empty", parsed.Body)
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"tags", "<div>a</div><div>b</div>", "a\nb"},
		{"entities", "a &amp; b &lt;c&gt;", "a & b <c>"},
		{"collapse", "<p>a</p><p></p><p>b</p>", "a\n\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripHTML(tt.in); got != tt.want {
				t.Errorf("stripHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
