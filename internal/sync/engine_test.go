package sync

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nhle/mailindex/internal/classify"
	"github.com/nhle/mailindex/internal/imap"
	"github.com/nhle/mailindex/internal/model"
	"github.com/nhle/mailindex/internal/store"
	"github.com/nhle/mailindex/tests/testutil"
)

// bodyEmbedder embeds category labels as one-hot vectors and steers any
// body mentioning a call toward the meeting label.
type bodyEmbedder struct{}

func (bodyEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(model.Categories))
		matched := false
		for j, c := range model.Categories {
			if text == string(c) {
				vec[j] = 1
				matched = true
				break
			}
		}
		if !matched && strings.Contains(text, "call") {
			vec[1] = 0.9 // nearest to "Meeting Booked"
		}
		out[i] = vec
	}
	return out, nil
}

func testEngine(t *testing.T) (*Engine, *store.SQLiteStore) {
	t.Helper()
	s := testutil.NewTestStore(t)
	classifier := classify.New(bodyEmbedder{}, discardLogger())
	cfg := &model.AppConfig{Sync: testSyncConfig()}
	return NewEngine(cfg, s, classifier, discardLogger()), s
}

func testAccount() model.AccountConfig {
	return model.AccountConfig{
		Name:     "work",
		Username: "bob@example.com",
		Mailbox:  "INBOX",
	}
}

func rawTestMessage(headers, body string) []byte {
	return []byte(strings.ReplaceAll(headers+"\n\n"+body, "\n", "\r\n"))
}

func quarterlySync() []byte {
	return rawTestMessage(
		"From: Alice Example <alice@example.com>\n"+
			"To: bob@example.com\n"+
			"Subject: Quarterly Sync\n"+
			"Date: Mon, 02 Feb 2026 10:00:00 +0000\n"+
			"Content-Type: text/plain; charset=utf-8",
		"Let's book a call next week",
	)
}

func TestProcessMessageIndexesClassifiedEmail(t *testing.T) {
	e, s := testEngine(t)
	ctx := context.Background()
	account := testAccount()

	msg := imap.RawMessage{UID: 42, Raw: quarterlySync()}
	if err := e.processMessage(ctx, account, msg); err != nil {
		t.Fatalf("processMessage: %v", err)
	}

	id := model.DocumentID(account.Username, account.Mailbox, 42)
	doc, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if doc == nil {
		t.Fatal("message was not indexed")
	}

	if doc.Subject != "Quarterly Sync" {
		t.Errorf("Subject = %q, want %q", doc.Subject, "Quarterly Sync")
	}
	if doc.Category != model.CategoryMeetingBooked {
		t.Errorf("Category = %q, want %q", doc.Category, model.CategoryMeetingBooked)
	}
	if doc.Folder != "INBOX" {
		t.Errorf("Folder = %q, want INBOX", doc.Folder)
	}
	if doc.Account != account.Username {
		t.Errorf("Account = %q, want %q", doc.Account, account.Username)
	}

	docs, err := s.Search(ctx, store.SearchQuery{Text: "call"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != id {
		t.Errorf("Search(call) should return the indexed document, got %d results", len(docs))
	}
}

func TestProcessMessageIdempotent(t *testing.T) {
	e, s := testEngine(t)
	ctx := context.Background()
	account := testAccount()

	msg := imap.RawMessage{UID: 42, Raw: quarterlySync()}
	for i := 0; i < 2; i++ {
		if err := e.processMessage(ctx, account, msg); err != nil {
			t.Fatalf("processMessage run %d: %v", i+1, err)
		}
	}

	docs, err := s.Search(ctx, store.SearchQuery{Text: "quarterly"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("got %d documents after reprocessing, want 1", len(docs))
	}
}

func TestProcessMessageParseFailureWritesNothing(t *testing.T) {
	e, s := testEngine(t)
	ctx := context.Background()
	account := testAccount()

	msg := imap.RawMessage{UID: 7, Raw: []byte("Content-Type: multipart/mixed\r\nbroken")}
	if err := e.processMessage(ctx, account, msg); err == nil {
		t.Fatal("expected error for unparseable message")
	}

	doc, err := s.GetByID(ctx, model.DocumentID(account.Username, account.Mailbox, 7))
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if doc != nil {
		t.Errorf("partial document was indexed: %+v", doc)
	}
}

func TestProcessMessageDateFallback(t *testing.T) {
	e, s := testEngine(t)
	ctx := context.Background()
	account := testAccount()

	// No Date header; the server-reported internal date is used instead.
	internal := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw := rawTestMessage(
		"From: alice@example.com\n"+
			"Subject: Undated\n"+
			"Content-Type: text/plain; charset=utf-8",
		"body",
	)

	msg := imap.RawMessage{UID: 8, Raw: raw, Date: internal}
	if err := e.processMessage(ctx, account, msg); err != nil {
		t.Fatalf("processMessage: %v", err)
	}

	doc, err := s.GetByID(ctx, model.DocumentID(account.Username, account.Mailbox, 8))
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if doc == nil {
		t.Fatal("message was not indexed")
	}
	if doc.Date.Unix() != internal.Unix() {
		t.Errorf("Date = %v, want internal date %v", doc.Date, internal)
	}
}

func TestEngineStartStopIdempotent(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()

	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	e.Stop()
	e.Stop()

	if err := e.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	e.Stop()
}
