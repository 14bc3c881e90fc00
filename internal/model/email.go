// Package model defines the domain types shared across the engine:
// configuration, parsed emails, category labels, and the indexed
// document shape.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Category is the label assigned to an email by the classifier.
type Category string

const (
	CategoryInterested    Category = "Interested"
	CategoryMeetingBooked Category = "Meeting Booked"
	CategoryNotInterested Category = "Not Interested"
	CategorySpam          Category = "Spam"
	CategoryOutOfOffice   Category = "Out of Office"

	// CategoryUnclassified marks emails the classifier could not label,
	// typically because the embedding service was unavailable.
	CategoryUnclassified Category = "Unclassified"
)

// Categories is the fixed, ordered label set the classifier scores
// against. Order matters: score ties resolve to the earliest label.
var Categories = []Category{
	CategoryInterested,
	CategoryMeetingBooked,
	CategoryNotInterested,
	CategorySpam,
	CategoryOutOfOffice,
}

// UnknownSender is recorded when a message carries no usable From
// header.
const UnknownSender = "Unknown Sender"

// ParsedEmail is the structured form of one raw message.
type ParsedEmail struct {
	Subject string
	From    string
	To      []string
	Date    time.Time
	Body    string
}

// EmailDocument is the indexed record persisted to the search store.
type EmailDocument struct {
	ID        string    `db:"id" json:"id"`
	Subject   string    `db:"subject" json:"subject"`
	From      string    `db:"sender" json:"from"`
	To        string    `db:"recipients" json:"to"`
	Date      time.Time `db:"date" json:"date"`
	Body      string    `db:"body" json:"body"`
	Folder    string    `db:"folder" json:"folder"`
	Account   string    `db:"account" json:"account"`
	Category  Category  `db:"category" json:"category"`
	IndexedAt time.Time `db:"indexed_at" json:"indexedAt"`
}

// DocumentID derives the deterministic index key for a message. The
// same account, folder, and UID always produce the same ID, so
// re-indexing after a reconnect overwrites rather than duplicates.
func DocumentID(account, folder string, uid uint32) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", account, folder, uid)))
	return hex.EncodeToString(sum[:])
}
