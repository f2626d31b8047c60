package model

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// RecipientStatus represents the delivery outcome of a single addressee.
type RecipientStatus string

const (
	// RecipientStatusPending means the recipient has not been attempted yet.
	RecipientStatusPending RecipientStatus = "pending"
	// RecipientStatusSuccess means the transport accepted the message.
	RecipientStatusSuccess RecipientStatus = "success"
	// RecipientStatusFailed means rendering, composing or sending failed.
	RecipientStatusFailed RecipientStatus = "failed"
)

// AttachmentsVariable is the variable key that may carry per-recipient attachment ids.
const AttachmentsVariable = "__attachments__"

// Valid returns true if the RecipientStatus is known.
func (s RecipientStatus) Valid() bool {
	return s == RecipientStatusPending || s == RecipientStatusSuccess || s == RecipientStatusFailed
}

// Recipient is one addressee within a job.
type Recipient struct {
	ID        int64             `json:"id"                   db:"id"`
	JobID     string            `json:"job_id"               db:"job_id"`
	Position  int               `json:"position"             db:"position"`
	ToEmail   string            `json:"to_email"             db:"to_email"`
	Language  string            `json:"language"             db:"language"`
	Variables map[string]string `json:"variables"            db:"variables"`
	Status    RecipientStatus   `json:"status"               db:"status"`
	Error     *string           `json:"error,omitempty"      db:"error"`
	MessageID *string           `json:"message_id,omitempty" db:"message_id"`
	SentAt    *time.Time        `json:"sent_at,omitempty"    db:"sent_at"`
	CreatedAt time.Time         `json:"created_at"           db:"created_at"`
}

// NewRecipient is one row of an already-filtered recipient list.
type NewRecipient struct {
	ToEmail   string            `json:"to_email"`
	Language  string            `json:"language,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

// Validate checks the address and normalizes the language tag.
func (r *NewRecipient) Validate() error {
	r.ToEmail = strings.TrimSpace(r.ToEmail)
	if r.ToEmail == "" {
		return errors.New("to_email is required")
	}
	if _, err := mail.ParseAddress(r.ToEmail); err != nil {
		return fmt.Errorf("invalid to_email %q: %w", r.ToEmail, err)
	}
	r.Language = NormalizeLanguage(r.Language)
	return nil
}

// NormalizeLanguage lowercases and trims a language tag, defaulting to DefaultLanguage.
func NormalizeLanguage(lang string) string {
	v := strings.ToLower(strings.TrimSpace(lang))
	if v == "" {
		return DefaultLanguage
	}
	return v
}

// RecipientResult is the terminal outcome persisted for a recipient.
type RecipientResult struct {
	RecipientID int64
	Status      RecipientStatus
	Error       string
	MessageID   string
}

// Validate ensures the result moves the recipient to a terminal state.
func (r RecipientResult) Validate() error {
	switch r.Status {
	case RecipientStatusSuccess, RecipientStatusFailed:
		return nil
	case RecipientStatusPending:
		return errors.New("recipient result must be terminal")
	default:
		return fmt.Errorf("invalid recipient status: %q", r.Status)
	}
}
