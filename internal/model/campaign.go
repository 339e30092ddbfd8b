// internal/model/campaign.go
package model

import (
    "fmt"
    "regexp"
    "strings"
    "time"
)

type CampaignKind string

const (
    KindDirect    CampaignKind = "direct"
    KindScheduled CampaignKind = "scheduled"
    KindTest      CampaignKind = "test"
)

type CampaignStatus string

const (
    StatusPending CampaignStatus = "pending"
    StatusSent    CampaignStatus = "sent"
    StatusPartial CampaignStatus = "partial"
    StatusFailed  CampaignStatus = "failed"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

type Recipient struct {
    DisplayName string `json:"display_name"`
    Email       string `json:"email"`
}

// NewRecipient normalizes the address (trimmed, lowercased) and derives a
// display name from the local part when none is given.
func NewRecipient(displayName, email string) (Recipient, error) {
    email = strings.ToLower(strings.TrimSpace(email))
    if !emailPattern.MatchString(email) {
        return Recipient{}, fmt.Errorf("invalid email address: %q", email)
    }
    displayName = strings.TrimSpace(displayName)
    if displayName == "" {
        local := email[:strings.Index(email, "@")]
        local = strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(local)
        displayName = capitalizeWords(local)
    }
    return Recipient{DisplayName: displayName, Email: email}, nil
}

func capitalizeWords(s string) string {
    words := strings.Fields(s)
    for i, w := range words {
        words[i] = strings.ToUpper(w[:1]) + w[1:]
    }
    return strings.Join(words, " ")
}

// Attachment content is carried base64-encoded until the executor decodes
// and size-checks it.
type Attachment struct {
    Filename string `json:"filename"`
    MimeType string `json:"mime_type"`
    Content  string `json:"content"`
}

type RecipientError struct {
    Email   string `json:"email"`
    Message string `json:"error_message"`
}

type CampaignStats struct {
    SentCount   int              `json:"sent_count"`
    FailedCount int              `json:"failed_count"`
    Errors      []RecipientError `json:"errors,omitempty"`
}

type Campaign struct {
    ID          string         `json:"id"`
    Identity    string         `json:"identity"`
    Kind        CampaignKind   `json:"kind"`
    Name        string         `json:"name"`
    Subject     string         `json:"subject"`
    HTMLBody    string         `json:"html_body"`
    Recipients  []Recipient    `json:"recipients"`
    Attachments []Attachment   `json:"attachments,omitempty"`
    SendAt      *time.Time     `json:"send_at,omitempty"`
    CreatedAt   time.Time      `json:"created_at"`
    Status      CampaignStatus `json:"status"`
    SenderEmail string         `json:"sender_email"`
    SenderName  string         `json:"sender_name"`
    ReplyTo     string         `json:"reply_to,omitempty"`
    LastError   string         `json:"last_error,omitempty"`
    Stats       CampaignStats  `json:"stats"`
}
