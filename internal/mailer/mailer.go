// internal/mailer/mailer.go
package mailer

import (
    "context"

    "github.com/rs/zerolog"
)

// Attachment carries decoded, size-checked content ready for delivery.
type Attachment struct {
    Filename string
    MimeType string
    Data     []byte
}

type Message struct {
    To          string
    ToName      string
    Subject     string
    HTMLBody    string
    TextBody    string
    SenderEmail string
    SenderName  string
    ReplyTo     string
    Attachments []Attachment
}

// Sender delivers one message to one recipient. At-least-once semantics:
// any returned error means "this recipient failed", never "crash the batch".
type Sender interface {
    Send(ctx context.Context, msg *Message) error
}

// LogSender logs instead of delivering. Used in dev when no provider is
// configured.
type LogSender struct {
    Log zerolog.Logger
}

func (s *LogSender) Send(ctx context.Context, msg *Message) error {
    s.Log.Info().
        Str("to", msg.To).
        Str("subject", msg.Subject).
        Int("attachments", len(msg.Attachments)).
        Msg("log-only sender: email not delivered")
    return nil
}

var _ Sender = (*LogSender)(nil)
