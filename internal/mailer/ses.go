// internal/mailer/ses.go
package mailer

import (
    "bytes"
    "context"
    "encoding/base64"
    "fmt"
    "mime"

    "github.com/aws/aws-sdk-go-v2/aws"
    awsconfig "github.com/aws/aws-sdk-go-v2/config"
    "github.com/aws/aws-sdk-go-v2/service/ses"
    "github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESSender delivers through Amazon SES. Messages without attachments use
// the structured SendEmail API; attachments require a raw MIME message.
type SESSender struct {
    client *ses.Client
}

func NewSESSender(ctx context.Context, region string) (*SESSender, error) {
    cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
    if err != nil {
        return nil, err
    }
    return &SESSender{client: ses.NewFromConfig(cfg)}, nil
}

func (s *SESSender) Send(ctx context.Context, msg *Message) error {
    if len(msg.Attachments) == 0 {
        return s.sendSimple(ctx, msg)
    }
    return s.sendRaw(ctx, msg)
}

func (s *SESSender) sendSimple(ctx context.Context, msg *Message) error {
    input := &ses.SendEmailInput{
        Source: aws.String(formatAddress(msg.SenderName, msg.SenderEmail)),
        Destination: &types.Destination{
            ToAddresses: []string{msg.To},
        },
        Message: &types.Message{
            Subject: &types.Content{Data: aws.String(msg.Subject)},
            Body: &types.Body{
                Html: &types.Content{Data: aws.String(msg.HTMLBody)},
            },
        },
    }
    if msg.TextBody != "" {
        input.Message.Body.Text = &types.Content{Data: aws.String(msg.TextBody)}
    }
    if msg.ReplyTo != "" {
        input.ReplyToAddresses = []string{msg.ReplyTo}
    }
    _, err := s.client.SendEmail(ctx, input)
    return err
}

func (s *SESSender) sendRaw(ctx context.Context, msg *Message) error {
    raw, err := buildRawMessage(msg)
    if err != nil {
        return err
    }
    _, err = s.client.SendRawEmail(ctx, &ses.SendRawEmailInput{
        RawMessage:   &types.RawMessage{Data: raw},
        Source:       aws.String(msg.SenderEmail),
        Destinations: []string{msg.To},
    })
    return err
}

func formatAddress(name, email string) string {
    if name == "" {
        return email
    }
    return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), email)
}

// buildRawMessage assembles a multipart/mixed MIME message with the HTML
// body first and each attachment base64-encoded.
func buildRawMessage(msg *Message) ([]byte, error) {
    var buf bytes.Buffer
    const boundary = "quillsend-mixed-boundary"

    fmt.Fprintf(&buf, "From: %s\r\n", formatAddress(msg.SenderName, msg.SenderEmail))
    fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
    if msg.ReplyTo != "" {
        fmt.Fprintf(&buf, "Reply-To: %s\r\n", msg.ReplyTo)
    }
    fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
    buf.WriteString("MIME-Version: 1.0\r\n")
    fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)

    fmt.Fprintf(&buf, "--%s\r\n", boundary)
    buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
    buf.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
    writeBase64(&buf, []byte(msg.HTMLBody))

    for _, att := range msg.Attachments {
        mimeType := att.MimeType
        if mimeType == "" {
            mimeType = "application/octet-stream"
        }
        fmt.Fprintf(&buf, "--%s\r\n", boundary)
        fmt.Fprintf(&buf, "Content-Type: %s\r\n", mimeType)
        buf.WriteString("Content-Transfer-Encoding: base64\r\n")
        fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n\r\n", att.Filename)
        writeBase64(&buf, att.Data)
    }
    fmt.Fprintf(&buf, "--%s--\r\n", boundary)
    return buf.Bytes(), nil
}

func writeBase64(buf *bytes.Buffer, data []byte) {
    encoded := base64.StdEncoding.EncodeToString(data)
    for len(encoded) > 76 {
        buf.WriteString(encoded[:76])
        buf.WriteString("\r\n")
        encoded = encoded[76:]
    }
    buf.WriteString(encoded)
    buf.WriteString("\r\n")
}

var _ Sender = (*SESSender)(nil)
