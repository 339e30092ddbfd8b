// internal/service/executor.go
package service

import (
    "context"
    "encoding/base64"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/rs/zerolog"

    appErrors "github.com/quillsend/quillsend-backend/internal/errors"
    "github.com/quillsend/quillsend-backend/internal/mailer"
    "github.com/quillsend/quillsend-backend/internal/metrics"
    "github.com/quillsend/quillsend-backend/internal/model"
    "github.com/quillsend/quillsend-backend/internal/plan"
    "github.com/quillsend/quillsend-backend/internal/queue"
    "github.com/quillsend/quillsend-backend/internal/repository"
)

const (
    defaultBatchSize   = 40
    defaultBatchDelay  = 1500 * time.Millisecond
    maxAttachmentBytes = 15 << 20 // decoded
)

type ExecutorInterface interface {
    ExecuteCampaign(ctx context.Context, c *model.Campaign) error
}

// CampaignExecutor turns a campaign into individual delivery attempts,
// batched to respect provider throughput. Delivery is best-effort per
// recipient: one failure never aborts the batch or the campaign. Quota
// for the full recipient list is reserved atomically before the first
// batch and the unused part refunded afterwards, so the net charge is
// the confirmed successes and two concurrent sends for one identity
// cannot both squeeze past the limit.
type CampaignExecutor struct {
    CampaignStore repository.CampaignStoreInterface
    Quota         repository.QuotaLedgerInterface
    History       repository.HistoryRecorderInterface
    Profiles      repository.ProfileRepositoryInterface
    Plans         *plan.Catalog
    Sender        mailer.Sender
    Events        queue.Publisher

    DefaultPlan string
    BatchSize   int
    BatchDelay  time.Duration
    Now         func() time.Time
    Sleep       func(time.Duration)
    Log         zerolog.Logger
}

func (e *CampaignExecutor) now() time.Time {
    if e.Now != nil {
        return e.Now()
    }
    return time.Now()
}

func (e *CampaignExecutor) sleep(d time.Duration) {
    if e.Sleep != nil {
        e.Sleep(d)
        return
    }
    time.Sleep(d)
}

func (e *CampaignExecutor) batchSize() int {
    if e.BatchSize > 0 {
        return e.BatchSize
    }
    return defaultBatchSize
}

func (e *CampaignExecutor) batchDelay() time.Duration {
    if e.BatchDelay > 0 {
        return e.BatchDelay
    }
    return defaultBatchDelay
}

func (e *CampaignExecutor) ExecuteCampaign(ctx context.Context, c *model.Campaign) error {
    profile, err := e.Profiles.Get(ctx, c.Identity)
    if err != nil {
        return e.abort(ctx, c, fmt.Errorf("loading profile: %w", err))
    }
    planID := e.DefaultPlan
    if profile != nil && profile.PlanID != "" {
        planID = profile.PlanID
    }
    p := e.Plans.PlanFor(planID)

    // reserve up front: quota may have moved since planning, and the
    // atomic check-and-charge keeps a concurrent send for the same
    // identity from also passing
    if err := e.Quota.Reserve(ctx, c.Identity, p, len(c.Recipients)); err != nil {
        var qe *appErrors.QuotaExceededError
        if errors.As(err, &qe) {
            metrics.QuotaRejections.WithLabelValues(string(qe.Limit)).Inc()
        }
        return e.abort(ctx, c, err)
    }

    attachments := e.decodeAttachments(c)
    now := e.now()

    var recipientErrors []model.RecipientError
    recipients := c.Recipients
    bs := e.batchSize()
    for start := 0; start < len(recipients); start += bs {
        end := min(start+bs, len(recipients))
        for _, r := range recipients[start:end] {
            msg := &mailer.Message{
                To:          r.Email,
                ToName:      r.DisplayName,
                Subject:     RenderTemplate(c.Subject, r, now),
                HTMLBody:    RenderTemplate(c.HTMLBody, r, now),
                SenderEmail: c.SenderEmail,
                SenderName:  c.SenderName,
                ReplyTo:     c.ReplyTo,
                Attachments: attachments,
            }
            if err := e.Sender.Send(ctx, msg); err != nil {
                recipientErrors = append(recipientErrors, model.RecipientError{Email: r.Email, Message: err.Error()})
                metrics.EmailsFailed.Inc()
                e.Log.Warn().Err(err).Str("campaign_id", c.ID).Str("recipient", r.Email).Msg("delivery failed")
                continue
            }
            metrics.EmailsSent.Inc()
        }
        // pause between batches, never after the last one
        if end < len(recipients) {
            e.sleep(e.batchDelay())
        }
    }

    sent := len(recipients) - len(recipientErrors)
    if unused := len(recipients) - sent; unused > 0 {
        // refund failed deliveries so only confirmed successes stay charged
        if err := e.Quota.ReleaseUnused(ctx, c.Identity, unused); err != nil {
            e.Log.Error().Err(err).Str("campaign_id", c.ID).Msg("failed to refund unused quota reservation")
        }
    }

    status := model.StatusSent
    details := ""
    if len(recipientErrors) > 0 {
        status = model.StatusPartial
        details = fmt.Sprintf("%d of %d deliveries failed", len(recipientErrors), len(recipients))
    }
    c.Status = status
    c.Stats = model.CampaignStats{SentCount: sent, FailedCount: len(recipientErrors), Errors: recipientErrors}

    e.record(ctx, c, string(status), details)
    metrics.CampaignsExecuted.WithLabelValues(string(status)).Inc()

    e.Log.Info().Str("campaign_id", c.ID).Str("identity", c.Identity).
        Int("sent", sent).Int("failed", len(recipientErrors)).
        Str("status", string(status)).Msg("campaign executed")

    // deleting the pending record is the first durable side effect after
    // the send completes; losing it would replay the campaign
    if c.Kind == model.KindScheduled {
        if err := e.CampaignStore.Delete(ctx, c.Identity, c.ID); err != nil {
            return fmt.Errorf("deleting executed campaign %s: %w", c.ID, err)
        }
    }
    return nil
}

// abort marks the campaign failed in place and leaves the record for
// operator inspection instead of deleting it.
func (e *CampaignExecutor) abort(ctx context.Context, c *model.Campaign, cause error) error {
    c.Status = model.StatusFailed
    c.LastError = cause.Error()
    if c.Kind == model.KindScheduled {
        if err := e.CampaignStore.Save(ctx, c); err != nil {
            e.Log.Error().Err(err).Str("campaign_id", c.ID).Msg("failed to mark campaign failed")
        }
    }
    e.record(ctx, c, string(model.StatusFailed), cause.Error())
    metrics.CampaignsExecuted.WithLabelValues(string(model.StatusFailed)).Inc()
    e.Log.Error().Err(cause).Str("campaign_id", c.ID).Msg("campaign aborted")
    return cause
}

// record appends the history entry and publishes the outcome event. Both
// are observability: failures are logged, never propagated.
func (e *CampaignExecutor) record(ctx context.Context, c *model.Campaign, status, details string) {
    entry := &model.HistoryEntry{
        Identity:       c.Identity,
        Timestamp:      e.now().UTC(),
        Type:           string(c.Kind),
        CampaignName:   c.Name,
        Subject:        c.Subject,
        RecipientCount: len(c.Recipients),
        EmailsPreview:  emailsPreview(c.Recipients),
        Status:         status,
        Details:        details,
    }
    if err := e.History.Append(ctx, entry); err != nil {
        e.Log.Warn().Err(err).Str("campaign_id", c.ID).Msg("failed to append history entry")
    }
    if e.Events != nil {
        ev := queue.CampaignEvent{
            CampaignID:  c.ID,
            Identity:    c.Identity,
            Kind:        string(c.Kind),
            Status:      status,
            SentCount:   c.Stats.SentCount,
            FailedCount: c.Stats.FailedCount,
            OccurredAt:  e.now().UTC(),
        }
        if err := e.Events.PublishOutcome(ctx, ev); err != nil {
            e.Log.Warn().Err(err).Str("campaign_id", c.ID).Msg("failed to publish outcome event")
        }
    }
}

// decodeAttachments validates and decodes attachments. A broken or
// oversized attachment is skipped, not fatal to the send.
func (e *CampaignExecutor) decodeAttachments(c *model.Campaign) []mailer.Attachment {
    if len(c.Attachments) == 0 {
        return nil
    }
    out := make([]mailer.Attachment, 0, len(c.Attachments))
    for _, att := range c.Attachments {
        data, err := base64.StdEncoding.DecodeString(att.Content)
        if err != nil {
            e.Log.Warn().Str("campaign_id", c.ID).Str("filename", att.Filename).Msg("skipping attachment with invalid base64 content")
            continue
        }
        if len(data) > maxAttachmentBytes {
            e.Log.Warn().Str("campaign_id", c.ID).Str("filename", att.Filename).
                Int("bytes", len(data)).Msg("skipping attachment over the size limit")
            continue
        }
        out = append(out, mailer.Attachment{Filename: att.Filename, MimeType: att.MimeType, Data: data})
    }
    return out
}

func emailsPreview(recipients []model.Recipient) string {
    emails := make([]string, 0, 3)
    for i, r := range recipients {
        if i == 3 {
            break
        }
        emails = append(emails, r.Email)
    }
    preview := strings.Join(emails, ", ")
    if len(recipients) > 3 {
        preview += fmt.Sprintf(" and %d more", len(recipients)-3)
    }
    return preview
}

var _ ExecutorInterface = (*CampaignExecutor)(nil)
