// internal/service/campaign_service.go
package service

import (
    "context"
    "fmt"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog"

    "github.com/quillsend/quillsend-backend/internal/config"
    appErrors "github.com/quillsend/quillsend-backend/internal/errors"
    "github.com/quillsend/quillsend-backend/internal/model"
    "github.com/quillsend/quillsend-backend/internal/plan"
    "github.com/quillsend/quillsend-backend/internal/repository"
)

// scheduleLimitWindow is how far ahead the "limited" tier may schedule.
const scheduleLimitWindow = 48 * time.Hour

// TriggerInterface is the recurring sweep registration the planner must
// keep alive. Implemented by Scheduler.
type TriggerInterface interface {
    EnsureRecurringTrigger() error
}

// CampaignService is the public planning entry: it validates input,
// checks tier permissions and quota availability without consuming it,
// persists pending campaigns and keeps the sweep trigger registered.
type CampaignService struct {
    CampaignStore repository.CampaignStoreInterface
    Quota         repository.QuotaLedgerInterface
    Profiles      repository.ProfileRepositoryInterface
    Plans         *plan.Catalog
    Trigger       TriggerInterface
    Executor      ExecutorInterface
    Defaults      config.SenderDefaults
    DefaultPlan   string
    Now           func() time.Time
    Log           zerolog.Logger
}

type RecipientInput struct {
    DisplayName string `json:"display_name"`
    Email       string `json:"email"`
}

// CampaignRequest covers both direct and scheduled sends; SendAt is only
// required (and only read) when scheduling.
type CampaignRequest struct {
    Name        string             `json:"name"`
    Subject     string             `json:"subject"`
    HTMLBody    string             `json:"html_body"`
    SendAt      string             `json:"send_at,omitempty"`
    Recipients  []RecipientInput   `json:"recipients"`
    Attachments []model.Attachment `json:"attachments,omitempty"`
}

type ScheduleResult struct {
    ID          string `json:"id"`
    ScheduledAt string `json:"scheduled_at"`
}

type CampaignSummary struct {
    ID             string               `json:"id"`
    Name           string               `json:"name"`
    Subject        string               `json:"subject"`
    RecipientCount int                  `json:"recipient_count"`
    SendAt         time.Time            `json:"send_at"`
    ScheduledAt    string               `json:"scheduled_at"`
    Status         model.CampaignStatus `json:"status"`
}

func (s *CampaignService) now() time.Time {
    if s.Now != nil {
        return s.Now()
    }
    return time.Now()
}

// validateContent checks the shared required fields and normalizes the
// recipient list.
func (s *CampaignService) validateContent(req CampaignRequest) ([]model.Recipient, error) {
    if len(req.Recipients) == 0 {
        return nil, appErrors.NewValidation("recipients", "at least one recipient is required")
    }
    if strings.TrimSpace(req.Subject) == "" {
        return nil, appErrors.NewValidation("subject", "subject is required")
    }
    if strings.TrimSpace(req.HTMLBody) == "" {
        return nil, appErrors.NewValidation("html_body", "body is required")
    }
    recipients := make([]model.Recipient, 0, len(req.Recipients))
    for _, in := range req.Recipients {
        r, err := model.NewRecipient(in.DisplayName, in.Email)
        if err != nil {
            return nil, appErrors.NewValidation("recipients", err.Error())
        }
        recipients = append(recipients, r)
    }
    return recipients, nil
}

// resolveSender returns the plan and sending identity for the tenant,
// falling back to the system defaults when no profile is registered.
func (s *CampaignService) resolveSender(ctx context.Context, identity string) (model.Plan, string, string, string, error) {
    profile, err := s.Profiles.Get(ctx, identity)
    if err != nil {
        return model.Plan{}, "", "", "", fmt.Errorf("loading profile for %s: %w", identity, err)
    }
    planID := s.DefaultPlan
    email, name, replyTo := s.Defaults.Email, s.Defaults.Name, s.Defaults.ReplyTo
    if profile != nil {
        if profile.PlanID != "" {
            planID = profile.PlanID
        }
        if profile.SenderEmail != "" {
            email = profile.SenderEmail
        }
        if profile.SenderName != "" {
            name = profile.SenderName
        }
        if profile.ReplyTo != "" {
            replyTo = profile.ReplyTo
        }
    }
    return s.Plans.PlanFor(planID), email, name, replyTo, nil
}

func (s *CampaignService) buildCampaign(identity string, kind model.CampaignKind, req CampaignRequest,
    recipients []model.Recipient, senderEmail, senderName, replyTo string) *model.Campaign {

    name := strings.TrimSpace(req.Name)
    if name == "" {
        name = req.Subject
    }
    return &model.Campaign{
        ID:          uuid.NewString(),
        Identity:    identity,
        Kind:        kind,
        Name:        name,
        Subject:     req.Subject,
        HTMLBody:    req.HTMLBody,
        Recipients:  recipients,
        Attachments: req.Attachments,
        CreatedAt:   s.now().UTC(),
        Status:      model.StatusPending,
        SenderEmail: senderEmail,
        SenderName:  senderName,
        ReplyTo:     replyTo,
    }
}

// ScheduleCampaign validates, verifies (without consuming) quota, persists
// the pending campaign and makes sure the sweep trigger is registered.
func (s *CampaignService) ScheduleCampaign(ctx context.Context, identity string, req CampaignRequest) (*ScheduleResult, error) {
    recipients, err := s.validateContent(req)
    if err != nil {
        return nil, err
    }
    if strings.TrimSpace(req.SendAt) == "" {
        return nil, appErrors.NewValidation("send_at", "send time is required")
    }
    sendAt, err := time.Parse(time.RFC3339, req.SendAt)
    if err != nil {
        return nil, appErrors.NewValidation("send_at", "must be a valid RFC3339 timestamp")
    }
    now := s.now()
    if !sendAt.After(now) {
        return nil, appErrors.NewValidation("send_at", "must be in the future")
    }

    p, senderEmail, senderName, replyTo, err := s.resolveSender(ctx, identity)
    if err != nil {
        return nil, err
    }
    if p.ScheduleSend == model.ScheduleDisabled {
        return nil, appErrors.NewPlanRestriction(p.ID, "scheduled sending is not available on this plan")
    }
    if p.ScheduleSend == model.ScheduleLimited && sendAt.After(now.Add(scheduleLimitWindow)) {
        return nil, appErrors.NewPlanRestriction(p.ID, "scheduling is limited to 48 hours ahead on this plan")
    }
    if len(req.Attachments) > 0 && !p.AllowAttachments {
        return nil, appErrors.NewPlanRestriction(p.ID, "attachments are not available on this plan")
    }

    // verified only; consumption happens after confirmed sends
    if err := s.Quota.CheckAvailable(ctx, identity, p, len(recipients)); err != nil {
        return nil, err
    }

    c := s.buildCampaign(identity, model.KindScheduled, req, recipients, senderEmail, senderName, replyTo)
    utc := sendAt.UTC()
    c.SendAt = &utc

    if err := s.CampaignStore.Save(ctx, c); err != nil {
        return nil, err
    }
    if err := s.Trigger.EnsureRecurringTrigger(); err != nil {
        // the campaign is persisted; the next process start re-registers
        s.Log.Error().Err(err).Msg("failed to ensure sweep trigger")
    }

    s.Log.Info().Str("campaign_id", c.ID).Str("identity", identity).
        Time("send_at", utc).Int("recipients", len(recipients)).
        Msg("campaign scheduled")

    return &ScheduleResult{ID: c.ID, ScheduledAt: sendAt.Format(userDateFormat)}, nil
}

// SendCampaign executes a direct campaign immediately through the same
// executor path as the sweep (batching, quota, history).
func (s *CampaignService) SendCampaign(ctx context.Context, identity string, req CampaignRequest) (*model.Campaign, error) {
    recipients, err := s.validateContent(req)
    if err != nil {
        return nil, err
    }
    p, senderEmail, senderName, replyTo, err := s.resolveSender(ctx, identity)
    if err != nil {
        return nil, err
    }
    if len(req.Attachments) > 0 && !p.AllowAttachments {
        return nil, appErrors.NewPlanRestriction(p.ID, "attachments are not available on this plan")
    }
    if err := s.Quota.CheckAvailable(ctx, identity, p, len(recipients)); err != nil {
        return nil, err
    }

    c := s.buildCampaign(identity, model.KindDirect, req, recipients, senderEmail, senderName, replyTo)
    if err := s.Executor.ExecuteCampaign(ctx, c); err != nil {
        return c, err
    }
    return c, nil
}

// SendTestCampaign delivers a single rendered email to the identity
// itself. Test entries are purgeable from history.
func (s *CampaignService) SendTestCampaign(ctx context.Context, identity, subject, htmlBody string) (*model.Campaign, error) {
    req := CampaignRequest{
        Name:       "Test: " + subject,
        Subject:    subject,
        HTMLBody:   htmlBody,
        Recipients: []RecipientInput{{Email: identity}},
    }
    recipients, err := s.validateContent(req)
    if err != nil {
        return nil, err
    }
    _, senderEmail, senderName, replyTo, err := s.resolveSender(ctx, identity)
    if err != nil {
        return nil, err
    }
    c := s.buildCampaign(identity, model.KindTest, req, recipients, senderEmail, senderName, replyTo)
    if err := s.Executor.ExecuteCampaign(ctx, c); err != nil {
        return c, err
    }
    return c, nil
}

// ListPending returns the identity's pending campaigns sorted by send
// time ascending.
func (s *CampaignService) ListPending(ctx context.Context, identity string) ([]CampaignSummary, error) {
    pending, err := s.CampaignStore.ListPending(ctx, identity)
    if err != nil {
        return nil, err
    }
    summaries := make([]CampaignSummary, 0, len(pending))
    for _, c := range pending {
        sum := CampaignSummary{
            ID:             c.ID,
            Name:           c.Name,
            Subject:        c.Subject,
            RecipientCount: len(c.Recipients),
            Status:         c.Status,
        }
        if c.SendAt != nil {
            sum.SendAt = *c.SendAt
            sum.ScheduledAt = c.SendAt.Format(userDateFormat)
        }
        summaries = append(summaries, sum)
    }
    return summaries, nil
}

// Reschedule moves a pending campaign to a new future send time.
func (s *CampaignService) Reschedule(ctx context.Context, identity, id, newSendAt string) (*ScheduleResult, error) {
    sendAt, err := time.Parse(time.RFC3339, newSendAt)
    if err != nil {
        return nil, appErrors.NewValidation("send_at", "must be a valid RFC3339 timestamp")
    }
    if !sendAt.After(s.now()) {
        return nil, appErrors.NewValidation("send_at", "must be in the future")
    }
    c, err := s.CampaignStore.Get(ctx, identity, id)
    if err != nil {
        return nil, err
    }
    if c.Status != model.StatusPending {
        return nil, appErrors.NewValidation("campaign", "only pending campaigns can be rescheduled")
    }
    utc := sendAt.UTC()
    c.SendAt = &utc
    if err := s.CampaignStore.Save(ctx, c); err != nil {
        return nil, err
    }
    return &ScheduleResult{ID: c.ID, ScheduledAt: sendAt.Format(userDateFormat)}, nil
}

// Cancel removes a pending campaign. A cancellation that arrives after
// the sweep already picked the record up is accepted as too late.
func (s *CampaignService) Cancel(ctx context.Context, identity, id string) error {
    c, err := s.CampaignStore.Get(ctx, identity, id)
    if err != nil {
        return err
    }
    if c.Status != model.StatusPending {
        return appErrors.NewValidation("campaign", "only pending campaigns can be cancelled")
    }
    return s.CampaignStore.Delete(ctx, identity, id)
}
