// internal/service/scheduler.go
package service

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"

    "github.com/quillsend/quillsend-backend/internal/metrics"
    "github.com/quillsend/quillsend-backend/internal/model"
    "github.com/quillsend/quillsend-backend/internal/repository"
)

const (
    // a campaign may fire up to this much before its exact instant,
    // matching the sweep granularity
    defaultTolerance = 2 * time.Minute
    defaultSweepSpec = "@every 1m"
)

// Scheduler runs the periodic due-campaign sweep. RunDueCampaigns is
// re-entrant: the pending record is deleted as the first durable side
// effect after a send completes, so a second sweep finds nothing to do.
// Two sweeps overlapping on the same still-pending record can at worst
// double-send that one campaign; there is no distributed lock.
type Scheduler struct {
    CampaignStore repository.CampaignStoreInterface
    Executor      ExecutorInterface
    Tolerance     time.Duration
    SweepSpec     string
    Now           func() time.Time
    Log           zerolog.Logger

    mu      sync.Mutex
    cron    *cron.Cron
    entryID cron.EntryID
}

func (s *Scheduler) now() time.Time {
    if s.Now != nil {
        return s.Now()
    }
    return time.Now()
}

func (s *Scheduler) tolerance() time.Duration {
    if s.Tolerance > 0 {
        return s.Tolerance
    }
    return defaultTolerance
}

// RunDueCampaigns loads every pending campaign, executes the due ones in
// ascending send-time order and never lets one campaign's failure abort
// the rest of the sweep.
func (s *Scheduler) RunDueCampaigns(ctx context.Context) error {
    start := time.Now()
    defer func() {
        metrics.SweepDuration.Observe(time.Since(start).Seconds())
    }()

    pending, err := s.CampaignStore.ListPending(ctx, "")
    if err != nil {
        return fmt.Errorf("loading pending campaigns: %w", err)
    }

    now := s.now()
    executed := 0
    for _, c := range pending {
        if c.SendAt == nil {
            continue
        }
        if now.Sub(*c.SendAt) < -s.tolerance() {
            continue // not due yet; list is sorted, but keep scanning for robustness
        }
        s.runOne(ctx, c)
        executed++
    }
    if executed > 0 {
        s.Log.Info().Int("executed", executed).Int("pending", len(pending)).Msg("sweep finished")
    }
    return nil
}

func (s *Scheduler) runOne(ctx context.Context, c *model.Campaign) {
    defer func() {
        if r := recover(); r != nil {
            s.Log.Error().Str("campaign_id", c.ID).Any("panic", r).Msg("panic while executing campaign")
            s.markFailed(ctx, c, fmt.Sprintf("panic: %v", r))
        }
    }()
    if err := s.Executor.ExecuteCampaign(ctx, c); err != nil {
        // the executor already recorded the failure; the sweep continues
        s.Log.Error().Err(err).Str("campaign_id", c.ID).Msg("campaign execution failed")
    }
}

func (s *Scheduler) markFailed(ctx context.Context, c *model.Campaign, reason string) {
    c.Status = model.StatusFailed
    c.LastError = reason
    if err := s.CampaignStore.Save(ctx, c); err != nil {
        s.Log.Error().Err(err).Str("campaign_id", c.ID).Msg("failed to mark campaign failed")
    }
}

// EnsureRecurringTrigger registers the periodic sweep. Idempotent: if the
// trigger is already active this is a no-op.
func (s *Scheduler) EnsureRecurringTrigger() error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.cron != nil {
        return nil
    }
    spec := s.SweepSpec
    if spec == "" {
        spec = defaultSweepSpec
    }
    c := cron.New()
    id, err := c.AddFunc(spec, func() {
        if err := s.RunDueCampaigns(context.Background()); err != nil {
            s.Log.Error().Err(err).Msg("sweep failed")
        }
    })
    if err != nil {
        return fmt.Errorf("registering sweep trigger: %w", err)
    }
    s.cron = c
    s.entryID = id
    c.Start()
    s.Log.Info().Str("spec", spec).Msg("sweep trigger registered")
    return nil
}

// RemoveRecurringTrigger stops the periodic sweep. Idempotent.
func (s *Scheduler) RemoveRecurringTrigger() {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.cron == nil {
        return
    }
    s.cron.Stop()
    s.cron = nil
    s.entryID = 0
    s.Log.Info().Msg("sweep trigger removed")
}

var _ TriggerInterface = (*Scheduler)(nil)
