package service_test

import (
    "context"
    "errors"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/rs/zerolog"

    "github.com/quillsend/quillsend-backend/internal/config"
    appErrors "github.com/quillsend/quillsend-backend/internal/errors"
    "github.com/quillsend/quillsend-backend/internal/kv"
    "github.com/quillsend/quillsend-backend/internal/mailer"
    "github.com/quillsend/quillsend-backend/internal/model"
    "github.com/quillsend/quillsend-backend/internal/plan"
    "github.com/quillsend/quillsend-backend/internal/queue"
    "github.com/quillsend/quillsend-backend/internal/repository"
    "github.com/quillsend/quillsend-backend/internal/service"
)

// --- Shared fakes ---

// memKV is an in-memory kv.Store so the real repositories can be used in
// service tests.
type memKV struct {
    mu   sync.Mutex
    data map[string]string
}

func newMemKV() *memKV {
    return &memKV{data: map[string]string{}}
}

func (s *memKV) Get(_ context.Context, key string) (string, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    v, ok := s.data[key]
    if !ok {
        return "", kv.ErrNotFound
    }
    return v, nil
}

func (s *memKV) Set(_ context.Context, key, value string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.data[key] = value
    return nil
}

func (s *memKV) Delete(_ context.Context, key string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    delete(s.data, key)
    return nil
}

func (s *memKV) Scan(_ context.Context, prefix string) (map[string]string, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := map[string]string{}
    for k, v := range s.data {
        if strings.HasPrefix(k, prefix) {
            out[k] = v
        }
    }
    return out, nil
}

type fakeSender struct {
    mu       sync.Mutex
    attempts []*mailer.Message
    failFor  map[string]error
}

func (s *fakeSender) Send(_ context.Context, msg *mailer.Message) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.attempts = append(s.attempts, msg)
    if err, ok := s.failFor[msg.To]; ok {
        return err
    }
    return nil
}

func (s *fakeSender) attemptCount() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.attempts)
}

type fakeHistory struct {
    mu        sync.Mutex
    entries   []model.HistoryEntry
    appendErr error
}

func (h *fakeHistory) Append(_ context.Context, e *model.HistoryEntry) error {
    h.mu.Lock()
    defer h.mu.Unlock()
    if h.appendErr != nil {
        return h.appendErr
    }
    h.entries = append(h.entries, *e)
    return nil
}

func (h *fakeHistory) Query(_ context.Context, _ string, _ int) ([]model.HistoryEntry, error) {
    return h.entries, nil
}

func (h *fakeHistory) PurgeBefore(_ context.Context, _ string, _ time.Time) (int64, error) {
    return 0, nil
}

func (h *fakeHistory) PurgeTestEntries(_ context.Context, _ string) (int64, error) {
    return 0, nil
}

func (h *fakeHistory) ComputeStats(_ context.Context, _ string) (*model.HistoryStats, error) {
    return &model.HistoryStats{ByStatus: map[string]int{}}, nil
}

// fakeQuota injects errors per identity and records reservations.
type fakeQuota struct {
    errFor   map[string]error
    reserved []int
    released []int
}

func (q *fakeQuota) ReadQuota(_ context.Context, _ string) (model.QuotaState, error) {
    return model.QuotaState{}, nil
}

func (q *fakeQuota) CheckAvailable(_ context.Context, identity string, _ model.Plan, _ int) error {
    if err, ok := q.errFor[identity]; ok {
        return err
    }
    return nil
}

func (q *fakeQuota) Reserve(_ context.Context, identity string, _ model.Plan, recipientCount int) error {
    if err, ok := q.errFor[identity]; ok {
        return err
    }
    q.reserved = append(q.reserved, recipientCount)
    return nil
}

func (q *fakeQuota) ReleaseUnused(_ context.Context, _ string, unused int) error {
    q.released = append(q.released, unused)
    return nil
}

type fakeTrigger struct {
    ensured int
}

func (t *fakeTrigger) EnsureRecurringTrigger() error {
    t.ensured++
    return nil
}

type fakePublisher struct {
    events []queue.CampaignEvent
}

func (p *fakePublisher) PublishOutcome(_ context.Context, ev queue.CampaignEvent) error {
    p.events = append(p.events, ev)
    return nil
}

func (p *fakePublisher) Close() error { return nil }

// --- Planner fixture ---

var testNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

type plannerFixture struct {
    svc     *service.CampaignService
    store   *repository.CampaignStore
    trigger *fakeTrigger
    quota   *fakeQuota
    kv      *memKV
}

func newPlannerFixture() *plannerFixture {
    kvStore := newMemKV()
    store := &repository.CampaignStore{Store: kvStore}
    trigger := &fakeTrigger{}
    quota := &fakeQuota{}
    svc := &service.CampaignService{
        CampaignStore: store,
        Quota:         quota,
        Profiles:      &repository.ProfileRepository{Store: kvStore},
        Plans:         plan.NewCatalog(),
        Trigger:       trigger,
        Defaults:      config.SenderDefaults{Email: "no-reply@quillsend.io", Name: "QuillSend"},
        DefaultPlan:   "free",
        Now:           func() time.Time { return testNow },
        Log:           zerolog.Nop(),
    }
    return &plannerFixture{svc: svc, store: store, trigger: trigger, quota: quota, kv: kvStore}
}

func validRequest(sendAt string) service.CampaignRequest {
    return service.CampaignRequest{
        Name:     "Newsletter",
        Subject:  "Hello {{name}}",
        HTMLBody: "<p>Hi {{name}}</p>",
        SendAt:   sendAt,
        Recipients: []service.RecipientInput{
            {Email: "alice@example.com"},
            {Email: "bob@example.com"},
        },
    }
}

// --- Tests ---

func TestScheduleCampaignValidationOrder(t *testing.T) {
    f := newPlannerFixture()
    future := testNow.Add(time.Hour).Format(time.RFC3339)

    cases := []struct {
        name   string
        mutate func(*service.CampaignRequest)
    }{
        {"no recipients", func(r *service.CampaignRequest) { r.Recipients = nil }},
        {"empty subject", func(r *service.CampaignRequest) { r.Subject = "  " }},
        {"empty body", func(r *service.CampaignRequest) { r.HTMLBody = "" }},
        {"missing send_at", func(r *service.CampaignRequest) { r.SendAt = "" }},
        {"unparseable send_at", func(r *service.CampaignRequest) { r.SendAt = "tomorrow" }},
        {"send_at in the past", func(r *service.CampaignRequest) {
            r.SendAt = testNow.Add(-time.Hour).Format(time.RFC3339)
        }},
        {"send_at equal to now", func(r *service.CampaignRequest) {
            r.SendAt = testNow.Format(time.RFC3339)
        }},
        {"bad recipient email", func(r *service.CampaignRequest) {
            r.Recipients = []service.RecipientInput{{Email: "not-an-address"}}
        }},
    }

    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            req := validRequest(future)
            tc.mutate(&req)
            _, err := f.svc.ScheduleCampaign(context.Background(), "alice@example.com", req)
            var ve *appErrors.ValidationError
            if !errors.As(err, &ve) {
                t.Fatalf("expected ValidationError, got %v", err)
            }
        })
    }
}

func TestScheduleCampaignJustInFuture(t *testing.T) {
    f := newPlannerFixture()
    req := validRequest(testNow.Add(time.Second).Format(time.RFC3339))

    result, err := f.svc.ScheduleCampaign(context.Background(), "alice@example.com", req)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if result.ID == "" {
        t.Error("expected a generated campaign id")
    }
    if f.trigger.ensured != 1 {
        t.Errorf("expected trigger ensured once, got %d", f.trigger.ensured)
    }
    if len(f.quota.reserved) != 0 {
        t.Errorf("planning must not reserve quota, got %v", f.quota.reserved)
    }

    c, err := f.store.Get(context.Background(), "alice@example.com", result.ID)
    if err != nil {
        t.Fatalf("expected persisted campaign: %v", err)
    }
    if c.Status != model.StatusPending {
        t.Errorf("expected pending, got %s", c.Status)
    }
    if c.Kind != model.KindScheduled {
        t.Errorf("expected scheduled kind, got %s", c.Kind)
    }
    if c.SenderEmail != "no-reply@quillsend.io" {
        t.Errorf("expected default sender, got %s", c.SenderEmail)
    }
}

func TestScheduleCampaignScheduleDisabledPlan(t *testing.T) {
    f := newPlannerFixture()
    f.svc.Plans.Register(model.Plan{
        ID:                       "nosched",
        MaxRecipientsPerCampaign: 10,
        MonthlyQuota:             100,
        AnnualQuota:              1000,
        ScheduleSend:             model.ScheduleDisabled,
    })
    profiles := &repository.ProfileRepository{Store: f.kv}
    if err := profiles.Save(context.Background(), "alice@example.com", &model.SenderProfile{PlanID: "nosched"}); err != nil {
        t.Fatal(err)
    }

    req := validRequest(testNow.Add(time.Hour).Format(time.RFC3339))
    _, err := f.svc.ScheduleCampaign(context.Background(), "alice@example.com", req)
    var pe *appErrors.PlanRestrictionError
    if !errors.As(err, &pe) {
        t.Fatalf("expected PlanRestrictionError, got %v", err)
    }
}

func TestScheduleCampaignLimitedWindow(t *testing.T) {
    f := newPlannerFixture() // default plan is free, which is limited

    req := validRequest(testNow.Add(72 * time.Hour).Format(time.RFC3339))
    _, err := f.svc.ScheduleCampaign(context.Background(), "alice@example.com", req)
    var pe *appErrors.PlanRestrictionError
    if !errors.As(err, &pe) {
        t.Fatalf("expected PlanRestrictionError beyond 48h, got %v", err)
    }

    req = validRequest(testNow.Add(24 * time.Hour).Format(time.RFC3339))
    if _, err := f.svc.ScheduleCampaign(context.Background(), "alice@example.com", req); err != nil {
        t.Fatalf("24h ahead should be allowed on the limited tier: %v", err)
    }
}

func TestScheduleCampaignAttachmentsGated(t *testing.T) {
    f := newPlannerFixture() // free plan: no attachments
    req := validRequest(testNow.Add(time.Hour).Format(time.RFC3339))
    req.Attachments = []model.Attachment{{Filename: "a.pdf", MimeType: "application/pdf", Content: "aGk="}}

    _, err := f.svc.ScheduleCampaign(context.Background(), "alice@example.com", req)
    var pe *appErrors.PlanRestrictionError
    if !errors.As(err, &pe) {
        t.Fatalf("expected PlanRestrictionError, got %v", err)
    }
}

func TestScheduleCampaignQuotaErrorPropagated(t *testing.T) {
    f := newPlannerFixture()
    f.quota.errFor = map[string]error{
        "alice@example.com": appErrors.NewQuotaExceeded(appErrors.LimitMonthly, "free", 98, 2, 100),
    }

    req := validRequest(testNow.Add(time.Hour).Format(time.RFC3339))
    _, err := f.svc.ScheduleCampaign(context.Background(), "alice@example.com", req)
    var qe *appErrors.QuotaExceededError
    if !errors.As(err, &qe) {
        t.Fatalf("expected QuotaExceededError, got %v", err)
    }
    if qe.Limit != appErrors.LimitMonthly || qe.Max != 100 {
        t.Errorf("quota error must carry the violated limit, got %+v", qe)
    }

    pending, _ := f.store.ListPending(context.Background(), "alice@example.com")
    if len(pending) != 0 {
        t.Errorf("nothing should be persisted on quota rejection, got %d", len(pending))
    }
}

func TestRescheduleAndCancel(t *testing.T) {
    f := newPlannerFixture()
    ctx := context.Background()
    identity := "alice@example.com"

    result, err := f.svc.ScheduleCampaign(ctx, identity, validRequest(testNow.Add(time.Hour).Format(time.RFC3339)))
    if err != nil {
        t.Fatal(err)
    }

    newAt := testNow.Add(2 * time.Hour)
    if _, err := f.svc.Reschedule(ctx, identity, result.ID, newAt.Format(time.RFC3339)); err != nil {
        t.Fatalf("reschedule failed: %v", err)
    }
    c, _ := f.store.Get(ctx, identity, result.ID)
    if c.SendAt == nil || !c.SendAt.Equal(newAt) {
        t.Errorf("expected send_at moved to %v, got %v", newAt, c.SendAt)
    }

    if _, err := f.svc.Reschedule(ctx, identity, result.ID, testNow.Add(-time.Hour).Format(time.RFC3339)); err == nil {
        t.Error("rescheduling into the past must fail")
    }

    if err := f.svc.Cancel(ctx, identity, result.ID); err != nil {
        t.Fatalf("cancel failed: %v", err)
    }
    if _, err := f.store.Get(ctx, identity, result.ID); err == nil {
        t.Error("cancelled campaign should be gone")
    }

    err = f.svc.Cancel(ctx, identity, "no-such-id")
    var nf *appErrors.NotFoundError
    if !errors.As(err, &nf) {
        t.Fatalf("expected NotFoundError, got %v", err)
    }
}

func TestListPendingSortedAscending(t *testing.T) {
    f := newPlannerFixture()
    ctx := context.Background()
    identity := "alice@example.com"

    for _, offset := range []time.Duration{30 * time.Hour, 6 * time.Hour, 18 * time.Hour} {
        req := validRequest(testNow.Add(offset).Format(time.RFC3339))
        if _, err := f.svc.ScheduleCampaign(ctx, identity, req); err != nil {
            t.Fatal(err)
        }
    }

    summaries, err := f.svc.ListPending(ctx, identity)
    if err != nil {
        t.Fatal(err)
    }
    if len(summaries) != 3 {
        t.Fatalf("expected 3 pending campaigns, got %d", len(summaries))
    }
    for i := 1; i < len(summaries); i++ {
        if summaries[i].SendAt.Before(summaries[i-1].SendAt) {
            t.Errorf("pending list not sorted ascending: %v before %v", summaries[i].SendAt, summaries[i-1].SendAt)
        }
    }
}
