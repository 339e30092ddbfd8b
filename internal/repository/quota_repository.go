package repository

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sync"
    "time"

    appErrors "github.com/quillsend/quillsend-backend/internal/errors"
    "github.com/quillsend/quillsend-backend/internal/kv"
    "github.com/quillsend/quillsend-backend/internal/model"
)

const quotaKeyPrefix = "quota:"

type QuotaLedgerInterface interface {
    ReadQuota(ctx context.Context, identity string) (model.QuotaState, error)
    // CheckAvailable verifies the tiered limits without consuming anything.
    CheckAvailable(ctx context.Context, identity string, p model.Plan, recipientCount int) error
    // Reserve checks the tiered limits and charges recipientCount in one
    // atomic step. No-op for recipientCount <= 0.
    Reserve(ctx context.Context, identity string, p model.Plan, recipientCount int) error
    // ReleaseUnused refunds the part of a reservation that did not turn
    // into a confirmed send. No-op for unused <= 0.
    ReleaseUnused(ctx context.Context, identity string, unused int) error
}

// QuotaLedger keeps per-identity monthly/annual counters in the key-value
// store. Reading performs the month-rollover reset and persists it
// immediately, so every consumer sees a current-month view. All operations
// on one identity serialize on a per-identity mutex, and the executor
// charges through Reserve, which checks and consumes under one lock
// acquisition: a direct send racing a due scheduled send cannot both pass
// the check and push the counters over the limit. The net charge after
// ReleaseUnused equals the confirmed successes.
type QuotaLedger struct {
    Store kv.Store
    Now   func() time.Time

    mu    sync.Mutex
    locks map[string]*sync.Mutex
}

func NewQuotaLedger(store kv.Store) *QuotaLedger {
    return &QuotaLedger{Store: store, Now: time.Now}
}

func (l *QuotaLedger) now() time.Time {
    if l.Now != nil {
        return l.Now()
    }
    return time.Now()
}

func (l *QuotaLedger) monthKey() string {
    return l.now().UTC().Format("2006-01")
}

func (l *QuotaLedger) lockFor(identity string) *sync.Mutex {
    l.mu.Lock()
    defer l.mu.Unlock()
    if l.locks == nil {
        l.locks = map[string]*sync.Mutex{}
    }
    m, ok := l.locks[identity]
    if !ok {
        m = &sync.Mutex{}
        l.locks[identity] = m
    }
    return m
}

func (l *QuotaLedger) persistLocked(ctx context.Context, identity string, state model.QuotaState) error {
    raw, err := json.Marshal(state)
    if err != nil {
        return fmt.Errorf("encoding quota state for %s: %w", identity, err)
    }
    return l.Store.Set(ctx, quotaKeyPrefix+identity, string(raw))
}

// readLocked lazily initializes a zeroed state and applies the month
// rollover, persisting any change before returning.
func (l *QuotaLedger) readLocked(ctx context.Context, identity string) (model.QuotaState, error) {
    raw, err := l.Store.Get(ctx, quotaKeyPrefix+identity)
    if errors.Is(err, kv.ErrNotFound) {
        state := model.QuotaState{LastResetMonth: l.monthKey()}
        if err := l.persistLocked(ctx, identity, state); err != nil {
            return model.QuotaState{}, err
        }
        return state, nil
    }
    if err != nil {
        return model.QuotaState{}, err
    }

    var state model.QuotaState
    if err := json.Unmarshal([]byte(raw), &state); err != nil {
        return model.QuotaState{}, fmt.Errorf("decoding quota state for %s: %w", identity, err)
    }
    if state.LastResetMonth != l.monthKey() {
        state.MonthlyCount = 0
        state.LastResetMonth = l.monthKey()
        if err := l.persistLocked(ctx, identity, state); err != nil {
            return model.QuotaState{}, err
        }
    }
    return state, nil
}

func (l *QuotaLedger) ReadQuota(ctx context.Context, identity string) (model.QuotaState, error) {
    lock := l.lockFor(identity)
    lock.Lock()
    defer lock.Unlock()
    return l.readLocked(ctx, identity)
}

// checkLocked applies the tiered limits, most specific first.
func checkLocked(state model.QuotaState, p model.Plan, recipientCount int) error {
    if recipientCount > p.MaxRecipientsPerCampaign {
        return appErrors.NewQuotaExceeded(appErrors.LimitPerCampaign, p.ID, 0, recipientCount, p.MaxRecipientsPerCampaign)
    }
    if state.MonthlyCount+recipientCount > p.MonthlyQuota {
        return appErrors.NewQuotaExceeded(appErrors.LimitMonthly, p.ID, state.MonthlyCount, recipientCount, p.MonthlyQuota)
    }
    if state.AnnualCount+recipientCount > p.AnnualQuota {
        return appErrors.NewQuotaExceeded(appErrors.LimitAnnual, p.ID, state.AnnualCount, recipientCount, p.AnnualQuota)
    }
    return nil
}

func (l *QuotaLedger) CheckAvailable(ctx context.Context, identity string, p model.Plan, recipientCount int) error {
    lock := l.lockFor(identity)
    lock.Lock()
    defer lock.Unlock()

    state, err := l.readLocked(ctx, identity)
    if err != nil {
        return err
    }
    return checkLocked(state, p, recipientCount)
}

func (l *QuotaLedger) Reserve(ctx context.Context, identity string, p model.Plan, recipientCount int) error {
    if recipientCount <= 0 {
        return nil
    }
    lock := l.lockFor(identity)
    lock.Lock()
    defer lock.Unlock()

    state, err := l.readLocked(ctx, identity)
    if err != nil {
        return err
    }
    if err := checkLocked(state, p, recipientCount); err != nil {
        return err
    }
    state.MonthlyCount += recipientCount
    state.AnnualCount += recipientCount
    return l.persistLocked(ctx, identity, state)
}

func (l *QuotaLedger) ReleaseUnused(ctx context.Context, identity string, unused int) error {
    if unused <= 0 {
        return nil
    }
    lock := l.lockFor(identity)
    lock.Lock()
    defer lock.Unlock()

    state, err := l.readLocked(ctx, identity)
    if err != nil {
        return err
    }
    state.MonthlyCount = max(state.MonthlyCount-unused, 0)
    state.AnnualCount = max(state.AnnualCount-unused, 0)
    return l.persistLocked(ctx, identity, state)
}

var _ QuotaLedgerInterface = (*QuotaLedger)(nil)
