package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/quillsend/quillsend-backend/internal/model"
)

type HistoryRecorderInterface interface {
    Append(ctx context.Context, e *model.HistoryEntry) error
    Query(ctx context.Context, identity string, limit int) ([]model.HistoryEntry, error)
    PurgeBefore(ctx context.Context, identity string, cutoff time.Time) (int64, error)
    PurgeTestEntries(ctx context.Context, identity string) (int64, error)
    ComputeStats(ctx context.Context, identity string) (*model.HistoryStats, error)
}

// HistoryRecorder is the append-only send log, backed by Postgres.
// History is observability, not a correctness dependency: callers log and
// swallow Append failures instead of failing the send.
type HistoryRecorder struct {
    DB *sql.DB
}

func (r *HistoryRecorder) Append(ctx context.Context, e *model.HistoryEntry) error {
    if e.Timestamp.IsZero() {
        e.Timestamp = time.Now().UTC()
    }
    query := `
        INSERT INTO send_history
        (identity, sent_at, type, campaign_name, subject, recipient_count, emails_preview, status, details)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
    return r.DB.QueryRowContext(ctx, query,
        e.Identity, e.Timestamp, e.Type, e.CampaignName, e.Subject,
        e.RecipientCount, e.EmailsPreview, e.Status, e.Details,
    ).Scan(&e.ID)
}

func (r *HistoryRecorder) Query(ctx context.Context, identity string, limit int) ([]model.HistoryEntry, error) {
    if limit <= 0 {
        limit = 100
    }
    query := `
        SELECT id, identity, sent_at, type, campaign_name, subject, recipient_count, emails_preview, status, details
        FROM send_history
        WHERE identity = $1
        ORDER BY sent_at DESC
        LIMIT $2
    `
    rows, err := r.DB.QueryContext(ctx, query, identity, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    entries := []model.HistoryEntry{}
    for rows.Next() {
        var e model.HistoryEntry
        if err := rows.Scan(&e.ID, &e.Identity, &e.Timestamp, &e.Type, &e.CampaignName,
            &e.Subject, &e.RecipientCount, &e.EmailsPreview, &e.Status, &e.Details); err != nil {
            return nil, err
        }
        entries = append(entries, e)
    }
    return entries, rows.Err()
}

func (r *HistoryRecorder) PurgeBefore(ctx context.Context, identity string, cutoff time.Time) (int64, error) {
    res, err := r.DB.ExecContext(ctx,
        `DELETE FROM send_history WHERE identity = $1 AND sent_at < $2`, identity, cutoff)
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

func (r *HistoryRecorder) PurgeTestEntries(ctx context.Context, identity string) (int64, error) {
    res, err := r.DB.ExecContext(ctx,
        `DELETE FROM send_history WHERE identity = $1 AND type = 'test'`, identity)
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

// ComputeStats aggregates counts by status and recency window. It scans
// the identity's full log, which is fine at the assumed scale.
func (r *HistoryRecorder) ComputeStats(ctx context.Context, identity string) (*model.HistoryStats, error) {
    rows, err := r.DB.QueryContext(ctx,
        `SELECT status, sent_at FROM send_history WHERE identity = $1`, identity)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    stats := &model.HistoryStats{ByStatus: map[string]int{}}
    now := time.Now().UTC()
    for rows.Next() {
        var status string
        var sentAt time.Time
        if err := rows.Scan(&status, &sentAt); err != nil {
            return nil, err
        }
        stats.Total++
        stats.ByStatus[status]++
        age := now.Sub(sentAt)
        if age <= 7*24*time.Hour {
            stats.Last7Days++
        }
        if age <= 30*24*time.Hour {
            stats.Last30Days++
        }
    }
    return stats, rows.Err()
}

var _ HistoryRecorderInterface = (*HistoryRecorder)(nil)
