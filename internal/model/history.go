// internal/model/history.go
package model

import "time"

// HistoryEntry is one row of the append-only send log. Entries are never
// mutated after Append.
type HistoryEntry struct {
    ID             int64     `json:"id"`
    Identity       string    `json:"identity"`
    Timestamp      time.Time `json:"timestamp"`
    Type           string    `json:"type"` // direct, scheduled, test
    CampaignName   string    `json:"campaign_name"`
    Subject        string    `json:"subject"`
    RecipientCount int       `json:"recipient_count"`
    EmailsPreview  string    `json:"emails_preview"`
    Status         string    `json:"status"`
    Details        string    `json:"details,omitempty"`
}

type HistoryStats struct {
    Total      int            `json:"total"`
    ByStatus   map[string]int `json:"by_status"`
    Last7Days  int            `json:"last_7_days"`
    Last30Days int            `json:"last_30_days"`
}
