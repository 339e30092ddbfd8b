// internal/model/quota.go
package model

// QuotaState tracks consumed send volume for one identity. MonthlyCount
// resets when the stored month key no longer matches the current month;
// AnnualCount is only ever incremented here (external policy may reset it).
type QuotaState struct {
    MonthlyCount   int    `json:"monthly_count"`
    AnnualCount    int    `json:"annual_count"`
    LastResetMonth string `json:"last_reset_month"` // YYYY-MM
}
