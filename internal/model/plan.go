// internal/model/plan.go
package model

type ScheduleMode string

const (
    ScheduleDisabled  ScheduleMode = "disabled"
    ScheduleLimited   ScheduleMode = "limited" // 48h ahead at most
    ScheduleUnlimited ScheduleMode = "unlimited"
    ScheduleRecurring ScheduleMode = "recurring"
)

// Plan is an immutable catalog entry. MaxTemplates -1 means unlimited.
type Plan struct {
    ID                       string       `json:"id"`
    MaxRecipientsPerCampaign int          `json:"max_recipients_per_campaign"`
    MonthlyQuota             int          `json:"monthly_quota"`
    AnnualQuota              int          `json:"annual_quota"`
    AllowAttachments         bool         `json:"allow_attachments"`
    ScheduleSend             ScheduleMode `json:"schedule_send"`
    MaxTemplates             int          `json:"max_templates"`
}
