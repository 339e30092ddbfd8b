// internal/model/profile.go
package model

// SenderProfile is the registered sending identity for a tenant. Planner
// falls back to system defaults for any empty field.
type SenderProfile struct {
    PlanID      string `json:"plan_id"`
    SenderEmail string `json:"sender_email"`
    SenderName  string `json:"sender_name"`
    ReplyTo     string `json:"reply_to,omitempty"`
}
