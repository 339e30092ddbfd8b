// internal/plan/catalog.go
package plan

import "github.com/quillsend/quillsend-backend/internal/model"

const (
    Free     = "free"
    Pro      = "pro"
    Business = "business"
)

// Catalog holds the static tier definitions. It is injected into the
// services so tests can swap plans per case.
type Catalog struct {
    plans    map[string]model.Plan
    fallback string
}

// NewCatalog returns the production tiers. Unknown or missing plan ids
// resolve to the most restrictive tier (free).
func NewCatalog() *Catalog {
    c := &Catalog{plans: map[string]model.Plan{}, fallback: Free}
    c.Register(model.Plan{
        ID:                       Free,
        MaxRecipientsPerCampaign: 10,
        MonthlyQuota:             100,
        AnnualQuota:              1000,
        AllowAttachments:         false,
        ScheduleSend:             model.ScheduleLimited,
        MaxTemplates:             3,
    })
    c.Register(model.Plan{
        ID:                       Pro,
        MaxRecipientsPerCampaign: 100,
        MonthlyQuota:             2000,
        AnnualQuota:              24000,
        AllowAttachments:         true,
        ScheduleSend:             model.ScheduleUnlimited,
        MaxTemplates:             50,
    })
    c.Register(model.Plan{
        ID:                       Business,
        MaxRecipientsPerCampaign: 500,
        MonthlyQuota:             10000,
        AnnualQuota:              120000,
        AllowAttachments:         true,
        ScheduleSend:             model.ScheduleRecurring,
        MaxTemplates:             -1,
    })
    return c
}

func (c *Catalog) Register(p model.Plan) {
    c.plans[p.ID] = p
}

// PlanFor never fails: it always returns a plan.
func (c *Catalog) PlanFor(planID string) model.Plan {
    if p, ok := c.plans[planID]; ok {
        return p
    }
    return c.plans[c.fallback]
}
