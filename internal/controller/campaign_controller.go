// internal/controller/campaign_controller.go
package controller

import (
    "encoding/json"
    "errors"
    "net/http"
    "strings"

    "github.com/go-chi/chi/v5"

    appErrors "github.com/quillsend/quillsend-backend/internal/errors"
    "github.com/quillsend/quillsend-backend/internal/service"
)

type CampaignController struct {
    CampaignService *service.CampaignService
}

// Identity returns the tenant identity or writes a 400. Identity is
// threaded explicitly through every core call.
func Identity(w http.ResponseWriter, r *http.Request) (string, bool) {
    identity := strings.TrimSpace(r.Header.Get("X-Identity"))
    if identity == "" {
        writeJSONError(w, http.StatusBadRequest, "missing X-Identity header")
        return "", false
    }
    return identity, true
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// WriteError maps the error taxonomy to HTTP status codes.
func WriteError(w http.ResponseWriter, err error) {
    var (
        validationErr *appErrors.ValidationError
        planErr       *appErrors.PlanRestrictionError
        quotaErr      *appErrors.QuotaExceededError
        notFoundErr   *appErrors.NotFoundError
    )
    switch {
    case errors.As(err, &validationErr):
        writeJSONError(w, http.StatusBadRequest, err.Error())
    case errors.As(err, &planErr):
        writeJSONError(w, http.StatusForbidden, err.Error())
    case errors.As(err, &quotaErr):
        writeJSONError(w, http.StatusTooManyRequests, err.Error())
    case errors.As(err, &notFoundErr):
        writeJSONError(w, http.StatusNotFound, err.Error())
    default:
        writeJSONError(w, http.StatusInternalServerError, err.Error())
    }
}

func writeJSON(w http.ResponseWriter, v interface{}) {
    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(v)
}

func (c *CampaignController) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
    identity, ok := Identity(w, r)
    if !ok {
        return
    }
    var req service.CampaignRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeJSONError(w, http.StatusBadRequest, "invalid body")
        return
    }
    result, err := c.CampaignService.ScheduleCampaign(r.Context(), identity, req)
    if err != nil {
        WriteError(w, err)
        return
    }
    writeJSON(w, result)
}

func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
    identity, ok := Identity(w, r)
    if !ok {
        return
    }
    var req service.CampaignRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeJSONError(w, http.StatusBadRequest, "invalid body")
        return
    }
    campaign, err := c.CampaignService.SendCampaign(r.Context(), identity, req)
    if err != nil {
        WriteError(w, err)
        return
    }
    writeJSON(w, map[string]interface{}{
        "campaign_id": campaign.ID,
        "status":      campaign.Status,
        "stats":       campaign.Stats,
    })
}

func (c *CampaignController) SendTestCampaign(w http.ResponseWriter, r *http.Request) {
    identity, ok := Identity(w, r)
    if !ok {
        return
    }
    var body struct {
        Subject  string `json:"subject"`
        HTMLBody string `json:"html_body"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        writeJSONError(w, http.StatusBadRequest, "invalid body")
        return
    }
    campaign, err := c.CampaignService.SendTestCampaign(r.Context(), identity, body.Subject, body.HTMLBody)
    if err != nil {
        WriteError(w, err)
        return
    }
    writeJSON(w, map[string]interface{}{
        "campaign_id": campaign.ID,
        "status":      campaign.Status,
    })
}

func (c *CampaignController) ListPending(w http.ResponseWriter, r *http.Request) {
    identity, ok := Identity(w, r)
    if !ok {
        return
    }
    summaries, err := c.CampaignService.ListPending(r.Context(), identity)
    if err != nil {
        WriteError(w, err)
        return
    }
    writeJSON(w, map[string]interface{}{"data": summaries})
}

func (c *CampaignController) Reschedule(w http.ResponseWriter, r *http.Request) {
    identity, ok := Identity(w, r)
    if !ok {
        return
    }
    id := chi.URLParam(r, "id")
    var body struct {
        SendAt string `json:"send_at"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        writeJSONError(w, http.StatusBadRequest, "invalid body")
        return
    }
    result, err := c.CampaignService.Reschedule(r.Context(), identity, id, body.SendAt)
    if err != nil {
        WriteError(w, err)
        return
    }
    writeJSON(w, result)
}

func (c *CampaignController) Cancel(w http.ResponseWriter, r *http.Request) {
    identity, ok := Identity(w, r)
    if !ok {
        return
    }
    id := chi.URLParam(r, "id")
    if err := c.CampaignService.Cancel(r.Context(), identity, id); err != nil {
        WriteError(w, err)
        return
    }
    writeJSON(w, map[string]string{"status": "cancelled", "id": id})
}
