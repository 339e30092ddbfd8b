// internal/handler/history_handler.go
package handler

import (
    "encoding/json"
    "net/http"
    "strconv"
    "time"

    "github.com/quillsend/quillsend-backend/internal/controller"
    "github.com/quillsend/quillsend-backend/internal/model"
    "github.com/quillsend/quillsend-backend/internal/plan"
    "github.com/quillsend/quillsend-backend/internal/repository"
)

// HistoryHandler serves the read side: send history, quota state and the
// sender profile.
type HistoryHandler struct {
    History  repository.HistoryRecorderInterface
    Quota    repository.QuotaLedgerInterface
    Profiles repository.ProfileRepositoryInterface
    Plans    *plan.Catalog
}

func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
    identity, ok := controller.Identity(w, r)
    if !ok {
        return
    }
    limit := 0
    if v := r.URL.Query().Get("limit"); v != "" {
        if n, err := strconv.Atoi(v); err == nil {
            limit = n
        }
    }
    entries, err := h.History.Query(r.Context(), identity, limit)
    if err != nil {
        controller.WriteError(w, err)
        return
    }
    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{"data": entries})
}

func (h *HistoryHandler) GetHistoryStats(w http.ResponseWriter, r *http.Request) {
    identity, ok := controller.Identity(w, r)
    if !ok {
        return
    }
    stats, err := h.History.ComputeStats(r.Context(), identity)
    if err != nil {
        controller.WriteError(w, err)
        return
    }
    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(stats)
}

func (h *HistoryHandler) PurgeHistory(w http.ResponseWriter, r *http.Request) {
    identity, ok := controller.Identity(w, r)
    if !ok {
        return
    }
    beforeStr := r.URL.Query().Get("before")
    if beforeStr == "" {
        http.Error(w, "missing before query parameter", http.StatusBadRequest)
        return
    }
    before, err := time.Parse(time.RFC3339, beforeStr)
    if err != nil {
        http.Error(w, "before must be a valid RFC3339 timestamp", http.StatusBadRequest)
        return
    }
    purged, err := h.History.PurgeBefore(r.Context(), identity, before)
    if err != nil {
        controller.WriteError(w, err)
        return
    }
    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]int64{"purged": purged})
}

func (h *HistoryHandler) PurgeTestHistory(w http.ResponseWriter, r *http.Request) {
    identity, ok := controller.Identity(w, r)
    if !ok {
        return
    }
    purged, err := h.History.PurgeTestEntries(r.Context(), identity)
    if err != nil {
        controller.WriteError(w, err)
        return
    }
    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]int64{"purged": purged})
}

// GetQuota reports current consumption next to the plan's limits.
func (h *HistoryHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
    identity, ok := controller.Identity(w, r)
    if !ok {
        return
    }
    state, err := h.Quota.ReadQuota(r.Context(), identity)
    if err != nil {
        controller.WriteError(w, err)
        return
    }
    profile, err := h.Profiles.Get(r.Context(), identity)
    if err != nil {
        controller.WriteError(w, err)
        return
    }
    planID := ""
    if profile != nil {
        planID = profile.PlanID
    }
    p := h.Plans.PlanFor(planID)

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "quota": state,
        "plan":  p,
    })
}

func (h *HistoryHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
    identity, ok := controller.Identity(w, r)
    if !ok {
        return
    }
    profile, err := h.Profiles.Get(r.Context(), identity)
    if err != nil {
        controller.WriteError(w, err)
        return
    }
    if profile == nil {
        http.Error(w, "no profile registered", http.StatusNotFound)
        return
    }
    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(profile)
}

func (h *HistoryHandler) PutProfile(w http.ResponseWriter, r *http.Request) {
    identity, ok := controller.Identity(w, r)
    if !ok {
        return
    }
    var profile model.SenderProfile
    if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
        http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
        return
    }
    if err := h.Profiles.Save(r.Context(), identity, &profile); err != nil {
        controller.WriteError(w, err)
        return
    }
    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(profile)
}
