package repository

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sort"

    appErrors "github.com/quillsend/quillsend-backend/internal/errors"
    "github.com/quillsend/quillsend-backend/internal/kv"
    "github.com/quillsend/quillsend-backend/internal/model"
)

const campaignKeyPrefix = "campaign:"

type CampaignStoreInterface interface {
    Save(ctx context.Context, c *model.Campaign) error
    Get(ctx context.Context, identity, id string) (*model.Campaign, error)
    Delete(ctx context.Context, identity, id string) error
    // ListPending returns pending campaigns sorted by send time ascending.
    // An empty identity lists across all identities (used by the sweep).
    ListPending(ctx context.Context, identity string) ([]*model.Campaign, error)
}

// CampaignStore persists pending campaigns as JSON values in the durable
// key-value store, keyed campaign:<identity>:<id>.
type CampaignStore struct {
    Store kv.Store
}

func campaignKey(identity, id string) string {
    return campaignKeyPrefix + identity + ":" + id
}

func (s *CampaignStore) Save(ctx context.Context, c *model.Campaign) error {
    raw, err := json.Marshal(c)
    if err != nil {
        return fmt.Errorf("encoding campaign %s: %w", c.ID, err)
    }
    if err := s.Store.Set(ctx, campaignKey(c.Identity, c.ID), string(raw)); err != nil {
        return fmt.Errorf("persisting campaign %s: %w", c.ID, err)
    }
    return nil
}

func (s *CampaignStore) Get(ctx context.Context, identity, id string) (*model.Campaign, error) {
    raw, err := s.Store.Get(ctx, campaignKey(identity, id))
    if errors.Is(err, kv.ErrNotFound) {
        return nil, appErrors.NewCampaignNotFound(id)
    }
    if err != nil {
        return nil, err
    }
    var c model.Campaign
    if err := json.Unmarshal([]byte(raw), &c); err != nil {
        return nil, fmt.Errorf("decoding campaign %s: %w", id, err)
    }
    return &c, nil
}

func (s *CampaignStore) Delete(ctx context.Context, identity, id string) error {
    return s.Store.Delete(ctx, campaignKey(identity, id))
}

func (s *CampaignStore) ListPending(ctx context.Context, identity string) ([]*model.Campaign, error) {
    prefix := campaignKeyPrefix
    if identity != "" {
        prefix += identity + ":"
    }
    entries, err := s.Store.Scan(ctx, prefix)
    if err != nil {
        return nil, err
    }

    campaigns := []*model.Campaign{}
    for _, raw := range entries {
        var c model.Campaign
        if err := json.Unmarshal([]byte(raw), &c); err != nil {
            // a corrupt record must not block the sweep forever
            continue
        }
        if c.Status != model.StatusPending {
            continue
        }
        campaigns = append(campaigns, &c)
    }

    sort.Slice(campaigns, func(i, j int) bool {
        ti, tj := campaigns[i].SendAt, campaigns[j].SendAt
        if ti == nil || tj == nil {
            return tj == nil && ti != nil
        }
        return ti.Before(*tj)
    })
    return campaigns, nil
}

var _ CampaignStoreInterface = (*CampaignStore)(nil)
