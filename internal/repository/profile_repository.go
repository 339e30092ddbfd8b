package repository

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"

    "github.com/quillsend/quillsend-backend/internal/kv"
    "github.com/quillsend/quillsend-backend/internal/model"
)

const profileKeyPrefix = "profile:"

type ProfileRepositoryInterface interface {
    // Get returns nil, nil when the identity has no registered profile.
    Get(ctx context.Context, identity string) (*model.SenderProfile, error)
    Save(ctx context.Context, identity string, p *model.SenderProfile) error
}

// ProfileRepository stores registered sender profiles in the key-value
// store, keyed profile:<identity>.
type ProfileRepository struct {
    Store kv.Store
}

func (r *ProfileRepository) Get(ctx context.Context, identity string) (*model.SenderProfile, error) {
    raw, err := r.Store.Get(ctx, profileKeyPrefix+identity)
    if errors.Is(err, kv.ErrNotFound) {
        return nil, nil // not found
    }
    if err != nil {
        return nil, err
    }
    var p model.SenderProfile
    if err := json.Unmarshal([]byte(raw), &p); err != nil {
        return nil, fmt.Errorf("decoding profile for %s: %w", identity, err)
    }
    return &p, nil
}

func (r *ProfileRepository) Save(ctx context.Context, identity string, p *model.SenderProfile) error {
    raw, err := json.Marshal(p)
    if err != nil {
        return fmt.Errorf("encoding profile for %s: %w", identity, err)
    }
    return r.Store.Set(ctx, profileKeyPrefix+identity, string(raw))
}

var _ ProfileRepositoryInterface = (*ProfileRepository)(nil)
