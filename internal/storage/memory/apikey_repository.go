package memory

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/order-registry/internal/domain/auth"
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository holds a fixed set of API keys by hash.
type APIKeyRepository struct {
	byHash map[string]auth.APIKeyInfo
}

// NewAPIKeyRepository returns a repository containing keys.
func NewAPIKeyRepository(keys ...auth.APIKeyInfo) *APIKeyRepository {
	r := &APIKeyRepository{byHash: make(map[string]auth.APIKeyInfo, len(keys))}
	for _, k := range keys {
		r.byHash[k.KeyHash] = k
	}
	return r
}

// FindByHash returns the key stored under hash.
func (r *APIKeyRepository) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := r.byHash[hash]
	if !ok {
		return nil, errors.New("api key not found")
	}
	return &info, nil
}
