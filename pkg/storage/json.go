package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetJSON decodes the value stored at key into dest. It returns ErrNotFound
// for absent keys and an error wrapping ErrCorrupt for undecodable values.
func GetJSON(ctx context.Context, kv KV, key string, dest any) error {
	b, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, kv KV, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, b)
}
