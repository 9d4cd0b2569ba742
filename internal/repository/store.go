package repository

import (
	"context"
	"errors"
	"strings"
)

// KeyValueStore is the durable key-value contract shared by every backend.
// Keys are scoped to the profile the store was opened for.
type KeyValueStore interface {
	Load(ctx context.Context, key string) (string, bool, error)
	StoreIfAbsent(ctx context.Context, key, value string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

const defaultProfile = "default"

func normalizeProfile(profile string) string {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return defaultProfile
	}
	return profile
}

func validateKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("repository: key is required")
	}
	return key, nil
}
