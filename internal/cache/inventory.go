package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix   = "user:%s"
	ThreadKeyPrefix = "thread:%s"
	PathKeyPrefix   = "path:%s"
)

const (
	UserTTL   = 5 * time.Minute
	ThreadTTL = 10 * time.Minute
	PathTTL   = 2 * time.Minute
)

// UserKey is the cache key for a user, addressed by external id.
func UserKey(externalID string) string {
	return fmt.Sprintf(UserKeyPrefix, externalID)
}

// ThreadKey is the cache key for a thread, addressed by hex id.
func ThreadKey(id string) string {
	return fmt.Sprintf(ThreadKeyPrefix, id)
}

// PathKey is the cache key for a rendered logical path.
func PathKey(path string) string {
	return fmt.Sprintf(PathKeyPrefix, path)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, externalID string) {
	Invalidate(ctx, UserKey(externalID))
}

func InvalidateThread(ctx context.Context, id string) {
	Invalidate(ctx, ThreadKey(id))
}

// InvalidatePath signals the caching layer that the rendered output for a
// logical path is stale. Mutating operations call this on success.
func InvalidatePath(ctx context.Context, path string) {
	if path == "" {
		return
	}
	Invalidate(ctx, PathKey(path))
}
