// Package lock grants short-lived exclusive ownership of resource keys backed by Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"autopark/backend/services/parking-service/internal/models"
)

// DefaultTTL is how long a lock survives without a heartbeat.
const DefaultTTL = 30 * time.Second

const keyPrefix = "lock:"

const (
	fieldOwnerID   = "owner_id"
	fieldOwnerName = "owner_name"
	fieldLockedAt  = "locked_at"
)

// acquireScript sets the lock hash only when the key is absent, so one owner wins.
var acquireScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'owner_id', ARGV[1], 'owner_name', ARGV[2], 'locked_at', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

var extendScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'owner_id') == ARGV[1] then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
	return 1
end
return 0
`)

// releaseScript treats a missing key as released.
var releaseScript = redis.NewScript(`
local owner = redis.call('HGET', KEYS[1], 'owner_id')
if not owner then
	return 1
end
if owner == ARGV[1] then
	redis.call('DEL', KEYS[1])
	return 1
end
return 0
`)

// Manager implements the resource lock contract on a Redis client.
type Manager struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewManager returns a redis-backed lock manager. A non-positive ttl falls back to DefaultTTL.
func NewManager(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		client: client,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.Named("lock"),
	}
}

// TTL returns the configured lock lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// InboundKey guards the duplicate-check-then-create sequence for a plate at a site.
func InboundKey(siteID int64, plate string) string {
	return fmt.Sprintf("inbound:%d:%s", siteID, plate)
}

// SessionKey guards operator edits of a session.
func SessionKey(sessionID int64) string {
	return fmt.Sprintf("session:%d", sessionID)
}

func (m *Manager) key(resource string) string {
	return keyPrefix + resource
}

func validate(resource, ownerID string) error {
	if strings.TrimSpace(resource) == "" {
		return fmt.Errorf("%w: resource key is required", models.ErrValidation)
	}
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("%w: owner id is required", models.ErrValidation)
	}
	return nil
}

// Acquire takes the lock if nobody holds it. Acquiring a lock already held by the same owner
// also returns false. Store errors are returned: the caller cannot assume exclusivity.
func (m *Manager) Acquire(ctx context.Context, resource, ownerID, ownerName string) (bool, error) {
	if err := validate(resource, ownerID); err != nil {
		return false, err
	}
	lockedAt := strconv.FormatInt(m.now().UTC().UnixMilli(), 10)
	res, err := acquireScript.Run(ctx, m.client, []string{m.key(resource)},
		ownerID, ownerName, lockedAt, m.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("%w: acquire %s: %v", models.ErrLock, resource, err)
	}
	return res == 1, nil
}

// Extend resets the TTL when ownerID holds the lock. Store failures are logged and reported
// as not held, leaving the key to expire naturally.
func (m *Manager) Extend(ctx context.Context, resource, ownerID string) bool {
	if validate(resource, ownerID) != nil {
		return false
	}
	res, err := extendScript.Run(ctx, m.client, []string{m.key(resource)}, ownerID, m.ttl.Milliseconds()).Int()
	if err != nil {
		m.logger.Warn("extend lock failed", zap.String("key", resource), zap.String("owner_id", ownerID), zap.Error(err))
		return false
	}
	return res == 1
}

// Release deletes the lock when ownerID holds it. A missing lock counts as released.
func (m *Manager) Release(ctx context.Context, resource, ownerID string) bool {
	if validate(resource, ownerID) != nil {
		return false
	}
	res, err := releaseScript.Run(ctx, m.client, []string{m.key(resource)}, ownerID).Int()
	if err != nil {
		m.logger.Warn("release lock failed", zap.String("key", resource), zap.String("owner_id", ownerID), zap.Error(err))
		return false
	}
	return res == 1
}

// Status reports the current holder of resource.
func (m *Manager) Status(ctx context.Context, resource string) (models.LockInfo, error) {
	infos, err := m.statuses(ctx, []string{resource})
	if err != nil {
		return models.LockInfo{Key: resource, State: models.LockUnknown}, fmt.Errorf("%w: status %s: %v", models.ErrLock, resource, err)
	}
	return infos[0], nil
}

// StatusBatch reports holders for many keys in one round trip. Keys whose lookup fails are
// reported as UNKNOWN instead of failing the batch.
func (m *Manager) StatusBatch(ctx context.Context, resources []string) []models.LockInfo {
	infos, err := m.statuses(ctx, resources)
	if err != nil {
		m.logger.Warn("batch lock status failed", zap.Int("keys", len(resources)), zap.Error(err))
	}
	return infos
}

// statuses returns one entry per resource. A failed round trip marks every entry UNKNOWN.
func (m *Manager) statuses(ctx context.Context, resources []string) ([]models.LockInfo, error) {
	infos := make([]models.LockInfo, len(resources))
	if len(resources) == 0 {
		return infos, nil
	}

	pipe := m.client.Pipeline()
	fields := make([]*redis.MapStringStringCmd, len(resources))
	ttls := make([]*redis.DurationCmd, len(resources))
	for i, resource := range resources {
		fields[i] = pipe.HGetAll(ctx, m.key(resource))
		ttls[i] = pipe.PTTL(ctx, m.key(resource))
	}
	_, execErr := pipe.Exec(ctx)
	if execErr != nil && !errors.Is(execErr, redis.Nil) {
		// Commands of a failed pipeline may carry no error of their own.
		for i, resource := range resources {
			infos[i] = models.LockInfo{Key: resource, State: models.LockUnknown}
		}
		return infos, execErr
	}

	failed := 0
	for i, resource := range resources {
		info, err := decode(resource, fields[i], ttls[i])
		if err != nil {
			failed++
			infos[i] = models.LockInfo{Key: resource, State: models.LockUnknown}
			continue
		}
		infos[i] = info
	}
	if failed > 0 {
		m.logger.Warn("lock status lookups failed", zap.Int("failed", failed), zap.Int("keys", len(resources)))
	}
	return infos, nil
}

func decode(resource string, fields *redis.MapStringStringCmd, ttl *redis.DurationCmd) (models.LockInfo, error) {
	values, err := fields.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.LockInfo{}, err
	}
	owner := values[fieldOwnerID]
	if owner == "" {
		return models.LockInfo{Key: resource, State: models.LockFree}, nil
	}

	info := models.LockInfo{
		Key:       resource,
		State:     models.LockHeld,
		OwnerID:   owner,
		OwnerName: values[fieldOwnerName],
	}
	if ms, err := strconv.ParseInt(values[fieldLockedAt], 10, 64); err == nil {
		info.LockedAt = time.UnixMilli(ms).UTC()
	}
	if remaining, err := ttl.Result(); err == nil && remaining > 0 {
		info.ExpiresIn = remaining
	}
	return info, nil
}
