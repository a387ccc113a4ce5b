package slotlock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/roza-in/client-sub001/internal/schedule"
)

const (
	slotKeyPrefix = "slotlock:slot:"
	idKeyPrefix   = "slotlock:id:"
)

// releaseScript deletes the slot key only if it still carries our token, so
// releasing an expired lock can never evict a newer holder's lock.
var releaseScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

type lockRecord struct {
	SlotKey     string    `json:"slot_key"`
	Holder      string    `json:"holder"`
	LockedUntil time.Time `json:"locked_until"`
}

// RedisManager implements Manager on a single Redis instance. The slot key is
// written with SET NX, which is the atomic check-and-insert the uniqueness
// invariant requires. Expiry is passive via the key TTL.
type RedisManager struct {
	client    *redis.Client
	ttl       time.Duration
	validator Validator
	occupancy OccupancyChecker
}

func NewRedisManager(client *redis.Client, ttl time.Duration, validator Validator, occupancy OccupancyChecker) *RedisManager {
	return &RedisManager{
		client:    client,
		ttl:       ttl,
		validator: validator,
		occupancy: occupancy,
	}
}

func slotKey(s Slot) string {
	return fmt.Sprintf("%s%s:%s:%d:%s", slotKeyPrefix, s.DoctorID, s.Day.Format("2006-01-02"), s.StartMin, s.Type)
}

func idKey(id uuid.UUID) string {
	return idKeyPrefix + id.String()
}

func (m *RedisManager) Acquire(ctx context.Context, slot Slot, holder string) (*Lock, error) {
	if err := m.validator.ValidateSlot(ctx, slot.DoctorID, slot.Day, slot.StartMin, slot.Type); err != nil {
		if errors.Is(err, schedule.ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}

	taken, err := m.occupancy.SlotTaken(ctx, slot.DoctorID, slot.Day, slot.StartMin, slot.Type)
	if err != nil {
		return nil, fmt.Errorf("check slot occupancy: %w", err)
	}
	if taken {
		return nil, ErrSlotUnavailable
	}

	now := time.Now()
	lock := &Lock{
		ID:          uuid.New(),
		Slot:        slot,
		Holder:      holder,
		LockedUntil: now.Add(m.ttl),
		CreatedAt:   now,
	}

	key := slotKey(slot)
	ok, err := m.client.SetNX(ctx, key, lock.ID.String(), m.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire slot lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyLocked
	}

	rec, err := json.Marshal(lockRecord{SlotKey: key, Holder: holder, LockedUntil: lock.LockedUntil})
	if err != nil {
		_ = m.releaseSlotKey(ctx, key, lock.ID)
		return nil, fmt.Errorf("marshal lock record: %w", err)
	}
	if err := m.client.Set(ctx, idKey(lock.ID), rec, m.ttl).Err(); err != nil {
		_ = m.releaseSlotKey(ctx, key, lock.ID)
		return nil, fmt.Errorf("store lock record: %w", err)
	}

	return lock, nil
}

// Release drops the lock. Releasing an unknown or already expired lock is a
// no-op, so callers may release unconditionally during rollback.
func (m *RedisManager) Release(ctx context.Context, lockID uuid.UUID) error {
	raw, err := m.client.Get(ctx, idKey(lockID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("load lock record: %w", err)
	}

	var rec lockRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return fmt.Errorf("decode lock record: %w", err)
	}

	if err := m.releaseSlotKey(ctx, rec.SlotKey, lockID); err != nil {
		return err
	}

	if err := m.client.Del(ctx, idKey(lockID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete lock record: %w", err)
	}

	return nil
}

func (m *RedisManager) releaseSlotKey(ctx context.Context, key string, lockID uuid.UUID) error {
	_, err := releaseScript.Run(ctx, m.client, []string{key}, lockID.String()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

func (m *RedisManager) IsActive(ctx context.Context, lockID uuid.UUID) (bool, error) {
	raw, err := m.client.Get(ctx, idKey(lockID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("load lock record: %w", err)
	}

	var rec lockRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return false, fmt.Errorf("decode lock record: %w", err)
	}

	val, err := m.client.Get(ctx, rec.SlotKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("load slot key: %w", err)
	}

	return val == lockID.String(), nil
}

// Reader exposes the active holds without the acquire/release machinery, so
// the availability calculator can read lock state without depending on the
// manager's validator wiring.
type Reader struct {
	client *redis.Client
}

func NewReader(client *redis.Client) *Reader {
	return &Reader{client: client}
}

// HeldStarts returns the start minutes of active locks for one doctor day,
// feeding the availability calculator. Implements availability.LockSource.
func (r *Reader) HeldStarts(ctx context.Context, doctorID uuid.UUID, day time.Time, t schedule.ConsultationType) (map[int]int, error) {
	pattern := fmt.Sprintf("%s%s:%s:*:%s", slotKeyPrefix, doctorID, day.Format("2006-01-02"), t)

	held := make(map[int]int)
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan slot locks: %w", err)
		}
		for _, key := range keys {
			start, ok := startMinFromKey(key)
			if !ok {
				continue
			}
			held[start]++
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return held, nil
}

func startMinFromKey(key string) (int, bool) {
	parts := strings.Split(strings.TrimPrefix(key, slotKeyPrefix), ":")
	if len(parts) != 4 {
		return 0, false
	}
	start, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, false
	}
	return start, true
}
