package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"lessonflow/internal/models"

	"github.com/redis/go-redis/v9"
)

const reservationPrefix = "slot_reservation:"

// reserveScript: KEYS[1] slot key; ARGV session_id, lesson_type, expires_ms,
// created_ms, now_ms, ttl_ms, date, time.
var reserveScript = redis.NewScript(`
local owner = redis.call('HGET', KEYS[1], 'session_id')
if owner and owner ~= ARGV[1] then
  local exp = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
  if exp and exp > tonumber(ARGV[5]) then
    return 0
  end
end
local created = ARGV[4]
if owner == ARGV[1] then
  created = redis.call('HGET', KEYS[1], 'created_at') or ARGV[4]
end
redis.call('HSET', KEYS[1],
  'date', ARGV[7], 'time', ARGV[8], 'session_id', ARGV[1],
  'lesson_type', ARGV[2], 'expires_at', ARGV[3], 'created_at', created)
redis.call('PEXPIRE', KEYS[1], ARGV[6])
return 1
`)

var releaseScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'session_id') == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

var sweepScript = redis.NewScript(`
local exp = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
if exp and exp <= tonumber(ARGV[1]) then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisReservationRepository keeps one hash per slot. Keys also carry a
// PEXPIRE so redis drops abandoned reservations on its own.
type RedisReservationRepository struct {
	client *redis.Client
}

func NewRedisReservationRepository(client *redis.Client) *RedisReservationRepository {
	return &RedisReservationRepository{client: client}
}

func reservationKey(date, slotTime string) string {
	return reservationPrefix + date + ":" + slotTime
}

func (r *RedisReservationRepository) InsertIfAvailable(ctx context.Context, res *models.Reservation, now time.Time) (*models.Reservation, bool, error) {
	if r.client == nil {
		return nil, false, errNilClient
	}
	ttl := res.ExpiresAt.Sub(now).Milliseconds()
	if ttl < 1 {
		ttl = 1
	}
	key := reservationKey(res.Date, res.Time)
	ok, err := reserveScript.Run(ctx, r.client, []string{key},
		res.SessionID,
		string(res.LessonType),
		res.ExpiresAt.UnixMilli(),
		res.CreatedAt.UnixMilli(),
		now.UnixMilli(),
		ttl,
		res.Date,
		res.Time,
	).Int()
	if err != nil {
		return nil, false, fmt.Errorf("failed to reserve slot in redis: %w", err)
	}
	if ok == 1 {
		return nil, true, nil
	}

	holder, err := r.GetReservation(ctx, res.Date, res.Time)
	if err != nil {
		return nil, false, err
	}
	return holder, false, nil
}

func (r *RedisReservationRepository) GetReservation(ctx context.Context, date, slotTime string) (*models.Reservation, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	return r.load(ctx, reservationKey(date, slotTime))
}

func (r *RedisReservationRepository) DeleteIfOwner(ctx context.Context, date, slotTime, sessionID string) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	n, err := releaseScript.Run(ctx, r.client, []string{reservationKey(date, slotTime)}, sessionID).Int()
	if err != nil {
		return false, fmt.Errorf("failed to release slot in redis: %w", err)
	}
	return n > 0, nil
}

func (r *RedisReservationRepository) ListReservations(ctx context.Context, date string) ([]*models.Reservation, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	keys, err := r.scan(ctx, reservationPrefix+date+":*")
	if err != nil {
		return nil, err
	}

	var out []*models.Reservation
	for _, key := range keys {
		res, err := r.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if res != nil {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (r *RedisReservationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if r.client == nil {
		return 0, errNilClient
	}
	keys, err := r.scan(ctx, reservationPrefix+"*")
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, key := range keys {
		n, err := sweepScript.Run(ctx, r.client, []string{key}, now.UnixMilli()).Int64()
		if err != nil {
			return removed, fmt.Errorf("failed to sweep %s: %w", key, err)
		}
		removed += n
	}
	return removed, nil
}

func (r *RedisReservationRepository) scan(ctx context.Context, match string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservations: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (r *RedisReservationRepository) load(ctx context.Context, key string) (*models.Reservation, error) {
	fields, err := r.client.HGetAll(ctx, key).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(fields) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation from redis: %w", err)
	}

	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("reservation %s has bad expires_at: %w", key, err)
	}
	createdAt, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	return &models.Reservation{
		Date:       fields["date"],
		Time:       fields["time"],
		LessonType: models.LessonType(fields["lesson_type"]),
		SessionID:  fields["session_id"],
		ExpiresAt:  time.UnixMilli(expiresAt),
		CreatedAt:  time.UnixMilli(createdAt),
	}, nil
}
