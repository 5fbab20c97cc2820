package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/medvault-scheduling/internal/appointment"
)

const availableKey = "schedules:available"

func doctorSchedulesKey(doctorUserID int64) string {
	return fmt.Sprintf("schedules:doctor:%d", doctorUserID)
}

// ScheduleCache keeps schedule listings in Redis for a short TTL. Every
// failure is logged and treated as a miss; Postgres stays the source of truth.
type ScheduleCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewScheduleCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ScheduleCache {
	return &ScheduleCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

var _ appointment.ScheduleCache = (*ScheduleCache)(nil)

func (c *ScheduleCache) GetDoctorSchedules(ctx context.Context, doctorUserID int64) ([]appointment.Schedule, bool) {
	return c.get(ctx, doctorSchedulesKey(doctorUserID))
}

func (c *ScheduleCache) SetDoctorSchedules(ctx context.Context, doctorUserID int64, schedules []appointment.Schedule) {
	c.set(ctx, doctorSchedulesKey(doctorUserID), schedules)
}

func (c *ScheduleCache) GetAvailable(ctx context.Context) ([]appointment.Schedule, bool) {
	return c.get(ctx, availableKey)
}

func (c *ScheduleCache) SetAvailable(ctx context.Context, schedules []appointment.Schedule) {
	c.set(ctx, availableKey, schedules)
}

// Invalidate drops the doctor's listing and the global availability listing.
func (c *ScheduleCache) Invalidate(ctx context.Context, doctorUserID int64) {
	keys := []string{availableKey}
	if doctorUserID > 0 {
		keys = append(keys, doctorSchedulesKey(doctorUserID))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("schedule cache invalidate failed",
			zap.Int64("doctor_user_id", doctorUserID),
			zap.Error(err))
	}
}

func (c *ScheduleCache) get(ctx context.Context, key string) ([]appointment.Schedule, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("schedule cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var out []appointment.Schedule
	if err := json.Unmarshal(data, &out); err != nil {
		c.logger.Warn("schedule cache entry unreadable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return out, true
}

func (c *ScheduleCache) set(ctx context.Context, key string, schedules []appointment.Schedule) {
	if c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(schedules)
	if err != nil {
		c.logger.Warn("schedule cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("schedule cache write failed", zap.String("key", key), zap.Error(err))
	}
}
