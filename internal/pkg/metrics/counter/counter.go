package counter

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/courseloop/courseloop/app/models"
	"github.com/courseloop/courseloop/internal/pkg/cache"
	"github.com/courseloop/courseloop/internal/pkg/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const webhookCountersKey = "billing:counters:webhook"

// Webhook outcome metrics accumulated in Redis and flushed to the database.
const (
	MetricWebhookReceived  = "webhook_received"
	MetricWebhookDuplicate = "webhook_duplicate"
	MetricWebhookRejected  = "webhook_rejected"
	MetricWebhookProcessed = "webhook_processed"
	MetricWebhookFailed    = "webhook_failed"
)

// AddWebhookOutcome increments the pending counter for a webhook outcome in Redis
func AddWebhookOutcome(metric string) {
	ctx := context.Background()
	if err := cache.GetClient().HIncrBy(ctx, webhookCountersKey, metric, 1).Err(); err != nil {
		log.Printf("failed to increment %s: %v", metric, err)
	}
}

// FlushAll flushes pending webhook counters to the database
func FlushAll() error {
	return flushHashToStats(webhookCountersKey)
}

// flushHashToStats drains a Redis hash atomically and applies batched increments
// to the billing_stats table. Uses RENAME to a temporary key for atomic drain
// without losing in-flight increments.
func flushHashToStats(redisKey string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	// Atomically move the hash to a temp key for draining
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		return err
	}

	fields, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}

	db := database.GetDB()
	for metric, raw := range fields {
		delta, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || delta == 0 {
			continue
		}
		err = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "metric"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + ?", delta)}),
		}).Create(&models.BillingStat{Metric: metric, Count: delta}).Error
		if err != nil {
			return err
		}
	}

	return rdb.Del(ctx, tmpKey).Err()
}

// StartFlusher periodically flushes counters until the context is canceled.
func StartFlusher(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := FlushAll(); err != nil {
					log.Printf("failed to flush billing counters: %v", err)
				}
			}
		}
	}()
}
