package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func TestRedisWindow_FailsClosed(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	w := NewRedisWindow(rdb, "test:admission", AdmissionLimits{MaxConcurrent: 3, MaxRequests: 5, TimeWindow: time.Minute})
	if w.TryAdmit(context.Background(), time.Now()) {
		t.Error("unreachable admission backend must reject")
	}
}
