package utils

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/bakery_backend/config"
)

const dayLockTTL = 30 * time.Second

// DayLock serializes ledger-touching operations on one date across processes.
// The returned release func is always non-nil. Without redis (or with DAY_LOCK_ENABLED off)
// it is a no-op and the single-writer contract of the store applies.
func DayLock(ctx context.Context, dateKey string, moduleName string, functionName string) (func(), error) {
	noop := func() {}
	if !config.DayLockEnabled() {
		return noop, nil
	}
	locker := config.GetRedisLock()
	if locker == nil {
		return noop, nil
	}
	logger := config.GetLogger()

	lock, err := locker.Obtain(ctx, "day:"+dateKey, dayLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 5),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		config.LogError(logger, moduleName, functionName, "could not obtain day lock", dateKey, err)
		return noop, ErrDayBusy
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "error obtaining day lock", dateKey, err)
		return noop, err
	}

	return func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			config.LogError(logger, moduleName, functionName, "release day lock", dateKey, err)
		}
	}, nil
}
