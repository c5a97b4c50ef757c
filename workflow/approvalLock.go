package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/fir_backend/config"
)

// AcquireFIRApprovalLock serializes approval per FIR across instances using
// MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the approval transaction.
func AcquireFIRApprovalLock(tx *gorm.DB, firId int) error {
	lockName := fmt.Sprintf("fir:approve:%d", firId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire approval lock for fir_id=%d", firId)
	}
	return nil
}

func ReleaseFIRApprovalLock(tx *gorm.DB, firId int) {
	lockName := fmt.Sprintf("fir:approve:%d", firId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// tryRedisApprovalLock is a best-effort optimization to shed duplicate
// approve calls early; reliability comes from the MySQL advisory lock and
// the status-guarded writes, not from redis.
func tryRedisApprovalLock(ctx context.Context, firId int) *redislock.Lock {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil
	}
	lock, err := locker.Obtain(ctx, fmt.Sprintf("lock:fir:approve:%d", firId), 30*time.Second, nil)
	if err != nil {
		return nil
	}
	return lock
}
