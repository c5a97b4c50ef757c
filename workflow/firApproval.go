package workflow

import (
	"context"
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/fir_backend/config"
	"bitbucket.org/mmdatafocus/fir_backend/models"
	"bitbucket.org/mmdatafocus/fir_backend/utils"
)

var tracer = otel.Tracer("fir_backend/workflow")

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// ApproveFIR migrates a pending_approval draft into the final store.
//
// Step order is insert-final-then-delete-draft and must stay that way: a
// crash between the two steps leaves a recoverable duplicate (draft and
// final both exist, cleaned by reconciliation) instead of losing the
// record. There is no cross-store transaction; the status-guarded writes
// and the unique index on final_firs.fir_number are what make concurrent
// approvals safe. The advisory locks only narrow the race window.
func ApproveFIR(ctx context.Context, id int, approvedBy string) (*models.FinalFIR, error) {
	ctx, span := tracer.Start(ctx, "ApproveFIR")
	defer span.End()
	span.SetAttributes(attribute.Int("fir.id", id))

	if username, ok := utils.GetUsernameFromContext(ctx); ok && username != "" {
		approvedBy = username
	}
	if approvedBy == "" {
		approvedBy = "inspector"
	}

	if redisLock := tryRedisApprovalLock(ctx, id); redisLock != nil {
		defer redisLock.Release(ctx)
	}

	db := config.GetDB()

	var final models.FinalFIR
	// GET_LOCK is connection-scoped, so pin one connection for the lock
	// and both writes.
	err := db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := AcquireFIRApprovalLock(conn, id); err != nil {
			return err
		}
		defer ReleaseFIRApprovalLock(conn, id)

		var draft models.DraftFIR
		if err := conn.First(&draft, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if !models.CanTransition(draft.Status, models.FIRStatusApproved) {
			return &utils.InvalidStateError{
				Current:   string(draft.Status),
				Requested: string(models.FIRStatusApproved),
			}
		}

		final = models.BuildFinalFromDraft(&draft, approvedBy, time.Now())
		err := conn.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&final).Error; err != nil {
				if isDuplicateKeyErr(err) {
					// Number already burned in the final store. The draft
					// is a stale leftover from an interrupted migration;
					// report the state, reconciliation removes the row.
					return &utils.InvalidStateError{
						Current:   string(models.FIRStatusApproved),
						Requested: string(models.FIRStatusApproved),
					}
				}
				return err
			}
			return models.RecordFIREvent(tx, ctx, models.FIREventApproved,
				final.ID, final.FIRNumber, "FIR "+final.FIRNumber+" approved and finalized", &final)
		})
		if err != nil {
			return err
		}

		// Separate statement on purpose. If the process dies before this
		// delete, the draft survives as a stale duplicate and is swept by
		// ReconcileStaleDrafts.
		return conn.
			Where("id = ? AND status = ?", id, models.FIRStatusPendingApproval).
			Delete(&models.DraftFIR{}).Error
	})
	if err != nil {
		return nil, err
	}

	config.RemoveRedisKey("fir:counts")
	span.SetAttributes(attribute.String("fir.number", final.FIRNumber))
	return &final, nil
}
