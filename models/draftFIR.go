package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/fir_backend/config"
	"bitbucket.org/mmdatafocus/fir_backend/lawgpt"
	"bitbucket.org/mmdatafocus/fir_backend/utils"
)

// DraftFIR lives in draft_firs and holds the mutable states
// (draft, pending_approval). Approved records live in final_firs.
type DraftFIR struct {
	ID              int               `gorm:"primary_key" json:"id"`
	FIRNumber       string            `gorm:"column:fir_number;size:64;uniqueIndex;not null" json:"firNumber"`
	CaseDescription string            `gorm:"type:text;not null" json:"caseDescription"`
	Description     string            `gorm:"type:text" json:"description"`
	IPCPredictions  IPCPredictionList `gorm:"column:ipc_predictions;type:json" json:"ipcPredictions"`
	Status          FIRStatus         `gorm:"type:enum('draft','pending_approval');not null;default:'draft';index:idx_draft_status_created,priority:1" json:"status"`
	Victim          string            `gorm:"size:255" json:"victim"`
	Accused         string            `gorm:"size:255" json:"accused"`
	Incident        string            `gorm:"type:text" json:"incident"`
	Date            string            `gorm:"size:32" json:"date"`
	Time            string            `gorm:"size:32" json:"time"`
	Location        string            `gorm:"size:255" json:"location"`
	CreatedBy       string            `gorm:"size:100" json:"createdBy"`
	CreatedAt       time.Time         `gorm:"autoCreateTime;index:idx_draft_status_created,priority:2,sort:desc" json:"createdAt"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updatedAt"`
}

// NewFIR is the create payload. FIRNumber is only honored on the legacy
// create-draft route; the canonical create always generates one.
type NewFIR struct {
	FIRNumber       string `json:"firNumber" validate:"omitempty,max=64"`
	CaseDescription string `json:"caseDescription" validate:"omitempty,max=20000"`
	Description     string `json:"description" validate:"omitempty,max=20000"`
	Victim          string `json:"victim" validate:"omitempty,max=255"`
	Accused         string `json:"accused" validate:"omitempty,max=255"`
	Incident        string `json:"incident" validate:"omitempty,max=20000"`
	Date            string `json:"date" validate:"omitempty,max=32"`
	Time            string `json:"time" validate:"omitempty,max=32"`
	Location        string `json:"location" validate:"omitempty,max=255"`
	CreatedBy       string `json:"createdBy" validate:"omitempty,max=100"`
}

// UpdateFIR is the edit payload. Nil means "leave unchanged".
// Status, firNumber and createdAt are not patchable here.
type UpdateFIR struct {
	CaseDescription *string `json:"caseDescription" validate:"omitempty,max=20000"`
	Description     *string `json:"description" validate:"omitempty,max=20000"`
	Victim          *string `json:"victim" validate:"omitempty,max=255"`
	Accused         *string `json:"accused" validate:"omitempty,max=255"`
	Incident        *string `json:"incident" validate:"omitempty,max=20000"`
	Date            *string `json:"date" validate:"omitempty,max=32"`
	Time            *string `json:"time" validate:"omitempty,max=32"`
	Location        *string `json:"location" validate:"omitempty,max=255"`
}

// IPCPredictor abstracts the prediction service so lifecycle code can be
// tested without HTTP.
type IPCPredictor interface {
	PredictIPCSections(ctx context.Context, caseDescription string) ([]lawgpt.Prediction, error)
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// predictBestEffort absorbs every prediction failure into an empty list.
// Degraded operation (no predictions) is a supported mode, not an error.
func predictBestEffort(ctx context.Context, predictor IPCPredictor, caseText string) IPCPredictionList {
	if predictor == nil || config.PredictionsDisabled() {
		return IPCPredictionList{}
	}

	predictions, err := predictor.PredictIPCSections(ctx, caseText)
	if err != nil {
		logger := config.GetLogger()
		config.LogError(logger, "models", "predictBestEffort", "predict ipc sections", caseText, err)
		return IPCPredictionList{}
	}

	out := make(IPCPredictionList, 0, len(predictions))
	for i, p := range predictions {
		if i >= MaxIPCPredictions {
			break
		}
		out = append(out, IPCPrediction{
			Section:    p.Section,
			Offense:    p.Offense,
			Punishment: p.Punishment,
			Confidence: p.Confidence,
		})
	}
	return out
}

// resolveFIRNumber settles the number before the insert. The draft
// unique index cannot see numbers that migrated to final_firs on
// approval, so the final store is checked explicitly: a caller-supplied
// number that is already finalized is a hard duplicate, a generated one
// gets a single regeneration.
func resolveFIRNumber(ctx context.Context, requested string) (string, error) {
	if utils.IsValidFIRNumber(requested) {
		exists, err := FinalFIRNumberExists(ctx, requested)
		if err != nil {
			return "", err
		}
		if exists {
			return "", &utils.DuplicateFIRNumberError{FIRNumber: requested}
		}
		return requested, nil
	}

	firNumber := utils.GenerateFIRNumber(time.Now())
	exists, err := FinalFIRNumberExists(ctx, firNumber)
	if err != nil {
		return "", err
	}
	if !exists {
		return firNumber, nil
	}
	firNumber = utils.GenerateFIRNumber(time.Now())
	if exists, err = FinalFIRNumberExists(ctx, firNumber); err != nil {
		return "", err
	} else if exists {
		return "", &utils.DuplicateFIRNumberError{FIRNumber: firNumber}
	}
	return firNumber, nil
}

// CreateDraftFIR inserts a new draft. The prediction call is best-effort;
// uniqueness spans both tables, enforced by the unique index on
// fir_number plus the final-store check in resolveFIRNumber, with one
// regeneration retry before surfacing DuplicateFIRNumberError.
func CreateDraftFIR(ctx context.Context, input *NewFIR, predictor IPCPredictor) (*DraftFIR, error) {

	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	caseText := utils.FirstNonEmpty(input.CaseDescription, input.Description, input.Incident)
	if strings.TrimSpace(caseText) == "" {
		return nil, utils.NewValidationError("caseDescription", "case description is required")
	}

	predictions := predictBestEffort(ctx, predictor, caseText)

	createdBy := input.CreatedBy
	if username, ok := utils.GetUsernameFromContext(ctx); ok && username != "" {
		createdBy = username
	}
	if createdBy == "" {
		createdBy = "user"
	}

	now := time.Now()
	firNumber, err := resolveFIRNumber(ctx, input.FIRNumber)
	if err != nil {
		return nil, err
	}

	fir := DraftFIR{
		FIRNumber:       firNumber,
		CaseDescription: caseText,
		Description:     utils.FirstNonEmpty(input.Description, caseText),
		IPCPredictions:  predictions,
		Status:          FIRStatusDraft,
		Victim:          input.Victim,
		Accused:         input.Accused,
		Incident:        input.Incident,
		Date:            utils.FirstNonEmpty(input.Date, now.Format("2006-01-02")),
		Time:            utils.FirstNonEmpty(input.Time, now.Format("15:04:05")),
		Location:        input.Location,
		CreatedBy:       createdBy,
	}

	err = db.WithContext(ctx).Create(&fir).Error
	if isDuplicateKeyErr(err) {
		// Lost a race inside draft_firs. Regenerate once, then give up
		// with the typed error so the caller can retry.
		fir.ID = 0
		fir.FIRNumber, err = resolveFIRNumber(ctx, "")
		if err != nil {
			return nil, err
		}
		err = db.WithContext(ctx).Create(&fir).Error
		if isDuplicateKeyErr(err) {
			return nil, &utils.DuplicateFIRNumberError{FIRNumber: fir.FIRNumber}
		}
	}
	if err != nil {
		return nil, err
	}

	config.RemoveRedisKey(firCountsCacheKey)
	return &fir, nil
}

// UpdateDraftFIR patches mutable fields. When the description text
// changes, predictions are refreshed best-effort and overwritten.
func UpdateDraftFIR(ctx context.Context, id int, patch *UpdateFIR, predictor IPCPredictor) (*DraftFIR, error) {

	db := config.GetDB()

	if err := utils.ValidateStruct(patch); err != nil {
		return nil, err
	}

	var fir DraftFIR
	if err := db.WithContext(ctx).First(&fir, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	updates := map[string]interface{}{}
	descriptionChanged := false

	if patch.CaseDescription != nil && *patch.CaseDescription != fir.CaseDescription {
		updates["case_description"] = *patch.CaseDescription
		fir.CaseDescription = *patch.CaseDescription
		descriptionChanged = true
	}
	if patch.Description != nil && *patch.Description != fir.Description {
		updates["description"] = *patch.Description
		fir.Description = *patch.Description
		descriptionChanged = true
	}
	if patch.Victim != nil {
		updates["victim"] = *patch.Victim
		fir.Victim = *patch.Victim
	}
	if patch.Accused != nil {
		updates["accused"] = *patch.Accused
		fir.Accused = *patch.Accused
	}
	if patch.Incident != nil {
		updates["incident"] = *patch.Incident
		fir.Incident = *patch.Incident
	}
	if patch.Date != nil {
		updates["date"] = *patch.Date
		fir.Date = *patch.Date
	}
	if patch.Time != nil {
		updates["time"] = *patch.Time
		fir.Time = *patch.Time
	}
	if patch.Location != nil {
		updates["location"] = *patch.Location
		fir.Location = *patch.Location
	}

	if descriptionChanged {
		caseText := utils.FirstNonEmpty(fir.CaseDescription, fir.Description)
		if strings.TrimSpace(caseText) != "" {
			fir.IPCPredictions = predictBestEffort(ctx, predictor, caseText)
			updates["ipc_predictions"] = fir.IPCPredictions
		}
	}

	if len(updates) == 0 {
		return &fir, nil
	}

	if err := db.WithContext(ctx).Model(&DraftFIR{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).First(&fir, id).Error; err != nil {
		return nil, err
	}
	return &fir, nil
}

// transitionDraftStatus performs a status-guarded write. The WHERE clause
// carrying the expected current status is the concurrency control; a lost
// race shows up as RowsAffected == 0 and is diagnosed by re-reading.
func transitionDraftStatus(ctx context.Context, id int, from FIRStatus, to FIRStatus, eventType FIREventType, messageFormat string) (*DraftFIR, error) {

	db := config.GetDB()

	var fir DraftFIR
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&DraftFIR{}).
			Where("id = ? AND status = ?", id, from).
			Update("status", to)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if err := tx.First(&fir, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return utils.ErrorRecordNotFound
				}
				return err
			}
			return &utils.InvalidStateError{
				Current:   string(fir.Status),
				Requested: string(to),
			}
		}

		if err := tx.First(&fir, id).Error; err != nil {
			return err
		}

		return RecordFIREvent(tx, ctx, eventType, fir.ID, fir.FIRNumber, fmt.Sprintf(messageFormat, fir.FIRNumber), &fir)
	})
	if err != nil {
		return nil, err
	}

	config.RemoveRedisKey(firCountsCacheKey)
	return &fir, nil
}

// SubmitFIRForApproval moves draft -> pending_approval. Submitting a
// record already pending is an InvalidStateError, not a silent success.
func SubmitFIRForApproval(ctx context.Context, id int) (*DraftFIR, error) {
	return transitionDraftStatus(ctx, id,
		FIRStatusDraft, FIRStatusPendingApproval,
		FIREventSubmitted, "FIR %s submitted for approval")
}

// RejectFIR moves pending_approval -> draft so the officer can rework it.
func RejectFIR(ctx context.Context, id int) (*DraftFIR, error) {
	return transitionDraftStatus(ctx, id,
		FIRStatusPendingApproval, FIRStatusDraft,
		FIREventRejected, "FIR %s sent back to draft")
}

// DeleteDraftFIR removes a draft or pending record. Approved records are
// immutable and never deletable through this path.
func DeleteDraftFIR(ctx context.Context, id int) error {

	db := config.GetDB()

	var fir DraftFIR
	if err := db.WithContext(ctx).First(&fir, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if _, ferr := GetFinalFIR(ctx, id); ferr == nil {
				return &utils.InvalidStateError{
					Current:   string(FIRStatusApproved),
					Requested: "deleted",
				}
			}
			return utils.ErrorRecordNotFound
		}
		return err
	}

	result := db.WithContext(ctx).
		Where("id = ? AND status IN ?", id, []FIRStatus{FIRStatusDraft, FIRStatusPendingApproval}).
		Delete(&DraftFIR{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}

	config.RemoveRedisKey(firCountsCacheKey)
	return nil
}

// GetDraftFIR loads a draft by id.
func GetDraftFIR(ctx context.Context, id int) (*DraftFIR, error) {
	db := config.GetDB()

	var fir DraftFIR
	if err := db.WithContext(ctx).First(&fir, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &fir, nil
}
