package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/fir_backend/config"
	"bitbucket.org/mmdatafocus/fir_backend/utils"
)

// FinalFIR lives in final_firs and is write-once: inserted by the approve
// migration and never updated or deleted afterwards.
type FinalFIR struct {
	ID              int               `gorm:"primary_key" json:"id"`
	FIRNumber       string            `gorm:"column:fir_number;size:64;uniqueIndex;not null" json:"firNumber"`
	CaseDescription string            `gorm:"type:text;not null" json:"caseDescription"`
	Description     string            `gorm:"type:text" json:"description"`
	IPCPredictions  IPCPredictionList `gorm:"column:ipc_predictions;type:json" json:"ipcPredictions"`
	Status          FIRStatus         `gorm:"type:enum('approved');not null;default:'approved'" json:"status"`
	Victim          string            `gorm:"size:255" json:"victim"`
	Accused         string            `gorm:"size:255" json:"accused"`
	Incident        string            `gorm:"type:text" json:"incident"`
	Date            string            `gorm:"size:32" json:"date"`
	Time            string            `gorm:"size:32" json:"time"`
	Location        string            `gorm:"size:255" json:"location"`
	CreatedBy       string            `gorm:"size:100" json:"createdBy"`
	ApprovedBy      string            `gorm:"size:100" json:"approvedBy"`
	ApprovedAt      time.Time         `gorm:"index;not null" json:"approvedAt"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updatedAt"`
}

// BuildFinalFromDraft copies every field from the draft, including its
// ID: the migration deletes the draft row, so carrying the id keeps
// lookups by id unambiguous across the two stores. CreatedAt is
// preserved so the record keeps its original filing time; ApprovedAt is
// the migration time.
func BuildFinalFromDraft(draft *DraftFIR, approvedBy string, approvedAt time.Time) FinalFIR {
	return FinalFIR{
		ID:              draft.ID,
		FIRNumber:       draft.FIRNumber,
		CaseDescription: draft.CaseDescription,
		Description:     draft.Description,
		IPCPredictions:  draft.IPCPredictions,
		Status:          FIRStatusApproved,
		Victim:          draft.Victim,
		Accused:         draft.Accused,
		Incident:        draft.Incident,
		Date:            draft.Date,
		Time:            draft.Time,
		Location:        draft.Location,
		CreatedBy:       draft.CreatedBy,
		ApprovedBy:      approvedBy,
		ApprovedAt:      approvedAt,
		CreatedAt:       draft.CreatedAt,
	}
}

// GetFinalFIR loads an approved record by id.
func GetFinalFIR(ctx context.Context, id int) (*FinalFIR, error) {
	db := config.GetDB()

	var fir FinalFIR
	if err := db.WithContext(ctx).First(&fir, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &fir, nil
}

// FinalFIRNumberExists reports whether fir_number is already burned in
// the final store.
func FinalFIRNumberExists(ctx context.Context, firNumber string) (bool, error) {
	count, err := utils.ResourceCountWhere[FinalFIR](ctx, "fir_number = ?", firNumber)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
