package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/fir_backend/config"
	"bitbucket.org/mmdatafocus/fir_backend/utils"
)

const (
	firCountsCacheKey = "fir:counts"
	firCountsCacheTTL = 30 * time.Second
	maxListLimit      = 100
)

// FIRCounts is the status-bucketed dashboard summary. The legacy
// "pending" field mirrors pending_approval; "rejected" is always zero
// because rejection returns a record to draft instead of tombstoning it.
type FIRCounts struct {
	Draft           int64 `json:"draft"`
	PendingApproval int64 `json:"pending_approval"`
	Pending         int64 `json:"pending"`
	Approved        int64 `json:"approved"`
	Rejected        int64 `json:"rejected"`
}

// CountFIRs aggregates both stores. Results are cached briefly in redis;
// writers invalidate the key, so the cache is an optimization only.
func CountFIRs(ctx context.Context) (*FIRCounts, error) {

	var cached FIRCounts
	if hit, err := config.GetRedisObject(firCountsCacheKey, &cached); err == nil && hit {
		return &cached, nil
	}

	db := config.GetDB()

	var rows []struct {
		Status FIRStatus
		Total  int64
	}
	if err := db.WithContext(ctx).Model(&DraftFIR{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := FIRCounts{}
	for _, row := range rows {
		switch row.Status {
		case FIRStatusDraft:
			counts.Draft = row.Total
		case FIRStatusPendingApproval:
			counts.PendingApproval = row.Total
			counts.Pending = row.Total
		}
	}

	var approved int64
	if err := db.WithContext(ctx).Model(&FinalFIR{}).Count(&approved).Error; err != nil {
		return nil, err
	}
	counts.Approved = approved

	config.SetRedisObject(firCountsCacheKey, counts, firCountsCacheTTL)
	return &counts, nil
}

func clampListLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func searchPattern(search string) string {
	return "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
}

// ListDraftFIRs returns draft-store records newest first. status narrows
// to one state; nil includes both draft and pending_approval. search is a
// case-insensitive substring match over description and number fields.
func ListDraftFIRs(ctx context.Context, status *FIRStatus, search string, limit int) ([]*DraftFIR, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&DraftFIR{})

	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	} else {
		dbCtx = dbCtx.Where("status IN ?", []FIRStatus{FIRStatusDraft, FIRStatusPendingApproval})
	}

	if strings.TrimSpace(search) != "" {
		pattern := searchPattern(search)
		dbCtx = dbCtx.Where(
			"LOWER(case_description) LIKE ? OR LOWER(description) LIKE ? OR LOWER(fir_number) LIKE ?",
			pattern, pattern, pattern,
		)
	}

	var firs []*DraftFIR
	if err := dbCtx.Order("created_at DESC").Limit(clampListLimit(limit)).Find(&firs).Error; err != nil {
		return nil, err
	}
	return firs, nil
}

// ListFinalFIRs returns approved records, most recently approved first.
func ListFinalFIRs(ctx context.Context, search string, limit int) ([]*FinalFIR, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&FinalFIR{})

	if strings.TrimSpace(search) != "" {
		pattern := searchPattern(search)
		dbCtx = dbCtx.Where(
			"LOWER(case_description) LIKE ? OR LOWER(description) LIKE ? OR LOWER(fir_number) LIKE ?",
			pattern, pattern, pattern,
		)
	}

	var firs []*FinalFIR
	if err := dbCtx.Order("approved_at DESC").Limit(clampListLimit(limit)).Find(&firs).Error; err != nil {
		return nil, err
	}
	return firs, nil
}

// GetFIRByID checks the draft store first, then the final store.
// Exactly one of the results is non-nil on success.
func GetFIRByID(ctx context.Context, id int) (*DraftFIR, *FinalFIR, error) {

	draft, err := GetDraftFIR(ctx, id)
	if err == nil {
		return draft, nil, nil
	}
	if err != utils.ErrorRecordNotFound {
		return nil, nil, err
	}

	final, err := GetFinalFIR(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return nil, final, nil
}
