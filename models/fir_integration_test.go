package models_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/fir_backend/config"
	"bitbucket.org/mmdatafocus/fir_backend/lawgpt"
	"bitbucket.org/mmdatafocus/fir_backend/models"
	"bitbucket.org/mmdatafocus/fir_backend/utils"
	"bitbucket.org/mmdatafocus/fir_backend/workflow"
)

// FIR lifecycle round-trip against a real MySQL.
//
// Usage: INTEGRATION_TESTS=1 go test ./models -run FIRLifecycle -v
// Requires DB_* env vars pointing at a disposable database.

func requireIntegrationDB(t *testing.T) {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires mysql)")
	}
	config.ConnectDatabaseWithRetry()
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

// nullPredictor stands in for an unreachable prediction service.
type nullPredictor struct{}

func (nullPredictor) PredictIPCSections(ctx context.Context, caseDescription string) ([]lawgpt.Prediction, error) {
	return []lawgpt.Prediction{}, nil
}

func TestFIRLifecycle_RoundTrip(t *testing.T) {
	requireIntegrationDB(t)
	ctx := context.Background()

	fir, err := models.CreateDraftFIR(ctx, &models.NewFIR{
		CaseDescription: "mobile phone stolen near market",
		Victim:          "A. Kumar",
		Location:        "City Market",
		CreatedBy:       "officer-7",
	}, nullPredictor{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if fir.Status != models.FIRStatusDraft {
		t.Fatalf("status = %s, want draft", fir.Status)
	}
	if len(fir.IPCPredictions) != 0 {
		t.Fatalf("predictions = %+v, want empty with service unavailable", fir.IPCPredictions)
	}
	if !utils.IsValidFIRNumber(fir.FIRNumber) {
		t.Fatalf("bad fir number %q", fir.FIRNumber)
	}

	// Reject/resubmit cycle must lose nothing.
	if _, err := models.SubmitFIRForApproval(ctx, fir.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := models.SubmitFIRForApproval(ctx, fir.ID); !utils.IsInvalidStateError(err) {
		t.Fatalf("double submit must be InvalidStateError, got %v", err)
	}
	if _, err := models.RejectFIR(ctx, fir.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := models.SubmitFIRForApproval(ctx, fir.ID); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	final, err := workflow.ApproveFIR(ctx, fir.ID, "inspector-2")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if final.Status != models.FIRStatusApproved || final.ApprovedBy != "inspector-2" {
		t.Fatalf("final record wrong: %+v", final)
	}
	if final.FIRNumber != fir.FIRNumber || final.CaseDescription != fir.CaseDescription {
		t.Fatal("content fields must carry over from the draft")
	}
	if final.ID != fir.ID {
		t.Fatalf("final id = %d, want the draft id %d so ids never alias across stores", final.ID, fir.ID)
	}

	// The draft is gone; the id now resolves nowhere in the draft store.
	if _, err := models.GetDraftFIR(ctx, fir.ID); err != utils.ErrorRecordNotFound {
		t.Fatalf("draft must be deleted after approval, got %v", err)
	}

	// Fetching by the id the approve response returned must yield the
	// approved record, not some unrelated draft.
	draftRes, finalRes, err := models.GetFIRByID(ctx, fir.ID)
	if err != nil {
		t.Fatalf("get by id after approval: %v", err)
	}
	if draftRes != nil || finalRes == nil || finalRes.FIRNumber != fir.FIRNumber {
		t.Fatalf("lookup by id resolved wrong record: draft=%+v final=%+v", draftRes, finalRes)
	}

	// A second approval attempt on the old id must fail loudly.
	if _, err := workflow.ApproveFIR(ctx, fir.ID, "inspector-2"); err == nil {
		t.Fatal("re-approve must not be a silent no-op")
	}

	// Approved records are not deletable.
	if err := models.DeleteDraftFIR(ctx, final.ID); err == nil {
		t.Fatal("deleting an approved record must fail")
	}
}

func TestFIRLifecycle_NumberUniqueAcrossStores(t *testing.T) {
	requireIntegrationDB(t)
	ctx := context.Background()

	fir, err := models.CreateDraftFIR(ctx, &models.NewFIR{
		CaseDescription: "scooter theft outside the court complex",
		CreatedBy:       "officer-5",
	}, nullPredictor{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := models.SubmitFIRForApproval(ctx, fir.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	final, err := workflow.ApproveFIR(ctx, fir.ID, "inspector-4")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	// The draft unique index cannot see numbers that migrated out on
	// approval, so a create reusing a finalized number must be refused
	// up front instead of being created and later swept as a stale row.
	_, err = models.CreateDraftFIR(ctx, &models.NewFIR{
		FIRNumber:       final.FIRNumber,
		CaseDescription: "unrelated burglary report",
		CreatedBy:       "officer-6",
	}, nullPredictor{})
	if !utils.IsDuplicateFIRNumberError(err) {
		t.Fatalf("want DuplicateFIRNumberError, got %v", err)
	}

	removed, err := workflow.ReconcileStaleDrafts(ctx, config.GetDB())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if removed != 0 {
		t.Fatalf("reconcile removed %d drafts, want 0", removed)
	}
}

func TestFIRLifecycle_CountsAndSearch(t *testing.T) {
	requireIntegrationDB(t)
	ctx := context.Background()

	fir, err := models.CreateDraftFIR(ctx, &models.NewFIR{
		CaseDescription: "gold chain snatching on station road",
		CreatedBy:       "officer-3",
	}, nullPredictor{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer models.DeleteDraftFIR(ctx, fir.ID)

	counts, err := models.CountFIRs(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Draft < 1 {
		t.Fatalf("draft count = %d, want >= 1", counts.Draft)
	}
	if counts.Pending != counts.PendingApproval {
		t.Fatal("legacy pending bucket must mirror pending_approval")
	}

	results, err := models.ListDraftFIRs(ctx, nil, "STATION ROAD", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	found := false
	for _, r := range results {
		if r.ID == fir.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("case-insensitive substring search did not find the draft")
	}
}
