package lawgpt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/fir_backend/utils"
)

func newTestClient(serverURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    serverURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func TestPredictIPCSections_TheftScenario(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ipc_suggestions":[{"section_number":"379","offense":"Theft","punishment":"3 years","confidence":0.9}]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 5*time.Second)
	predictions, err := client.PredictIPCSections(context.Background(), "mobile phone stolen near market")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(predictions) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(predictions))
	}
	p := predictions[0]
	if p.Section != "379" || p.Offense != "Theft" || p.Punishment != "3 years" || p.Confidence != 0.9 {
		t.Fatalf("unexpected normalization: %+v", p)
	}
}

func TestPredictIPCSections_FieldPriorityAndDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"predictions":[
			{"section_label":"420","description":"Cheating","score":0.8},
			{"section":304,"punishment":"10 years"},
			{"offense":"Assault","confidence":0},
			{"section":"351"}
		]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 5*time.Second)
	predictions, err := client.PredictIPCSections(context.Background(), "some case text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(predictions) != 3 {
		t.Fatalf("expected cap at 3 predictions, got %d", len(predictions))
	}

	if predictions[0].Section != "420" || predictions[0].Offense != "Cheating" {
		t.Errorf("rank 0 field priority broken: %+v", predictions[0])
	}
	if predictions[0].Punishment != "Not specified" {
		t.Errorf("rank 0 missing punishment default: %+v", predictions[0])
	}
	if predictions[0].Confidence != 0.8 {
		t.Errorf("rank 0 should use score: %+v", predictions[0])
	}

	// Numeric section value, no confidence: default decreases by rank.
	if predictions[1].Section != "304" || predictions[1].Offense != "Unknown offense" {
		t.Errorf("rank 1 normalization broken: %+v", predictions[1])
	}
	if predictions[1].Confidence != 0.9 {
		t.Errorf("rank 1 default confidence = %v, want 0.9", predictions[1].Confidence)
	}

	// Zero confidence counts as absent.
	if predictions[2].Section != "IPC 3" {
		t.Errorf("rank 2 section fallback = %q, want IPC 3", predictions[2].Section)
	}
	if predictions[2].Confidence != 0.8 {
		t.Errorf("rank 2 default confidence = %v, want 0.8", predictions[2].Confidence)
	}
}

func TestPredictIPCSections_BareArrayEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"section":"302","offense":"Murder","confidence":0.95}]`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 5*time.Second)
	predictions, err := client.PredictIPCSections(context.Background(), "case")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(predictions) != 1 || predictions[0].Section != "302" {
		t.Fatalf("bare array envelope not handled: %+v", predictions)
	}
}

func TestPredictIPCSections_EmptyDescription(t *testing.T) {
	client := newTestClient("http://127.0.0.1:0", time.Second)
	_, err := client.PredictIPCSections(context.Background(), "   ")
	if !utils.IsValidationError(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestPredictIPCSections_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 5*time.Second)
	_, err := client.PredictIPCSections(context.Background(), "case")
	var pe *utils.PredictionServiceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PredictionServiceError, got %v", err)
	}
	if pe.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", pe.Status)
	}
}

func TestPredictIPCSections_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ipc_suggestions": "not an array"`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 5*time.Second)
	_, err := client.PredictIPCSections(context.Background(), "case")
	if !utils.IsPredictionServiceError(err) {
		t.Fatalf("expected PredictionServiceError, got %v", err)
	}
}

func TestPredictIPCSections_ConnectionRefusedDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	client := newTestClient(srv.URL, time.Second)
	predictions, err := client.PredictIPCSections(context.Background(), "case")
	if err != nil {
		t.Fatalf("connection refused must degrade, got error: %v", err)
	}
	if len(predictions) != 0 {
		t.Fatalf("expected empty predictions, got %+v", predictions)
	}
}

func TestPredictIPCSections_TimeoutDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 50*time.Millisecond)
	predictions, err := client.PredictIPCSections(context.Background(), "case")
	if err != nil {
		t.Fatalf("timeout must degrade, got error: %v", err)
	}
	if len(predictions) != 0 {
		t.Fatalf("expected empty predictions, got %+v", predictions)
	}
}
