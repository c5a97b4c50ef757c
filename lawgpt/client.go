// Package lawgpt talks to the external LawGPT prediction service. The
// service suggests Indian Penal Code sections for a case description.
// It is a best-effort dependency: callers creating FIRs must keep working
// when it is down, so connectivity failures degrade to an empty result.
package lawgpt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/fir_backend/utils"
)

const (
	defaultBaseURL        = "http://127.0.0.1:5000"
	defaultTimeoutSeconds = 30
	maxPredictions        = 3
)

// Prediction is one normalized IPC suggestion.
type Prediction struct {
	Section    string  `json:"section"`
	Offense    string  `json:"offense"`
	Punishment string  `json:"punishment"`
	Confidence float64 `json:"confidence"`
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient reads LAWGPT_API_URL and LAWGPT_TIMEOUT_SECONDS.
func NewClient() *Client {
	baseURL := os.Getenv("LAWGPT_API_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := defaultTimeoutSeconds
	if v := os.Getenv("LAWGPT_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = n
		}
	}

	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}
}

// PredictIPCSections posts the case description to /predict and returns
// up to 3 normalized predictions.
//
// Error contract:
//   - empty description           -> ValidationError
//   - unreachable / timed out     -> ([], nil) so FIR creation proceeds
//   - HTTP >= 400, malformed body -> PredictionServiceError
func (c *Client) PredictIPCSections(ctx context.Context, caseDescription string) ([]Prediction, error) {
	if strings.TrimSpace(caseDescription) == "" {
		return nil, utils.NewValidationError("caseDescription", "case description is required")
	}

	body, err := json.Marshal(map[string]string{"case": caseDescription})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if isConnectivityError(err) {
			return []Prediction{}, nil
		}
		return nil, &utils.PredictionServiceError{Msg: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &utils.PredictionServiceError{
			Status: resp.StatusCode,
			Msg:    "unexpected status from prediction service",
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if isConnectivityError(err) {
			return []Prediction{}, nil
		}
		return nil, &utils.PredictionServiceError{Msg: err.Error()}
	}

	items, err := decodeEnvelope(raw)
	if err != nil {
		return nil, &utils.PredictionServiceError{Msg: err.Error()}
	}

	return normalize(items), nil
}

// isConnectivityError reports whether err means the service is absent
// rather than misbehaving. Refused connections, DNS failures and
// timeouts all count; those degrade to an empty prediction list.
func isConnectivityError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// rawPrediction tolerates the field spellings the service has shipped
// over time. flexValue absorbs string-or-number fields.
type rawPrediction struct {
	SectionNumber flexValue `json:"section_number"`
	Section       flexValue `json:"section"`
	SectionLabel  flexValue `json:"section_label"`
	Offense       string    `json:"offense"`
	Description   string    `json:"description"`
	Punishment    string    `json:"punishment"`
	Confidence    *float64  `json:"confidence"`
	Score         *float64  `json:"score"`
}

type envelope struct {
	IPCSuggestions []rawPrediction `json:"ipc_suggestions"`
	Predictions    []rawPrediction `json:"predictions"`
	IPCPredictions []rawPrediction `json:"ipcPredictions"`
}

func decodeEnvelope(raw []byte) ([]rawPrediction, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty response body")
	}

	if trimmed[0] == '[' {
		var items []rawPrediction
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("malformed prediction array: %w", err)
		}
		return items, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("malformed prediction envelope: %w", err)
	}
	if env.IPCSuggestions != nil {
		return env.IPCSuggestions, nil
	}
	if env.Predictions != nil {
		return env.Predictions, nil
	}
	return env.IPCPredictions, nil
}

func normalize(items []rawPrediction) []Prediction {
	out := make([]Prediction, 0, maxPredictions)
	for rank, item := range items {
		if rank >= maxPredictions {
			break
		}

		section := firstNonEmpty(item.SectionNumber.String(), item.Section.String(), item.SectionLabel.String())
		if section == "" {
			section = fmt.Sprintf("IPC %d", rank+1)
		}

		offense := firstNonEmpty(item.Offense, item.Description)
		if offense == "" {
			offense = "Unknown offense"
		}

		punishment := item.Punishment
		if punishment == "" {
			punishment = "Not specified"
		}

		confidence := 0.0
		if item.Confidence != nil {
			confidence = *item.Confidence
		} else if item.Score != nil {
			confidence = *item.Score
		}
		if confidence == 0 {
			confidence = 1 - 0.1*float64(rank)
		}

		out = append(out, Prediction{
			Section:    section,
			Offense:    offense,
			Punishment: punishment,
			Confidence: confidence,
		})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// flexValue unmarshals a JSON string or number into a string.
type flexValue string

func (f *flexValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*f = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = flexValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*f = flexValue(n.String())
	return nil
}

func (f flexValue) String() string { return strings.TrimSpace(string(f)) }
