package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Remote classifies by calling a model server over HTTP.
type Remote struct {
	baseURL    string
	inputDim   int
	httpClient *http.Client
	backoff    time.Duration
}

// NewRemote creates a Remote classifier for a model server with the given
// input dimension.
func NewRemote(baseURL string, inputDim int) *Remote {
	return &Remote{
		baseURL:    strings.TrimRight(baseURL, "/"),
		inputDim:   inputDim,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		backoff:    time.Second,
	}
}

type predictRequest struct {
	Input []float64 `json:"input"`
}

type predictResponse struct {
	Class int `json:"class"`
}

// InputDim returns the input size the model server was configured with.
func (r *Remote) InputDim() int { return r.inputDim }

// Classify POSTs the features to {baseURL}/predict.
// Retries up to 3 times with exponential backoff on transport or 5xx errors.
func (r *Remote) Classify(ctx context.Context, features []float64) (int, error) {
	if err := CheckDim(features, r.inputDim); err != nil {
		return 0, err
	}
	data, err := json.Marshal(predictRequest{Input: features})
	if err != nil {
		return 0, fmt.Errorf("marshaling predict request: %w", err)
	}

	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(r.backoff * time.Duration(1<<uint(attempt-1))):
			}
		}

		class, retry, err := r.predict(ctx, data)
		if err == nil {
			return class, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return 0, fmt.Errorf("remote classifier: %w", lastErr)
}

func (r *Remote) predict(ctx context.Context, body []byte) (class int, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return 0, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, ctx.Err() == nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return 0, resp.StatusCode >= 500, fmt.Errorf("predict failed (status %d): %s", resp.StatusCode, msg)
	}

	var pr predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return 0, false, fmt.Errorf("decoding predict response: %w", err)
	}
	return pr.Class, false, nil
}
