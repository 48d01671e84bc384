package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

const defaultRequestTimeout = 30 * time.Second

// Response schemas for the external scoring service. Responses are validated
// before use so a partial or malformed reply degrades to the rule-based
// fallback instead of corrupting the run.
var (
	orderResponseSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"order": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"order"},
	}

	retryResponseSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"should_retry": map[string]any{"type": "boolean"},
			"confidence":   map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"reason":       map[string]any{"type": "string"},
		},
		"required": []string{"should_retry", "confidence"},
	}
)

// HTTPScorer talks to an external scoring service over HTTP. It implements
// both PrioritizationScorer and RetryScorer; callers use whichever side they
// need.
type HTTPScorer struct {
	baseURL string
	client  *http.Client
}

func NewHTTPScorer(baseURL string) *HTTPScorer {
	return &HTTPScorer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}
}

// ProposeOrder asks the service for an execution order over the given tests.
func (s *HTTPScorer) ProposeOrder(ctx context.Context, tests []TestSummary) ([]string, error) {
	payload := map[string]any{"tests": tests}

	body, err := s.post(ctx, "/v1/prioritize", payload, orderResponseSchema)
	if err != nil {
		return nil, err
	}

	var response struct {
		Order []string `json:"order"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode prioritization response: %w", err)
	}

	return response.Order, nil
}

// JudgeRetry asks the service whether a failed attempt should be retried.
func (s *HTTPScorer) JudgeRetry(ctx context.Context, request RetryRequest) (*RetryDecision, error) {
	body, err := s.post(ctx, "/v1/retry", request, retryResponseSchema)
	if err != nil {
		return nil, err
	}

	var decision RetryDecision
	if err := json.Unmarshal(body, &decision); err != nil {
		return nil, fmt.Errorf("failed to decode retry decision: %w", err)
	}

	return &decision, nil
}

func (s *HTTPScorer) post(ctx context.Context, path string, payload any, schema map[string]any) ([]byte, error) {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scorer request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(requestBody))
	if err != nil {
		return nil, err
	}

	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("scorer request failed: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read scorer response: %w", err)
	}

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scorer returned status %d", response.StatusCode)
	}

	if err := validateJSONSchema(body, schema); err != nil {
		return nil, err
	}

	return body, nil
}

// validateJSONSchema validates the raw response against the expected schema.
func validateJSONSchema(body []byte, schema map[string]any) error {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return fmt.Errorf("scorer response is not valid JSON: %w", err)
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var problems []string
		for _, resultError := range result.Errors() {
			problems = append(problems, resultError.String())
		}

		return fmt.Errorf("scorer response failed schema validation: %s", strings.Join(problems, "; "))
	}

	return nil
}
