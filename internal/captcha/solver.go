package captcha

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 35 * time.Second
	statusUnreadable   = "unreadable"
)

// ErrUnreadable reports a challenge the solver cannot make sense of at all.
// Callers treat it as a poisoned challenge rather than a wrong guess.
var ErrUnreadable = errors.New("captcha: challenge unreadable")

// Solver turns a challenge image into a code.
type Solver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// Prompter asks a human for the code when no automated solver is available
// or the solver keeps failing.
type Prompter interface {
	RequestCode(ctx context.Context, image []byte, prompt string) (string, error)
}

// HTTPSolver talks to an external recognition service over JSON.
type HTTPSolver struct {
	endpoint   string
	httpClient *http.Client
}

// SolverOption customizes the HTTP solver.
type SolverOption func(*HTTPSolver)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) SolverOption {
	return func(s *HTTPSolver) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// NewHTTPSolver constructs a solver client for the given endpoint URL.
func NewHTTPSolver(endpoint string, opts ...SolverOption) *HTTPSolver {
	solver := &HTTPSolver{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(solver)
	}
	if solver.httpClient == nil {
		solver.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return solver
}

type solveRequest struct {
	Image string `json:"image"`
}

type solveResponse struct {
	Code       string  `json:"code"`
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error"`
}

// Solve posts the challenge image and returns the recognized code.
func (s *HTTPSolver) Solve(ctx context.Context, image []byte) (string, error) {
	if s.endpoint == "" {
		return "", errors.New("captcha solve: endpoint required")
	}
	if len(image) == 0 {
		return "", errors.New("captcha solve: empty image")
	}
	encoded, err := json.Marshal(solveRequest{
		Image: base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return "", fmt.Errorf("captcha solve: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("captcha solve: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("captcha solve: request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("captcha solve: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("captcha solve: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var parsed solveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("captcha solve: decode response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("captcha solve: api error: %s", strings.TrimSpace(parsed.Error))
	}
	if strings.EqualFold(strings.TrimSpace(parsed.Status), statusUnreadable) {
		return "", ErrUnreadable
	}
	code := strings.TrimSpace(parsed.Code)
	if code == "" {
		return "", errors.New("captcha solve: empty code")
	}
	return code, nil
}
