// Package verify integrates an external email-verification service and the
// store-backed retry queue that absorbs its outages.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/leadgrid/lead-engine/internal/model"
	"github.com/leadgrid/lead-engine/internal/resilience"
)

// Verifier checks the deliverability of a single email address.
type Verifier interface {
	Verify(ctx context.Context, email string) (model.VerificationStatus, error)
}

// HTTPVerifier calls an external verification API.
type HTTPVerifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPVerifier creates a verifier client. A zero timeout defaults to
// 15 seconds.
func NewHTTPVerifier(baseURL, apiKey string, timeout time.Duration) *HTTPVerifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPVerifier{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type verifyResponse struct {
	Status string `json:"status"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, email string) (model.VerificationStatus, error) {
	endpoint := fmt.Sprintf("%s/v1/verify?email=%s", v.baseURL, url.QueryEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", eris.Wrap(err, "verify: build request")
	}
	if v.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "verify: call verification api")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		apiErr := eris.New(fmt.Sprintf("verify: api returned %d: %s", resp.StatusCode, string(body)))
		// Rate limits and server errors are retryable; everything else is a
		// permanent verdict on the request itself.
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return "", apiErr
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", eris.Wrap(err, "verify: decode response")
	}

	switch status := model.VerificationStatus(out.Status); status {
	case model.VerificationValid, model.VerificationCatchAll, model.VerificationInvalid,
		model.VerificationUnknown, model.VerificationRisky:
		return status, nil
	default:
		return "", eris.New(fmt.Sprintf("verify: unrecognized status %q", out.Status))
	}
}
