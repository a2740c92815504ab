package probes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/intar-dev/intar-cli/internal/probespec"
)

// evalHTTP issues a GET request, following up to 5 redirects with a 5s
// total timeout, and checks the final status and (optionally) body.
func evalHTTP(ctx context.Context, spec *probespec.HTTPSpec) (bool, string, error) {
	client := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > 5 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return false, fmt.Sprintf("building request: %v", err), nil
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("request failed: %v", err), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Sprintf("reading response body: %v", err), nil
	}

	if resp.StatusCode != spec.Status {
		return false, fmt.Sprintf("status %d, want %d", resp.StatusCode, spec.Status), nil
	}
	if spec.BodyContains != nil && !strings.Contains(string(body), *spec.BodyContains) {
		return false, fmt.Sprintf("body does not contain %q", *spec.BodyContains), nil
	}
	return true, "ok", nil
}
