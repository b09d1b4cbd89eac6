package tools

import (
	"context"
	"fmt"
	"time"
)

// retry429Delays and retry5xxDelays are the exact backoff schedules from spec
// §4.3: up to three retries on HTTP 429, up to two on HTTP 5xx.
var (
	retry429Delays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	retry5xxDelays = []time.Duration{500 * time.Millisecond, time.Second}
)

// composioTool calls a Composio-style external service by tool id, retrying
// transient failures and surfacing everything else immediately.
type composioTool struct {
	guard     *URLGuard
	transport Transport
	baseURL   string
}

func newComposioTool(guard *URLGuard, transport Transport, baseURL string) *composioTool {
	return &composioTool{guard: guard, transport: transport, baseURL: baseURL}
}

// Invoke dispatches call.ToolType as a Composio action id, using call.APIKey
// (resolved by the credential broker) as the bearer credential.
func (t *composioTool) Invoke(ctx context.Context, call Call) (Result, error) {
	url := fmt.Sprintf("%s/actions/%s/execute", t.baseURL, call.ToolType)
	if err := t.guard.Check(url); err != nil {
		return Result{}, err
	}

	req := Request{
		Method:  "POST",
		URL:     url,
		Headers: map[string]string{"Authorization": "Bearer " + call.APIKey},
	}

	var retries429, retries5xx int
	for {
		resp, err := t.transport.Do(ctx, req)
		if err != nil {
			return Result{}, fmt.Errorf("tool_transport: %w", err)
		}

		switch {
		case resp.StatusCode == 429:
			if retries429 >= len(retry429Delays) {
				return Result{}, &statusError{status: resp.StatusCode}
			}
			if err := sleepCtx(ctx, retry429Delays[retries429]); err != nil {
				return Result{}, err
			}
			retries429++
		case resp.StatusCode >= 500:
			if retries5xx >= len(retry5xxDelays) {
				return Result{}, &statusError{status: resp.StatusCode}
			}
			if err := sleepCtx(ctx, retry5xxDelays[retries5xx]); err != nil {
				return Result{}, err
			}
			retries5xx++
		case resp.StatusCode >= 400:
			return Result{}, &statusError{status: resp.StatusCode} // non-retryable, surfaces immediately
		default:
			return Result{Output: string(resp.Body)}, nil
		}
	}
}

// statusError carries the last observed HTTP status for engineerr.Transport to record.
type statusError struct{ status int }

func (e *statusError) Error() string { return fmt.Sprintf("upstream returned status %d", e.status) }

func (e *statusError) Status() int { return e.status }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
