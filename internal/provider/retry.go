package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"
)

// retryBase is the backoff unit; attempt n waits n*n*retryBase plus jitter.
var retryBase = time.Second

// doWithRetry executes an HTTP request, retrying network failures, 5xx and
// 429 up to maxRetries times with exponential backoff and jitter. The final
// attempt's response is returned as-is so the caller can report its status.
func doWithRetry(ctx context.Context, client *http.Client, maxRetries int, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			base := time.Duration(attempt*attempt) * retryBase
			backoff := base + time.Duration(rand.Int64N(int64(base/2+1)))
			logger.Warn("retrying request", "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		last := attempt >= maxRetries
		resp, err := client.Do(req)
		if err != nil {
			if last || ctx.Err() != nil {
				return nil, err
			}
			logger.Warn("request failed, will retry", "err", err)
			continue
		}

		if !last && (resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests) {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			logger.Warn("server error, will retry", "status", resp.StatusCode, "body", string(body))
			continue
		}

		return resp, nil
	}
}
