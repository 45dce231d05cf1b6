package probe

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/RealSaake/SkillBridge-sub000/internal/fault"
)

// HTTPOptions configures HTTP checks.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// Limiter throttles every check sharing it. Nil means unlimited.
	Limiter *rate.Limiter
	Client  *http.Client
}

// Target is one HTTP endpoint guarded by a recovery controller.
type Target struct {
	Name   string
	URL    string
	Method string
}

// NewLimiter builds the shared outbound limiter.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// HTTPCheck returns an Operation that succeeds when target answers with a
// 2xx status. Transport failures are reported as network failures and
// non-2xx answers as fault.StatusError.
func HTTPCheck(target Target, opts HTTPOptions) Operation {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "skillbridge/1.0"
	}
	method := target.Method
	if method == "" {
		method = http.MethodGet
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return func(ctx context.Context) error {
		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				return eris.Wrap(err, "probe: rate limiter wait")
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, target.URL, nil)
		if err != nil {
			return eris.Wrapf(err, "probe: build request for %s", target.Name)
		}
		req.Header.Set("User-Agent", opts.UserAgent)

		resp, err := client.Do(req)
		if err != nil {
			return eris.Wrapf(err, "network error: %s %s", method, target.URL)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			se := fault.NewStatusError(method, target.URL, resp.StatusCode)
			zap.L().Debug("probe: non-2xx response",
				zap.String("operation", target.Name),
				zap.String("endpoint", se.Endpoint()),
				zap.Int("status", resp.StatusCode),
			)
			return se
		}
		return nil
	}
}
