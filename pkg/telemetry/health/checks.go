package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deepstore-hq/deepstore/pkg/history"
)

// LastRunSource looks up the most recent run.
type LastRunSource interface {
	Last(ctx context.Context, status string) (*history.Run, error)
}

// LastRunCheck fails when the most recent run failed or when no successful
// run happened within maxAge. An empty history passes so a freshly started
// daemon is not reported unhealthy before its first scheduled run.
func LastRunCheck(src LastRunSource, maxAge time.Duration) CheckFunc {
	return func(ctx context.Context) error {
		last, err := src.Last(ctx, "")
		if errors.Is(err, history.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if last.Status == "failed" {
			return fmt.Errorf("last run %s failed: %s", last.ID, last.Error)
		}

		if maxAge <= 0 {
			return nil
		}
		ok, err := src.Last(ctx, "success")
		if errors.Is(err, history.ErrNotFound) {
			return fmt.Errorf("no successful run recorded")
		}
		if err != nil {
			return err
		}
		if age := time.Since(ok.FinishedAt); age > maxAge {
			return fmt.Errorf("last successful run finished %s ago", age.Truncate(time.Minute))
		}
		return nil
	}
}

// PingCheck adapts a Ping method.
func PingCheck(ping func(ctx context.Context) error) CheckFunc {
	return CheckFunc(ping)
}
