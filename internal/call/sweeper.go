package call

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// StartSweeper runs Sweep on the configured cron schedule until the
// returned cancel func is called or ctx ends.
func StartSweeper(ctx context.Context, c *Coordinator, cronExpr string) (context.CancelFunc, error) {
	if cronExpr == "" {
		cronExpr = "0 * * * *"
	}

	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid sweep cron expression: %s", cronExpr)
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	go runSchedule(sweepCtx, c, cronExpr)

	c.logInfo(fmt.Sprintf("call sweeper started (cron %q, staleness %s)", cronExpr, c.staleness))
	return cancel, nil
}

func runSchedule(ctx context.Context, c *Coordinator, cronExpr string) {
	for {
		next, err := gronx.NextTickAfter(cronExpr, time.Now().UTC(), false)
		if err != nil {
			c.logWarn(fmt.Sprintf("failed to compute next sweep tick: %v", err))
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-time.After(time.Until(next)):
			result, err := c.Sweep(ctx)
			if err != nil {
				c.logWarn(fmt.Sprintf("sweep failed: %v", err))
				continue
			}
			c.logInfo(fmt.Sprintf("sweep done: stale=%d ended=%d rooms_deleted=%d errors=%d",
				result.Stale, result.Ended, result.RoomsDeleted, len(result.Errors)))
		case <-ctx.Done():
			return
		}
	}
}
