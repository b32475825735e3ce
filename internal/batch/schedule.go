package batch

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// RunOnSchedule runs job on the given cron spec until ctx is cancelled.
// The first run happens at the first scheduled tick, not immediately.
func RunOnSchedule(ctx context.Context, spec string, job func(context.Context)) error {
	c := cron.New()

	_, err := c.AddFunc(spec, func() {
		job(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	log.Printf("[BATCH] scheduled runs with spec %q", spec)
	c.Start()

	<-ctx.Done()
	stopCtx := c.Stop()
	// Let an in-flight run finish before returning.
	<-stopCtx.Done()
	return nil
}
