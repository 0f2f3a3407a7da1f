package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sugarlabs/bundle-uploader/pkg/bundle_api/services"
	"github.com/sugarlabs/bundle-uploader/pkg/tools"
)

// ScheduleSweep sets up a cron job that expires old bundles on the
// given schedule (e.g. "@hourly"), in addition to the GET /delete
// trigger. Cancelling ctx stops the schedule and reaches any sweep
// still in flight.
func ScheduleSweep(ctx context.Context, svc *services.BundleService, retention time.Duration, schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		tools.Dispatch(ctx, "sweep", func(ctx context.Context) error {
			swept, err := svc.SweepExpired(ctx, time.Now(), retention)
			if err != nil {
				log.Printf("[sweep] scheduled pass: %v", err)
				return err
			}
			if swept > 0 {
				log.Printf("[sweep] expired %d bundle(s)", swept)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("schedule sweep %q: %w", schedule, err)
	}
	c.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return c, nil
}
