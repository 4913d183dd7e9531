package tool

import (
	"context"
	"fmt"
	"time"
)

func newDateTime(cfg DateTimeConfig, now func() time.Time) runFunc {
	secs, _ := offsetSeconds(cfg.UTCOffset) // validated at bind time
	loc := time.FixedZone("UTC"+cfg.UTCOffset, secs)
	return func(context.Context, string) (string, error) {
		t := now().In(loc)
		return fmt.Sprintf("Current date and time: %s (UTC%s)", t.Format(cfg.Layout), cfg.UTCOffset), nil
	}
}
