// Package reports implements the Insight report service and its cron-driven
// scheduler.
package reports

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ataiva-software/vertex-sub003/internal/errors"
)

// cronParser accepts five-field specs, optional leading seconds, and the
// @hourly/@daily descriptors.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule validates a cron expression in the given IANA timezone.
// An empty timezone means UTC.
func ParseSchedule(expr, timezone string) (cron.Schedule, *time.Location, error) {
	loc := time.UTC
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, nil, errors.InvalidInput("timezone", "unknown timezone: "+timezone)
		}
	}

	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, nil, errors.InvalidInput("schedule", "invalid cron expression: "+err.Error())
	}
	return schedule, loc, nil
}

// NextExecution computes the first fire time strictly after from. The
// computation runs in the schedule's timezone, so DST transitions fire once
// per nominal time and skipped nominal times are not replayed.
func NextExecution(expr, timezone string, from time.Time) (time.Time, error) {
	schedule, loc, err := ParseSchedule(expr, timezone)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from.In(loc)), nil
}
