package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule says when a periodic task runs: on a standard five field cron
// expression (descriptors like @hourly included) or every Interval. Cron
// wins when both are set, neither disables the task.
type Schedule struct {
	Cron     string `mapstructure:"cron"`
	Interval string `mapstructure:"interval"`
}

func (s Schedule) Enabled() bool {
	return s.Cron != "" || s.Interval != ""
}

// ParseCron parses a standard cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	e := strings.TrimSpace(expr)
	if e == "" {
		return nil, errors.New("empty cron expression")
	}
	return cron.ParseStandard(e)
}

// IntervalDuration returns the interval, it must be longer than zero.
func (s Schedule) IntervalDuration() (time.Duration, error) {
	d, err := parseDuration(s.Interval)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, ErrZeroLimit
	}
	return d, nil
}

func (s Schedule) Validate() error {
	if s.Cron != "" {
		if _, err := ParseCron(s.Cron); err != nil {
			return fmt.Errorf("cron: %w", err)
		}
		return nil
	}
	if s.Interval != "" {
		if _, err := s.IntervalDuration(); err != nil {
			return fmt.Errorf("interval: %w", err)
		}
	}
	return nil
}
