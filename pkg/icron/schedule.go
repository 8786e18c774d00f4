package icron

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
)

// Parse accepts a five-field cron expression or a descriptor such as
// "@daily" or "@every 6h".
func Parse(cronExpr string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return schedule, nil
}

type TriggerInfo struct {
	Expression    string
	Ref           time.Time
	Next          time.Time
	TimeUntilNext time.Duration
}

func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := Parse(cronExpr)
	if err != nil {
		return nil, err
	}

	next := schedule.Next(refTime)
	return &TriggerInfo{
		Expression:    cronExpr,
		Ref:           refTime,
		Next:          next,
		TimeUntilNext: next.Sub(refTime),
	}, nil
}

func (t *TriggerInfo) String() string {
	return fmt.Sprintf("%s: next run at %s (%s)",
		t.Expression,
		t.Next.Format(time.RFC3339),
		humanize.RelTime(t.Next, t.Ref, "ago", "from now"))
}
