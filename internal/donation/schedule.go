package donation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bbirdsall/budgetflow/internal/service"
)

// Schedule runs a donation once a month on a fixed day and time of day.
type Schedule struct {
	DayOfMonth int
	Hour       int
	Minute     int
	Amount     float64
}

// ParseSchedule parses "day HH:MM", e.g. "1 09:00" for the first of the
// month at nine.
func ParseSchedule(s string, amount float64) (Schedule, error) {
	var day, hour, minute int
	if _, err := fmt.Sscanf(s, "%d %d:%d", &day, &hour, &minute); err != nil {
		return Schedule{}, fmt.Errorf("invalid schedule format (expected \"day HH:MM\"): %w", err)
	}
	if day < 1 || day > 28 {
		return Schedule{}, fmt.Errorf("invalid day of month: %d (must be 1-28 so every month qualifies)", day)
	}
	if hour < 0 || hour > 23 {
		return Schedule{}, fmt.Errorf("invalid hour: %d", hour)
	}
	if minute < 0 || minute > 59 {
		return Schedule{}, fmt.Errorf("invalid minute: %d", minute)
	}
	if amount <= 0 {
		return Schedule{}, fmt.Errorf("donation amount must be positive")
	}
	return Schedule{DayOfMonth: day, Hour: hour, Minute: minute, Amount: amount}, nil
}

// matches reports whether the schedule fires at the given instant.
func (s Schedule) matches(now time.Time) bool {
	return now.Day() == s.DayOfMonth && now.Hour() == s.Hour && now.Minute() == s.Minute
}

// Runner checks the schedule once a minute and submits the donation when it
// fires. A lastRun guard keeps one scheduled minute from firing twice.
type Runner struct {
	schedule Schedule
	donator  service.Donator
	notifier service.NotificationSink
	logger   *slog.Logger

	mu      sync.Mutex
	lastRun string // YYYY-MM of the last successful run
}

// NewRunner creates a Runner.
func NewRunner(schedule Schedule, donator service.Donator, notifier service.NotificationSink, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		schedule: schedule,
		donator:  donator,
		notifier: notifier,
		logger:   logger,
	}
}

// Run blocks until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("donation schedule active",
		"day", r.schedule.DayOfMonth,
		"time", fmt.Sprintf("%02d:%02d", r.schedule.Hour, r.schedule.Minute),
		"amount", r.schedule.Amount,
	)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			r.maybeRun(ctx, now)
		}
	}
}

func (r *Runner) maybeRun(ctx context.Context, now time.Time) {
	if !r.schedule.matches(now) {
		return
	}

	month := now.Format("2006-01")
	r.mu.Lock()
	if r.lastRun == month {
		r.mu.Unlock()
		return
	}
	r.lastRun = month
	r.mu.Unlock()

	receipt, err := r.donator.SubmitDonation(ctx, r.schedule.Amount)
	if err != nil {
		r.logger.Error("scheduled donation failed", "error", err)
		// Clear the guard so the failure can be retried manually this
		// month without also suppressing next month.
		r.mu.Lock()
		r.lastRun = ""
		r.mu.Unlock()

		if r.notifier != nil {
			_ = r.notifier.Notify(ctx, "Donation failed",
				fmt.Sprintf("Scheduled $%.2f donation failed: %v", r.schedule.Amount, err))
		}
		return
	}

	if r.notifier != nil {
		body := fmt.Sprintf("$%.2f donation submitted", receipt.Amount)
		if !receipt.Confirmed {
			body += " (confirmation not detected)"
		}
		_ = r.notifier.Notify(ctx, "Donation", body)
	}
}
