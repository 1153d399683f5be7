package donation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbirdsall/budgetflow/internal/service"
)

type fakeDonator struct {
	calls     int
	err       error
	confirmed bool
}

func (f *fakeDonator) SubmitDonation(ctx context.Context, amount float64) (*service.DonationReceipt, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &service.DonationReceipt{Amount: amount, SubmittedAt: time.Now(), Confirmed: f.confirmed}, nil
}

type recordingNotifier struct {
	titles []string
	bodies []string
}

func (r *recordingNotifier) Notify(ctx context.Context, title, body string) error {
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, body)
	return nil
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("1 09:30", 50)
	require.NoError(t, err)
	assert.Equal(t, 1, s.DayOfMonth)
	assert.Equal(t, 9, s.Hour)
	assert.Equal(t, 30, s.Minute)

	cases := []struct {
		input  string
		amount float64
	}{
		{"garbage", 50},
		{"31 09:30", 50}, // not every month has a 31st
		{"1 25:00", 50},
		{"1 09:75", 50},
		{"1 09:30", 0},
		{"1 09:30", -5},
	}
	for _, tc := range cases {
		_, err := ParseSchedule(tc.input, tc.amount)
		assert.Error(t, err, "input %q amount %v", tc.input, tc.amount)
	}
}

func TestSchedule_Matches(t *testing.T) {
	s := Schedule{DayOfMonth: 1, Hour: 9, Minute: 0}

	assert.True(t, s.matches(time.Date(2024, 9, 1, 9, 0, 30, 0, time.UTC)))
	assert.False(t, s.matches(time.Date(2024, 9, 1, 9, 1, 0, 0, time.UTC)))
	assert.False(t, s.matches(time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)))
}

func TestRunner_FiresOncePerMonth(t *testing.T) {
	donator := &fakeDonator{confirmed: true}
	notifier := &recordingNotifier{}
	r := NewRunner(Schedule{DayOfMonth: 1, Hour: 9, Minute: 0, Amount: 50}, donator, notifier, nil)

	fire := time.Date(2024, 9, 1, 9, 0, 0, 0, time.UTC)
	r.maybeRun(context.Background(), fire)
	r.maybeRun(context.Background(), fire.Add(20*time.Second))
	assert.Equal(t, 1, donator.calls)

	// Next month fires again.
	r.maybeRun(context.Background(), time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, 2, donator.calls)

	require.Len(t, notifier.titles, 2)
	assert.Equal(t, "Donation", notifier.titles[0])
}

func TestRunner_FailureClearsGuard(t *testing.T) {
	donator := &fakeDonator{err: errors.New("site unreachable")}
	notifier := &recordingNotifier{}
	r := NewRunner(Schedule{DayOfMonth: 1, Hour: 9, Minute: 0, Amount: 50}, donator, notifier, nil)

	fire := time.Date(2024, 9, 1, 9, 0, 0, 0, time.UTC)
	r.maybeRun(context.Background(), fire)
	assert.Equal(t, 1, donator.calls)
	require.Len(t, notifier.titles, 1)
	assert.Equal(t, "Donation failed", notifier.titles[0])

	// The guard was cleared, so a retry within the window runs again.
	donator.err = nil
	r.maybeRun(context.Background(), fire.Add(30*time.Second))
	assert.Equal(t, 2, donator.calls)
}

func TestSubmitterConfigValidation(t *testing.T) {
	_, err := NewSubmitter(Config{}, nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.LoginURL = "https://id.example.org/login"
	cfg.DonationURL = "https://donations.example.org/donations/#/donation/step1"
	cfg.Username = "user"
	cfg.Password = "pass"
	sub, err := NewSubmitter(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, sub)
}
