// Package donation drives the donation website through a headless browser.
// The site has no API; the flow is the one a human would click through:
// sign in, enter an amount, advance past the funding-source step, submit,
// wait for the confirmation banner.
package donation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/bbirdsall/budgetflow/internal/common"
	"github.com/bbirdsall/budgetflow/internal/service"
)

const (
	amountSelector       = `input[name="txt"]`
	nextStepSelector     = `a[data-qa="nextStepButton"]`
	submitSelector       = `a[data-qa="submitButton"]`
	confirmationSelector = `h1.confirmation-message`
	profileSelector      = `#profile`

	// The step2 page sometimes swallows the first click; the button is
	// re-clicked until the URL advances.
	stepRetries    = 5
	stepRetryDelay = 5 * time.Second
)

// Config holds donation site settings.
type Config struct {
	LoginURL         string
	DonationURL      string // step1 entry point
	Username         string
	Password         string
	UsernameSelector string
	PasswordSelector string
	SubmitSelector   string
	Headless         bool
	StepTimeout      time.Duration
}

// DefaultConfig returns defaults matching the donation site's current markup.
func DefaultConfig() Config {
	return Config{
		UsernameSelector: "#input28",
		PasswordSelector: "#input53",
		SubmitSelector:   `input.button-primary[type="submit"]`,
		Headless:         true,
		StepTimeout:      30 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.LoginURL == "" || c.DonationURL == "" {
		return fmt.Errorf("%w: donation login and donation URLs are required", common.ErrMissingConfig)
	}
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("%w: donation credentials are required", common.ErrMissingConfig)
	}
	return nil
}

// Submitter implements service.Donator over a headless Chrome session.
type Submitter struct {
	config Config
	logger *slog.Logger
}

// NewSubmitter creates a Submitter.
func NewSubmitter(config Config, logger *slog.Logger) (*Submitter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.StepTimeout <= 0 {
		config.StepTimeout = DefaultConfig().StepTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{config: config, logger: logger}, nil
}

// SubmitDonation runs the full donation flow for the given amount.
func (s *Submitter) SubmitDonation(ctx context.Context, amount float64) (*service.DonationReceipt, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: donation amount must be positive", common.ErrValidation)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.config.Headless),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if err := s.login(browserCtx); err != nil {
		return nil, err
	}

	if err := s.enterAmount(browserCtx, amount); err != nil {
		return nil, err
	}

	if err := s.advanceToSubmit(browserCtx); err != nil {
		return nil, err
	}

	confirmed, err := s.submit(browserCtx)
	if err != nil {
		return nil, err
	}

	receipt := &service.DonationReceipt{
		Amount:      amount,
		SubmittedAt: time.Now(),
		Confirmed:   confirmed,
	}
	s.logger.Info("donation submitted", "amount", amount, "confirmed", confirmed)
	return receipt, nil
}

func (s *Submitter) login(ctx context.Context) error {
	stepCtx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
	defer cancel()

	var loggedIn bool
	err := chromedp.Run(stepCtx,
		chromedp.Navigate(s.config.LoginURL),
		chromedp.Evaluate(fmt.Sprintf(`document.querySelector(%q) !== null`, profileSelector), &loggedIn),
	)
	if err != nil {
		return fmt.Errorf("failed to load login page: %w", err)
	}

	if loggedIn {
		s.logger.Debug("existing session found, skipping login")
	} else {
		loginCtx, cancelLogin := context.WithTimeout(ctx, s.config.StepTimeout)
		defer cancelLogin()

		err = chromedp.Run(loginCtx,
			chromedp.WaitVisible(s.config.UsernameSelector, chromedp.ByQuery),
			chromedp.SendKeys(s.config.UsernameSelector, s.config.Username, chromedp.ByQuery),
			chromedp.Click(s.config.SubmitSelector, chromedp.ByQuery),
			chromedp.WaitVisible(s.config.PasswordSelector, chromedp.ByQuery),
			chromedp.SendKeys(s.config.PasswordSelector, s.config.Password, chromedp.ByQuery),
			chromedp.Click(s.config.SubmitSelector, chromedp.ByQuery),
		)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		s.logger.Debug("login submitted")
	}

	navCtx, cancelNav := context.WithTimeout(ctx, s.config.StepTimeout)
	defer cancelNav()
	if err := chromedp.Run(navCtx, chromedp.Navigate(s.config.DonationURL)); err != nil {
		return fmt.Errorf("failed to open donation page: %w", err)
	}
	return nil
}

func (s *Submitter) enterAmount(ctx context.Context, amount float64) error {
	stepCtx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
	defer cancel()

	value := strconv.FormatFloat(amount, 'f', -1, 64)
	err := chromedp.Run(stepCtx,
		chromedp.WaitVisible(amountSelector, chromedp.ByQuery),
		chromedp.SendKeys(amountSelector, value, chromedp.ByQuery),
		chromedp.Click(nextStepSelector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to enter donation amount: %w", err)
	}
	return nil
}

// advanceToSubmit clicks through the funding-source step until the flow
// reaches step3.
func (s *Submitter) advanceToSubmit(ctx context.Context) error {
	for i := 0; i < stepRetries; i++ {
		var url string
		checkCtx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
		err := chromedp.Run(checkCtx, chromedp.Location(&url))
		cancel()
		if err != nil {
			return fmt.Errorf("failed to read page location: %w", err)
		}

		if strings.Contains(url, "/step3") {
			return nil
		}

		s.logger.Debug("still on funding-source step, clicking next", "attempt", i+1)
		clickCtx, cancelClick := context.WithTimeout(ctx, s.config.StepTimeout)
		err = chromedp.Run(clickCtx,
			chromedp.WaitVisible(nextStepSelector, chromedp.ByQuery),
			chromedp.Click(nextStepSelector, chromedp.ByQuery),
			chromedp.Sleep(stepRetryDelay),
		)
		cancelClick()
		if err != nil {
			s.logger.Warn("next-step click failed, retrying", "attempt", i+1, "error", err)
		}
	}
	return fmt.Errorf("donation flow never reached the review step")
}

func (s *Submitter) submit(ctx context.Context) (bool, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
	defer cancel()

	err := chromedp.Run(stepCtx,
		chromedp.WaitVisible(submitSelector, chromedp.ByQuery),
		chromedp.Click(submitSelector, chromedp.ByQuery),
	)
	if err != nil {
		return false, fmt.Errorf("failed to submit donation: %w", err)
	}

	confirmCtx, cancelConfirm := context.WithTimeout(ctx, s.config.StepTimeout)
	defer cancelConfirm()

	err = chromedp.Run(confirmCtx, chromedp.WaitVisible(confirmationSelector, chromedp.ByQuery))
	if err != nil {
		// Submitted but unconfirmed: report it rather than guessing.
		s.logger.Warn("donation confirmation not detected", "error", err)
		return false, nil
	}
	return true, nil
}
