// Package config maps viper configuration onto component configs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/bbirdsall/budgetflow/internal/api"
	"github.com/bbirdsall/budgetflow/internal/budget"
	"github.com/bbirdsall/budgetflow/internal/donation"
	"github.com/bbirdsall/budgetflow/internal/ingest"
	"github.com/bbirdsall/budgetflow/internal/mail"
	"github.com/bbirdsall/budgetflow/internal/sheets"
)

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}

// LoadSheets builds the spreadsheet client configuration.
func LoadSheets() (sheets.Config, error) {
	cfg := sheets.DefaultConfig()

	if v := viper.GetString("sheets.service_account_path"); v != "" {
		cfg.ServiceAccountPath = ExpandPath(v)
	} else if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
		cfg.ServiceAccountPath = v
	}
	cfg.SpreadsheetID = viper.GetString("sheets.spreadsheet_id")
	if v := viper.GetInt("sheets.retry_attempts"); v > 0 {
		cfg.RetryAttempts = v
	}
	if v := viper.GetDuration("sheets.retry_delay"); v > 0 {
		cfg.RetryDelay = v
	}

	return cfg, cfg.Validate()
}

// LoadMail builds the IMAP fetcher configuration.
func LoadMail() mail.Config {
	return mail.Config{
		Address:  viper.GetString("imap.address"),
		Username: viper.GetString("imap.username"),
		Password: viper.GetString("imap.password"),
		Mailbox:  viper.GetString("imap.mailbox"),
		From:     viper.GetString("imap.alert_from"),
		Subject:  viper.GetString("imap.alert_subject"),
	}
}

// LoadIngest builds the pipeline scheduling configuration.
func LoadIngest() ingest.Config {
	cfg := ingest.DefaultConfig()
	if viper.IsSet("ingest.enabled") {
		cfg.Enabled = viper.GetBool("ingest.enabled")
	}
	if v := viper.GetDuration("ingest.poll_interval"); v > 0 {
		cfg.PollInterval = v
	}
	if v := viper.GetDuration("ingest.tick_timeout"); v > 0 {
		cfg.TickTimeout = v
	}
	return cfg
}

// LoadAPI builds the HTTP server configuration.
func LoadAPI() api.Config {
	cfg := api.DefaultConfig()
	if v := viper.GetString("api.addr"); v != "" {
		cfg.Addr = v
	}
	if v := viper.GetStringSlice("budget.categories"); len(v) > 0 {
		cfg.Categories = v
	}
	return cfg
}

// LoadBudget builds the budget reader configuration.
func LoadBudget() budget.Config {
	cfg := budget.Config{
		GoalsRange:   "Budget!A2:B",
		UsageRange:   "Budget!D2:E",
		SavingsRange: "Savings!A2:B",
		Categories:   []string{"food", "shopping", "gas", "other"},
		FillupPrice:  40.0,
	}
	if v := viper.GetString("budget.goals_range"); v != "" {
		cfg.GoalsRange = v
	}
	if v := viper.GetString("budget.usage_range"); v != "" {
		cfg.UsageRange = v
	}
	if v := viper.GetString("budget.savings_range"); v != "" {
		cfg.SavingsRange = v
	}
	if v := viper.GetStringSlice("budget.categories"); len(v) > 0 {
		cfg.Categories = v
	}
	if v := viper.GetFloat64("budget.fillup_price"); v > 0 {
		cfg.FillupPrice = v
	}
	return cfg
}

// JournalPath resolves the local journal database location.
func JournalPath() string {
	path := viper.GetString("journal.path")
	if path == "" {
		path = "~/.local/share/budgetflow/journal.db"
	}
	return ExpandPath(path)
}

// NotifyCredentials resolves the FCM service-account credentials file.
func NotifyCredentials() string {
	return ExpandPath(viper.GetString("notify.credentials_path"))
}

// LoadDonation builds the donation submitter configuration.
func LoadDonation() donation.Config {
	cfg := donation.DefaultConfig()
	cfg.LoginURL = viper.GetString("donation.login_url")
	cfg.DonationURL = viper.GetString("donation.donation_url")
	cfg.Username = viper.GetString("donation.username")
	cfg.Password = viper.GetString("donation.password")
	if v := viper.GetString("donation.username_selector"); v != "" {
		cfg.UsernameSelector = v
	}
	if v := viper.GetString("donation.password_selector"); v != "" {
		cfg.PasswordSelector = v
	}
	if viper.IsSet("donation.headless") {
		cfg.Headless = viper.GetBool("donation.headless")
	}
	if v := viper.GetDuration("donation.step_timeout"); v > 0 {
		cfg.StepTimeout = v
	}
	return cfg
}

// LoadDonationSchedule parses the optional monthly donation schedule.
// Returns nil when no schedule is configured.
func LoadDonationSchedule() (*donation.Schedule, error) {
	raw := viper.GetString("donation.schedule")
	if raw == "" {
		return nil, nil
	}
	amount := viper.GetFloat64("donation.amount")
	schedule, err := donation.ParseSchedule(raw, amount)
	if err != nil {
		return nil, fmt.Errorf("invalid donation schedule: %w", err)
	}
	return &schedule, nil
}
