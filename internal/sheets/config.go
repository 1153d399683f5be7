// Package sheets provides a thin tabular client over the Google Sheets API.
package sheets

import (
	"fmt"
	"time"

	"github.com/bbirdsall/budgetflow/internal/common"
)

// Config holds the configuration for the sheets client.
type Config struct {
	ServiceAccountPath string
	SpreadsheetID      string
	RetryAttempts      int
	RetryDelay         time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceAccountPath == "" {
		return fmt.Errorf("%w: service account path is required", common.ErrMissingConfig)
	}
	if c.SpreadsheetID == "" {
		return fmt.Errorf("%w: spreadsheet ID is required", common.ErrMissingConfig)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("%w: retry attempts cannot be negative", common.ErrInvalidConfig)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry delay cannot be negative", common.ErrInvalidConfig)
	}
	return nil
}
