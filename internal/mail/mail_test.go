package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbirdsall/budgetflow/internal/common"
)

const multipartAlert = "MIME-Version: 1.0\r\n" +
	"From: noreply@alert.example.com\r\n" +
	"Subject: Transaction Alert\r\n" +
	"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Plain fallback\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<table class=\"transaction\"><tr><td class=\"details\">COSTCO</td></tr></table>\r\n" +
	"--b1--\r\n"

const plainOnlyAlert = "MIME-Version: 1.0\r\n" +
	"From: noreply@alert.example.com\r\n" +
	"Subject: Transaction Alert\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Plain only body\r\n"

func TestExtractHTML_PrefersHTMLPart(t *testing.T) {
	html, err := extractHTML([]byte(multipartAlert))
	require.NoError(t, err)
	assert.Contains(t, html, `class="transaction"`)
	assert.NotContains(t, html, "Plain fallback")
}

func TestExtractHTML_FallsBackToPlain(t *testing.T) {
	body, err := extractHTML([]byte(plainOnlyAlert))
	require.NoError(t, err)
	assert.Contains(t, body, "Plain only body")
}

func TestExtractHTML_Garbage(t *testing.T) {
	_, err := extractHTML([]byte("not an email at all"))
	assert.ErrorIs(t, err, common.ErrParse)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		Address:  "imap.example.com:993",
		Username: "user",
		Password: "pass",
		From:     "noreply@alert.example.com",
	}
	assert.NoError(t, valid.Validate())

	missing := valid
	missing.Address = ""
	assert.ErrorIs(t, missing.Validate(), common.ErrMissingConfig)

	missing = valid
	missing.Password = ""
	assert.ErrorIs(t, missing.Validate(), common.ErrMissingConfig)

	missing = valid
	missing.From = ""
	assert.ErrorIs(t, missing.Validate(), common.ErrMissingConfig)
}

func TestNewFetcher_DefaultMailbox(t *testing.T) {
	f, err := NewFetcher(Config{
		Address:  "imap.example.com:993",
		Username: "user",
		Password: "pass",
		From:     "noreply@alert.example.com",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "INBOX", f.config.Mailbox)
}
