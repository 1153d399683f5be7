// Package mail fetches bank alert emails over IMAP. Poll returns the HTML
// bodies of unseen alert messages; Ack marks messages read and deleted only
// after the caller has durably persisted them, so a crash between the two
// re-delivers rather than loses transactions.
package mail

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	gomail "github.com/emersion/go-message/mail"

	"github.com/bbirdsall/budgetflow/internal/common"
	"github.com/bbirdsall/budgetflow/internal/service"
)

// Config holds IMAP connection and search settings.
type Config struct {
	Address  string // host:port, e.g. "imap.gmail.com:993"
	Username string
	Password string
	Mailbox  string
	From     string // sender address alerts arrive from
	Subject  string // subject line alerts carry
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("%w: imap address is required", common.ErrMissingConfig)
	}
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("%w: imap credentials are required", common.ErrMissingConfig)
	}
	if c.From == "" {
		return fmt.Errorf("%w: alert sender address is required", common.ErrMissingConfig)
	}
	return nil
}

// Fetcher implements service.MailSource against an IMAP server. Each Poll
// opens a fresh connection; alert volume is a handful of messages a day, so
// holding a long-lived session buys nothing and reconnect logic costs less
// than keepalive logic.
type Fetcher struct {
	config Config
	logger *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(config Config, logger *slog.Logger) (*Fetcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Mailbox == "" {
		config.Mailbox = "INBOX"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{config: config, logger: logger}, nil
}

// Poll fetches unseen alert messages and returns their HTML bodies. Messages
// whose MIME structure cannot be parsed are logged and skipped.
func (f *Fetcher) Poll(ctx context.Context) ([]service.RawMessage, error) {
	client, err := f.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Logout()

	if _, err := client.Select(f.config.Mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("%w: failed to select %s: %v", common.ErrConnection, f.config.Mailbox, err)
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "From", Value: f.config.From},
		},
	}
	if f.config.Subject != "" {
		criteria.Header = append(criteria.Header,
			imap.SearchCriteriaHeaderField{Key: "Subject", Value: f.config.Subject})
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrSearch, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	f.logger.Info("found unread alert emails", "count", len(uids))

	section := &imap.FetchItemBodySection{}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})

	buffers, err := fetchCmd.Collect()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch messages: %v", common.ErrConnection, err)
	}

	var messages []service.RawMessage
	for _, buf := range buffers {
		body := buf.FindBodySection(section)
		if body == nil {
			f.logger.Warn("message missing body section", "uid", buf.UID)
			continue
		}

		html, err := extractHTML(body)
		if err != nil {
			f.logger.Warn("failed to parse message body, skipping", "uid", buf.UID, "error", err)
			continue
		}

		messages = append(messages, service.RawMessage{
			UID:  uint32(buf.UID),
			HTML: html,
		})
	}

	return messages, nil
}

// Ack marks the given messages seen and deleted, then expunges. Called only
// after every transaction in the messages has been persisted.
func (f *Fetcher) Ack(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}

	client, err := f.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Logout()

	if _, err := client.Select(f.config.Mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("%w: failed to select %s: %v", common.ErrConnection, f.config.Mailbox, err)
	}

	imapUIDs := make([]imap.UID, len(uids))
	for i, uid := range uids {
		imapUIDs[i] = imap.UID(uid)
	}
	uidSet := imap.UIDSetNum(imapUIDs...)

	storeCmd := client.Store(uidSet, &imap.StoreFlags{
		Op:    imap.StoreFlagsAdd,
		Flags: []imap.Flag{imap.FlagSeen, imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("%w: failed to flag messages: %v", common.ErrConnection, err)
	}

	if err := client.Expunge().Close(); err != nil {
		return fmt.Errorf("%w: failed to expunge: %v", common.ErrConnection, err)
	}

	f.logger.Info("acknowledged alert emails", "count", len(uids))
	return nil
}

func (f *Fetcher) dial(ctx context.Context) (*imapclient.Client, error) {
	var client *imapclient.Client
	err := retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c, err := imapclient.DialTLS(f.config.Address, nil)
			if err != nil {
				return err
			}
			if err := c.Login(f.config.Username, f.config.Password).Wait(); err != nil {
				_ = c.Close()
				return err
			}
			client = c
			return nil
		},
		retry.Attempts(3),
		retry.Delay(3*time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			f.logger.Warn("imap connection failed, retrying", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConnection, err)
	}
	return client, nil
}

// extractHTML walks a MIME message and returns its first text/html part, or
// the text/plain part if no HTML exists.
func extractHTML(raw []byte) (string, error) {
	reader, err := gomail.CreateReader(strings.NewReader(string(raw)))
	if err != nil {
		return "", fmt.Errorf("%w: reading message: %v", common.ErrParse, err)
	}

	var plain string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: reading message part: %v", common.ErrParse, err)
		}

		header, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, err := header.ContentType()
		if err != nil {
			continue
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			return "", fmt.Errorf("%w: reading part body: %v", common.ErrParse, err)
		}

		switch contentType {
		case "text/html":
			return string(body), nil
		case "text/plain":
			plain = string(body)
		}
	}

	if plain != "" {
		return plain, nil
	}
	return "", fmt.Errorf("%w: no readable body part found", common.ErrParse)
}
