// Package notify sends push notifications through Firebase Cloud Messaging.
// Invalid or unregistered tokens reported by FCM are deactivated in the
// token store so they stop accumulating failures.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/bbirdsall/budgetflow/internal/service"
)

const fcmBatchLimit = 500

// Sink implements service.NotificationSink over FCM.
type Sink struct {
	client *messaging.Client
	tokens service.TokenStore
	logger *slog.Logger
}

// NewSink initializes a Firebase app from a service-account credentials file
// and returns a notification sink fanning out to every active token in the
// store.
func NewSink(ctx context.Context, credentialsFile string, tokens service.TokenStore, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging client: %w", err)
	}

	return &Sink{client: client, tokens: tokens, logger: logger}, nil
}

// Notify sends a notification to every active device. Individual send
// failures are logged, not returned; only failure to reach FCM at all or to
// read the token store is an error.
func (s *Sink) Notify(ctx context.Context, title, body string) error {
	tokens, err := s.tokens.ActiveTokens(ctx)
	if err != nil {
		return fmt.Errorf("failed to load device tokens: %w", err)
	}
	if len(tokens) == 0 {
		s.logger.Debug("no active device tokens, skipping notification", "title", title)
		return nil
	}

	var success, failure int
	for _, batch := range chunkTokens(tokens, fcmBatchLimit) {
		msg := &messaging.MulticastMessage{
			Tokens: batch,
			Notification: &messaging.Notification{
				Title: title,
				Body:  body,
			},
		}

		resp, err := s.client.SendEachForMulticast(ctx, msg)
		if err != nil {
			return fmt.Errorf("failed to send FCM multicast: %w", err)
		}

		success += resp.SuccessCount
		failure += resp.FailureCount
		if resp.FailureCount > 0 {
			s.handleFailures(ctx, batch, resp)
		}
	}

	s.logger.Info("push notification sent",
		"title", title,
		"success", success,
		"failure", failure,
	)
	return nil
}

func (s *Sink) handleFailures(ctx context.Context, tokens []string, resp *messaging.BatchResponse) {
	for i, sendResp := range resp.Responses {
		if sendResp.Error == nil {
			continue
		}
		if messaging.IsUnregistered(sendResp.Error) || messaging.IsInvalidArgument(sendResp.Error) {
			s.logger.Warn("deactivating invalid device token", "token", tokens[i])
			if err := s.tokens.DeactivateToken(ctx, tokens[i]); err != nil {
				s.logger.Error("failed to deactivate token", "token", tokens[i], "error", err)
			}
		} else {
			s.logger.Error("FCM send error", "token", tokens[i], "error", sendResp.Error)
		}
	}
}

func chunkTokens(tokens []string, size int) [][]string {
	var chunks [][]string
	for i := 0; i < len(tokens); i += size {
		end := i + size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, tokens[i:end])
	}
	return chunks
}
