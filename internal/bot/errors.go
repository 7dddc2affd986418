package bot

import (
	"context"
	"strings"
	"time"
)

// FailureClass buckets Telegram delivery errors into the handful of outcomes
// the pipeline cares about. The API only exposes them as message strings.
type FailureClass int

const (
	FailureUnknown FailureClass = iota
	// FailurePermission: the bot lacks rights in the chat. Terminal for the
	// affected message, never retried.
	FailurePermission
	// FailureGone: the bot is no longer a member of the chat, or the chat
	// does not exist anymore. Triggers membership cleanup.
	FailureGone
	// FailureRateLimited: transient flood control, eligible for retry.
	FailureRateLimited
	// FailureNotFound: the target message is already gone.
	FailureNotFound
)

var failurePatterns = map[FailureClass][]string{
	FailurePermission: {
		"not enough rights",
		"need administrator rights",
		"message can't be deleted",
		"have no rights to send",
	},
	FailureGone: {
		"bot was kicked",
		"bot is not a member",
		"chat not found",
		"bot was blocked",
		"group chat was deactivated",
		"user is deactivated",
	},
	FailureRateLimited: {
		"too many requests",
		"retry after",
	},
	FailureNotFound: {
		"message to delete not found",
		"message not found",
	},
}

func Classify(err error) FailureClass {
	if err == nil {
		return FailureUnknown
	}
	msg := strings.ToLower(err.Error())
	for class, patterns := range failurePatterns {
		for _, pattern := range patterns {
			if strings.Contains(msg, pattern) {
				return class
			}
		}
	}
	return FailureUnknown
}

// IsRetryable reports whether a delivery attempt is worth repeating.
// Permission and gone-class failures are permanent per chat.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case FailurePermission, FailureGone, FailureNotFound:
		return false
	default:
		return err != nil
	}
}

// Retry runs fn with exponential backoff, bailing out early on permanent
// failure classes and context cancellation.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		delay := baseDelay << uint(attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
