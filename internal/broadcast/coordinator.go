// Package broadcast fans a single authored message out to every group the
// bot manages, one send at a time under the transport's rate ceiling.
package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Istamjon/Expressbot/internal/bot"
	"github.com/Istamjon/Expressbot/internal/db"
	"github.com/Istamjon/Expressbot/internal/infrastructure/telegram"
	"github.com/Istamjon/Expressbot/internal/observability"
)

// Transport is the outbound slice the coordinator needs.
type Transport interface {
	SendContent(ctx context.Context, chatID int64, content telegram.Content) error
	MemberCount(ctx context.Context, chatID int64) (int, error)
}

// MembershipStore lists destinations and removes the ones the bot has been
// kicked from.
type MembershipStore interface {
	ListMemberships(ctx context.Context) ([]*db.Membership, error)
	RemoveMembership(ctx context.Context, chatID int64) error
}

// Report summarizes one broadcast run. Delivered+Failed always equals Total,
// the membership count at the start of the run.
type Report struct {
	RunID          string
	Total          int
	Delivered      int
	Failed         int
	EstimatedReach int
	Errors         []string
	ErrorsOmitted  int
}

type Coordinator struct {
	ops       Transport
	store     MembershipStore
	limiter   *rate.Limiter
	maxErrors int
}

func NewCoordinator(ops Transport, store MembershipStore, sendDelay time.Duration, maxErrors int) *Coordinator {
	return &Coordinator{
		ops:       ops,
		store:     store,
		limiter:   rate.NewLimiter(rate.Every(sendDelay), 1),
		maxErrors: maxErrors,
	}
}

// Broadcast delivers content to every membership sequentially; no send starts
// before the limiter delay since the previous one has elapsed. A destination
// that reports the bot gone is dropped from the membership table on the spot.
// The run always completes: per-destination failures are recorded, never
// propagated.
func (c *Coordinator) Broadcast(ctx context.Context, content telegram.Content) (*Report, error) {
	memberships, err := c.store.ListMemberships(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "cant list memberships")
	}

	report := &Report{
		RunID: uuid.New(),
		Total: len(memberships),
	}
	entry := c.getLogEntry().WithFields(log.Fields{
		"run_id": report.RunID,
		"total":  report.Total,
	})
	entry.Info("broadcast started")

	for _, membership := range memberships {
		if err := c.limiter.Wait(ctx); err != nil {
			// Context cancelled mid-run: count the rest as failed so the
			// totals still add up.
			report.Failed++
			c.recordError(report, membership.Title, err)
			continue
		}

		if err := c.ops.SendContent(ctx, membership.ChatID, content); err != nil {
			report.Failed++
			observability.RecordBroadcastDelivery("failed")
			c.recordError(report, membership.Title, err)

			if bot.Classify(err) == bot.FailureGone {
				if removeErr := c.store.RemoveMembership(ctx, membership.ChatID); removeErr != nil {
					entry.WithError(removeErr).Error("cant remove stale membership")
				} else {
					entry.WithField("chat_id", membership.ChatID).Info("removed stale membership")
				}
			}
			continue
		}

		report.Delivered++
		observability.RecordBroadcastDelivery("delivered")

		count, err := c.ops.MemberCount(ctx, membership.ChatID)
		if err != nil {
			// Best effort: the group is simply excluded from the estimate.
			entry.WithField("chat_id", membership.ChatID).WithError(err).Debug("cant get member count")
			continue
		}
		report.EstimatedReach += count
	}

	entry.WithFields(log.Fields{
		"delivered": report.Delivered,
		"failed":    report.Failed,
		"reach":     report.EstimatedReach,
	}).Info("broadcast finished")
	return report, nil
}

func (c *Coordinator) recordError(report *Report, title string, err error) {
	if len(report.Errors) >= c.maxErrors {
		report.ErrorsOmitted++
		return
	}
	report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", title, err))
}

func (c *Coordinator) getLogEntry() *log.Entry {
	return log.WithField("context", "broadcast")
}
