package kafkaconsumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/simple-wcs/internal/core/observability"
)

// groupHandler runs one claim loop per assigned partition. An offset is marked
// only once its event was applied to the cache.
type groupHandler struct {
	process func(context.Context, *sarama.ConsumerMessage) error
	logger  *slog.Logger
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info("invalidation partitions assigned",
		"member", sess.MemberID(), "generation", sess.GenerationID(), "claims", sess.Claims())
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.logger.Debug("invalidation partitions released", "generation", sess.GenerationID())
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	msgs := claim.Messages()
	for {
		var msg *sarama.ConsumerMessage
		select {
		case <-ctx.Done():
			return fmt.Errorf("claim %s/%d: %w", claim.Topic(), claim.Partition(), ctx.Err())
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			msg = m
		}

		if err := h.process(ctx, msg); err != nil {
			// unmarked, so the message is redelivered after the rebalance
			return fmt.Errorf("claim %s/%d offset %d: %w", msg.Topic, msg.Partition, msg.Offset, err)
		}
		sess.MarkMessage(msg, "")
		if hw := claim.HighWaterMarkOffset(); hw > 0 {
			obs.SetInvalidationLag(claim.Partition(), hw-msg.Offset-1)
		}
	}
}
