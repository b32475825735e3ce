package chat

import (
	"context"
	"fmt"
	"log"

	"github.com/parley-ai/parley/pkg/record"
)

// reconcile translates a turn's terminal outcome into exactly one
// durable message write. It is called from the single terminal point in
// Send, never from individual failure sites, so overlapping completion
// and cancellation can never double-write.
func (c *Client) reconcile(ctx context.Context, messageID, turnText string, out outcome) (*record.Message, error) {
	// The terminal write must land even when the turn context was
	// cancelled; only the stream reads honor cancellation.
	ctx = context.WithoutCancel(ctx)

	update := record.MessageUpdate{
		Content:  &out.content,
		Status:   &out.status,
		Metadata: out.meta,
	}
	if out.status == record.StatusError {
		update.ErrorMessage = &out.reason
	}

	if err := c.store.UpdateMessage(ctx, messageID, update); err != nil {
		return nil, fmt.Errorf("reconcile message %s: %w", messageID, err)
	}

	// Title confirmation rides along with the first successful turn.
	if out.status == record.StatusComplete {
		if err := c.life.maybeAutoTitle(ctx, c.session, turnText); err != nil {
			log.Printf("[CHAT] session %s: auto-title failed: %v", c.session.ID, err)
		}
	}

	return c.store.GetMessage(ctx, messageID)
}
