package api

import (
	"context"

	"github.com/shikkhasathi/offline/internal/domain"
)

// Delivery endpoints, one per sync-queue kind. Each payload carries its
// locally generated id, so the backend can dedupe redelivered items; the
// sync queue retries with unmodified payloads.

// SubmitQuizAttempt delivers a completed quiz attempt.
func (c *Client) SubmitQuizAttempt(ctx context.Context, a *domain.QuizAttempt) error {
	return c.postJSON(ctx, "/quiz/attempts", a, nil)
}

// UpdateProgress delivers a mastery-record change.
func (c *Client) UpdateProgress(ctx context.Context, p *domain.Progress) error {
	return c.postJSON(ctx, "/progress", p, nil)
}

// PostChatMessage delivers a locally recorded chat message.
func (c *Client) PostChatMessage(ctx context.Context, m *domain.ChatMessage) error {
	return c.postJSON(ctx, "/chat/messages", m, nil)
}
