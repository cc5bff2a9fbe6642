// Package invite delivers "join me" invitations to people referenced by
// email before they have an account.
package invite

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Sender delivers an invitation to an email address. Delivery is best-effort;
// implementations log failures instead of returning them.
type Sender interface {
	SendInvite(ctx context.Context, email string, inviterID int64)
}

// Service mints an invite token per invitation and hands it to the delivery
// channel. TODO: wire an SMTP provider; until then the invite is only logged.
type Service struct{}

// NewService creates a new invite service
func NewService() *Service {
	return &Service{}
}

// SendInvite issues an invitation for the given email address.
func (s *Service) SendInvite(ctx context.Context, email string, inviterID int64) {
	token := uuid.NewString()
	slog.Info("invite issued",
		"email", email,
		"inviter_id", inviterID,
		"token", token,
	)
}
