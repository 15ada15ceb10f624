package notify

//go:generate mockgen -destination=../mocks/mock_sender.go -package=mocks github.com/nurdamiron/prometric-backend-v2-sub001/internal/notify Sender

import (
	"context"
	"log/slog"
)

// Sender delivers a verification code to a freshly registered address.
// Delivery is best-effort: callers log failures and never roll back the
// registration that triggered the send.
type Sender interface {
	SendVerificationCode(ctx context.Context, email, code, locale string) error
}

// LogSender stands in for the real mail gateway in development. It only
// writes the destination address, never the code itself.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendVerificationCode(ctx context.Context, email, _, locale string) error {
	s.logger.InfoContext(ctx, "verification code dispatched", "email", email, "locale", locale)
	return nil
}
