package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/attendify/attendify/internal/domain/shared"
	"github.com/attendify/attendify/internal/infrastructure/external/telegram"
	"github.com/attendify/attendify/pkg/circuitbreaker"
)

// NotificationTitle heads every threshold warning.
const NotificationTitle = "Attendify threshold warning"

// FormatWarning renders the body of a threshold warning.
func FormatWarning(courseCode string, percentage, required int) string {
	return fmt.Sprintf("Attendance in %s is %d%%, below required %d%%.", courseCode, percentage, required)
}

// TextSender sends a plain text message to a chat.
type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) (*telegram.Message, error)
}

// Throttle collapses repeated warnings for the same course.
type Throttle interface {
	Allow(ctx context.Context, courseCode string, percentage, required int) (bool, error)
	Release(ctx context.Context, courseCode string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// TELEGRAM NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// TelegramNotifierConfig configures TelegramNotifier.
type TelegramNotifierConfig struct {
	// ChatID is the chat that receives warnings. Zero disables delivery.
	ChatID int64

	// Throttle is optional.
	Throttle Throttle

	// Breaker is optional.
	Breaker *circuitbreaker.CircuitBreaker

	Logger *slog.Logger
}

// TelegramNotifier delivers threshold warnings through a Telegram bot.
type TelegramNotifier struct {
	sender   TextSender
	chatID   int64
	throttle Throttle
	breaker  *circuitbreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewTelegramNotifier creates a notifier. A nil sender or a zero chat id
// yields a notifier that only logs.
func NewTelegramNotifier(sender TextSender, cfg TelegramNotifierConfig) *TelegramNotifier {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &TelegramNotifier{
		sender:   sender,
		chatID:   cfg.ChatID,
		throttle: cfg.Throttle,
		breaker:  cfg.Breaker,
		logger:   cfg.Logger.With("component", "notifier"),
	}
}

// NotifyBelowThreshold sends one warning. Missing delivery permission is
// not an error.
func (n *TelegramNotifier) NotifyBelowThreshold(ctx context.Context, courseCode string, percentage, required int) error {
	if n.sender == nil || n.chatID == 0 {
		n.logger.Debug("notification delivery not configured", "course", courseCode)
		return nil
	}

	if n.throttle != nil {
		ok, err := n.throttle.Allow(ctx, courseCode, percentage, required)
		if err != nil {
			n.logger.Warn("notification throttle unavailable", "course", courseCode, "error", err)
		} else if !ok {
			n.logger.Debug("notification throttled", "course", courseCode)
			return nil
		}
	}

	err := n.send(ctx, NotificationTitle+"\n"+FormatWarning(courseCode, percentage, required))
	switch {
	case err == nil:
		n.logger.Info("threshold warning sent", "course", courseCode, "percentage", percentage, "required", required)
		return nil
	case telegram.IsChatUnavailable(err):
		n.logger.Warn("notification chat unavailable", "course", courseCode, "error", err)
		return nil
	}

	if n.throttle != nil {
		if rerr := n.throttle.Release(ctx, courseCode); rerr != nil {
			n.logger.Warn("release notification throttle", "course", courseCode, "error", rerr)
		}
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return shared.WrapError("notification", "Send", shared.ErrServiceUnavailable, "notifier circuit open", err)
	}
	return shared.WrapError("notification", "Send", shared.ErrNotificationFailed, "failed to send notification", err)
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	call := func(ctx context.Context) error {
		_, err := n.sender.SendText(ctx, n.chatID, text)
		return err
	}
	if n.breaker == nil {
		return call(ctx)
	}
	return n.breaker.Execute(ctx, call)
}

// ══════════════════════════════════════════════════════════════════════════════
// LOG NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// LogNotifier writes warnings to the log. Used when no bot is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

// NotifyBelowThreshold logs the warning.
func (n *LogNotifier) NotifyBelowThreshold(_ context.Context, courseCode string, percentage, required int) error {
	n.logger.Warn(NotificationTitle, "message", FormatWarning(courseCode, percentage, required))
	return nil
}
