// Package notify sends cycle outcomes worth a human's attention to Telegram.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"crypto-trading-assistant/internal/interfaces"
	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/types"
)

// Sender is the part of the bot API the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	sender Sender
	chatID int64
	notify map[types.Outcome]bool
}

var _ interfaces.Notifier = (*Telegram)(nil)

// New authenticates the bot token (getMe) against the public API.
func New(token string, chatID int64) (*Telegram, error) {
	return NewWithEndpoint(token, tgbotapi.APIEndpoint, chatID)
}

// NewWithEndpoint takes an endpoint format such as
// "https://api.telegram.org/bot%s/%s".
func NewWithEndpoint(token, endpoint string, chatID int64) (*Telegram, error) {
	if token == "" {
		return nil, errors.Wrap(types.ErrConfiguration, "telegram bot token is empty")
	}
	if chatID == 0 {
		return nil, errors.Wrap(types.ErrConfiguration, "telegram chat id is not set")
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "telegram login")
	}
	return NewWithSender(bot, chatID), nil
}

func NewWithSender(s Sender, chatID int64) *Telegram {
	return &Telegram{
		sender: s,
		chatID: chatID,
		notify: map[types.Outcome]bool{
			types.OutcomeOrderPlaced:    true,
			types.OutcomePositionClosed: true,
			types.OutcomeFailed:         true,
		},
	}
}

// Notify sends a message for placed orders, closed positions and failures.
// Other outcomes are ignored.
func (t *Telegram) Notify(ctx context.Context, res types.CycleResult) error {
	if !t.notify[res.Outcome] {
		return nil
	}
	msg := tgbotapi.NewMessage(t.chatID, Format(res))
	msg.DisableWebPagePreview = true
	if _, err := t.sender.Send(msg); err != nil {
		return errors.Wrap(err, "telegram send")
	}
	logger.Debug(ctx, "Notification sent", "symbol", res.Symbol, "outcome", res.Outcome)
	return nil
}

// Format renders res as plain text.
func Format(res types.CycleResult) string {
	var b strings.Builder
	switch res.Outcome {
	case types.OutcomeOrderPlaced:
		fmt.Fprintf(&b, "ORDER %s %s", res.ActionTaken, res.Symbol)
	case types.OutcomePositionClosed:
		fmt.Fprintf(&b, "CLOSED %s", res.Symbol)
	case types.OutcomeFailed:
		fmt.Fprintf(&b, "FAILED %s", res.Symbol)
	default:
		fmt.Fprintf(&b, "%s %s", res.Outcome, res.Symbol)
	}
	if res.Order != nil && res.Order.Success {
		fmt.Fprintf(&b, "\nfill %.8g id %s", res.Order.FillPrice, res.Order.OrderID)
	}
	if res.Decision != nil && res.Decision.Approved && !res.Decision.ClosesPosition {
		fmt.Fprintf(&b, "\nsize %.8g stop %.8g take %.8g", res.Decision.MaxPositionSize, res.Decision.StopLoss, res.Decision.TakeProfit)
	}
	if res.Closed != nil {
		fmt.Fprintf(&b, "\nrealized %s (%s)", res.Closed.RealizedPnL.StringFixed(2), res.Closed.Reason)
	}
	if res.Reason != "" && res.Outcome == types.OutcomeFailed {
		fmt.Fprintf(&b, "\n%s", res.Reason)
	}
	return b.String()
}
