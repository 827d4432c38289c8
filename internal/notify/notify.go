package notify

import (
	"fmt"

	"go.uber.org/zap"

	"paygate/internal/models"
	"paygate/internal/pkg/telegram"
)

// Notifier receives order-status-change notifications from the reconciler.
// OrderCompleted fires exactly once per order, on the pending→completed
// transition.
type Notifier interface {
	OrderCompleted(order *models.Order, transactionID string)
}

// LogNotifier writes completions to the service log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) OrderCompleted(order *models.Order, transactionID string) {
	n.logger.Info("Order completed",
		zap.String("purchase_key", order.PurchaseKey),
		zap.String("amount", order.Amount.StringFixed(2)),
		zap.String("currency", order.Currency),
		zap.String("transaction_id", transactionID),
	)
}

// TelegramNotifier reports completions to an operator chat.
type TelegramNotifier struct {
	bot    *telegram.BotAPI
	chatID string
	logger *zap.Logger
}

func NewTelegramNotifier(bot *telegram.BotAPI, chatID string, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID, logger: logger}
}

func (n *TelegramNotifier) OrderCompleted(order *models.Order, transactionID string) {
	text := fmt.Sprintf(
		"💵 Payment received\n\nOrder: %s\nBuyer: %s\nAmount: %s %s\nTransaction: %s",
		order.PurchaseKey, order.FullName,
		order.Amount.StringFixed(2), order.Currency,
		transactionID,
	)
	if _, err := n.bot.SendMessage(n.chatID, text); err != nil {
		n.logger.Warn("Telegram payment report failed", zap.Error(err))
	}
}

// MultiNotifier fans a notification out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) OrderCompleted(order *models.Order, transactionID string) {
	for _, n := range m {
		n.OrderCompleted(order, transactionID)
	}
}
