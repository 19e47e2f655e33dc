package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/solten/donations/internal/models"
	"github.com/solten/donations/utils"
)

// TelegramNotifier pushes confirmed donations to the admin chat. Sends happen
// on their own goroutine so the payment path never waits on Telegram.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *utils.Logger
}

func NewTelegramNotifier(token string, chatID int64, logger *utils.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	return &TelegramNotifier{bot: bot, chatID: chatID, logger: logger}, nil
}

func (n *TelegramNotifier) DonationConfirmed(donation *models.Donation, payment *models.PendingPayment) {
	text := fmt.Sprintf(
		"New Bitcoin donation!\n\n"+
			"*From:* `%s`\n"+
			"*Amount:* `%.2f` USD (`%.8f` BTC)\n"+
			"*Address:* `%s`\n"+
			"*TXID:* `%s`",
		donation.DisplayName,
		donation.AmountUSD,
		payment.ExpectedAmountBTC,
		payment.Address,
		payment.TxID,
	)
	if donation.Message != "" {
		text += fmt.Sprintf("\n*Message:* %s", donation.Message)
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	go func() {
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Warnf("failed to send donation notification: %v", err)
		}
	}()
}
