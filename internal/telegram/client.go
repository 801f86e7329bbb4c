// Package telegram provides operator notifications via the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/partytap/internal/logger"
	"github.com/rewired-gh/partytap/internal/models"
	"github.com/rewired-gh/partytap/internal/party"
	"github.com/rewired-gh/partytap/internal/series"
)

// maxDigestPoints bounds how many purchases one digest lists.
const maxDigestPoints = 10

// PriceFunc returns the current chart series for the /price command.
type PriceFunc func(ctx context.Context) (*models.ChartSeries, error)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, price PriceFunc) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(ctx, update.Message, price)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(ctx context.Context, msg *tgbotapi.Message, price PriceFunc) {
	var reply tgbotapi.MessageConfig
	switch msg.Command() {
	case "ping":
		reply = tgbotapi.NewMessage(msg.Chat.ID, "Pong")
	case "price":
		if price == nil {
			return
		}
		s, err := price(ctx)
		if err != nil {
			logger.Warn("Failed to answer /price: %v", err)
			reply = tgbotapi.NewMessage(msg.Chat.ID, escapeMarkdownV2("Price feed unavailable: "+err.Error()))
		} else {
			reply = tgbotapi.NewMessage(msg.Chat.ID, formatPrice(s))
		}
		reply.ParseMode = "MarkdownV2"
	default:
		return
	}
	c.bot.Send(reply) //nolint:errcheck
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a watch-loop error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Price feed error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Price feed recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// SendPurchase reports a completed purchase with the buyer's refreshed balances.
func (c *Client) SendPurchase(buyer string, beer, usdc *big.Int) error {
	return c.sendMarkdownV2(formatPurchase(buyer, beer, usdc))
}

// SendCheckout reports beers burned at the bar.
func (c *Client) SendCheckout(holder *models.Holder, quantity int64) error {
	return c.sendMarkdownV2(formatCheckout(holder, quantity))
}

// SendNewPurchases sends a digest of purchases seen since the last poll.
func (c *Client) SendNewPurchases(points []models.CandlePoint) error {
	if len(points) == 0 {
		return nil
	}
	return c.sendMarkdownV2(formatNewPurchases(points))
}

func formatPurchase(buyer string, beer, usdc *big.Int) string {
	return fmt.Sprintf("🍺 *Beer purchased* by %s\nBeer balance: %s\nUSDC balance: %s",
		escapeMarkdownV2(buyer),
		escapeMarkdownV2(party.FormatUnits(beer, 0)),
		escapeMarkdownV2(party.FormatUSDC(usdc)))
}

func formatCheckout(holder *models.Holder, quantity int64) string {
	return fmt.Sprintf("🧾 *Checkout* %d beer\\(s\\) for %s", quantity, escapeMarkdownV2(holder.Label()))
}

func formatNewPurchases(points []models.CandlePoint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📈 *%d new purchase\\(s\\)*\n\n", len(points))

	shown := points
	if len(shown) > maxDigestPoints {
		shown = shown[len(shown)-maxDigestPoints:]
	}
	for _, p := range shown {
		emoji := "📈"
		if p.Close < p.Open {
			emoji = "📉"
		}
		line := fmt.Sprintf("block %d: %.2f → %.2f", p.X, p.Open, p.Close)
		fmt.Fprintf(&b, "%s %s\n", emoji, escapeMarkdownV2(line))
	}
	if hidden := len(points) - len(shown); hidden > 0 {
		fmt.Fprintf(&b, "_and %d more_\n", hidden)
	}
	return b.String()
}

func formatPrice(s *models.ChartSeries) string {
	last, ok := s.Last()
	if !ok {
		return escapeMarkdownV2("No purchases yet.")
	}
	text := fmt.Sprintf("💰 *Beer price* %s \\(block %d\\)",
		escapeMarkdownV2(fmt.Sprintf("%.2f", last.Close)), last.X)
	if w, ok := series.ViewWindow(s); ok {
		text += "\n" + escapeMarkdownV2(fmt.Sprintf("Window: %.2f to %.2f", w.Min, w.Max))
	}
	return text
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
