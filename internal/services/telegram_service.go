package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/purrpouch/internal/models"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramService sends admin notifications to a Telegram chat.
type TelegramService struct {
	botToken    string
	adminChatID string
	apiURL      string
	client      *http.Client
	async       bool
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		apiURL:      defaultTelegramAPI,
		client:      &http.Client{Timeout: 10 * time.Second},
		async:       true,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		return nil
	}

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(s.apiURL, "/"), s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// Notify implements Subscriber. Only payments are announced; the send runs
// on its own goroutine so a slow Telegram API never delays the webhook.
func (s *TelegramService) Notify(_ context.Context, change StatusChange) error {
	if s.adminChatID == "" || change.Status != models.OrderStatusPaid {
		return nil
	}

	text := formatPaymentMessage(change)
	send := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.SendMessage(ctx, s.adminChatID, text); err != nil {
			log.Printf("[Telegram] payment notification failed for order %s: %v", change.OrderID, err)
			return
		}
		log.Printf("[Telegram] payment notification sent for order %s", change.OrderID)
	}

	if s.async {
		go send()
		return nil
	}
	send()
	return nil
}

func formatPaymentMessage(change StatusChange) string {
	return strings.TrimSpace(fmt.Sprintf(`<b>✅ PAYMENT RECEIVED</b>
<b>📋 Order:</b> %s
<b>💰 Amount:</b> %s
<b>💳 Source:</b> %s
━━━━━━━━━━━━━━━━━━
<i>PurrPouch</i>`,
		change.OrderID,
		FormatPrice(change.TotalAmount, change.Currency),
		change.Source,
	))
}

// FormatPrice formats an amount with thousand separators and currency.
func FormatPrice(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "VND"
	}

	str := amount.Truncate(0).String()
	sign := ""
	if strings.HasPrefix(str, "-") {
		sign, str = "-", str[1:]
	}

	var result strings.Builder
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result.WriteByte(',')
		}
		result.WriteRune(digit)
	}

	return sign + result.String() + " " + currency
}
