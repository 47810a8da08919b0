package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"facecards/internal/models"

	"go.uber.org/zap"
)

const (
	DefaultAPIBaseURL = "https://api.telegram.org"
	requestTimeout    = 10 * time.Second
)

type Message struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type Response struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

var markdownV2Escape = regexp.MustCompile(`([_*\[\]()~` + "`" + `>#+\-=|{}.!\\])`)

func escapeMarkdownV2(text string) string {
	return markdownV2Escape.ReplaceAllString(text, `\$1`)
}

// Notifier tells admins about new accounts through the Bot API. Delivery
// happens in the background so a slow Telegram never delays a login.
type Notifier struct {
	botToken  string
	baseURL   string
	adminIDs  []int64
	client    *http.Client
	templates *Templates
	logger    *zap.Logger
	wg        sync.WaitGroup
}

func NewNotifier(botToken, baseURL string, adminIDs []int64, templates *Templates, logger *zap.Logger) *Notifier {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		botToken:  botToken,
		baseURL:   strings.TrimRight(baseURL, "/"),
		adminIDs:  adminIDs,
		client:    &http.Client{Timeout: requestTimeout},
		templates: templates,
		logger:    logger,
	}
}

// AccountCreated renders the admin message and sends it to every admin.
func (n *Notifier) AccountCreated(ctx context.Context, acc *models.Account) error {
	if len(n.adminIDs) == 0 {
		return nil
	}

	username := ""
	if acc.Username != nil {
		username = *acc.Username
	}
	text, err := n.templates.Render(NewAccountTemplate, map[string]interface{}{
		"DisplayName": acc.DisplayName(),
		"Username":    username,
		"TelegramID":  acc.TelegramID,
		"AccountID":   strconv.FormatInt(acc.ID, 10),
		"Premium":     acc.IsPremium,
		"Date":        acc.CreatedAt.Format("15:04 02.01.2006"),
	})
	if err != nil {
		return err
	}

	sendCtx := context.WithoutCancel(ctx)
	for _, adminID := range n.adminIDs {
		n.wg.Add(1)
		go func(chatID int64) {
			defer n.wg.Done()
			if err := n.SendMessage(sendCtx, chatID, text); err != nil {
				n.logger.Warn("Failed to notify admin",
					zap.Int64("chat_id", chatID),
					zap.Int64("account_id", acc.ID),
					zap.Error(err))
			}
		}(adminID)
	}
	return nil
}

// Wait blocks until background deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	msg := Message{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "MarkdownV2",
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return errors.New("create sendMessage request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		// The URL embeds the bot token; never surface it.
		return fmt.Errorf("sendMessage: %s", redactToken(err.Error(), n.botToken))
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			n.logger.Debug("Error closing response body", zap.Error(closeErr))
		}
	}()

	var telegramResp Response
	if err := json.NewDecoder(resp.Body).Decode(&telegramResp); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !telegramResp.OK {
		return fmt.Errorf("telegram API error: %s", telegramResp.Description)
	}

	n.logger.Debug("Sent Telegram notification", zap.Int64("chat_id", chatID))
	return nil
}

func redactToken(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "[REDACTED]")
}
