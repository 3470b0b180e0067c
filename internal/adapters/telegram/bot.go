package telegram

import (
	"context"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
)

// maxMessageLen stays under Telegram's 4096 character limit after escaping
const maxMessageLen = 3800

// Sender delivers MarkdownV2 text to a chat
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
	Typing(chatID int64)
}

// Config contains Telegram bot configuration
type Config struct {
	Token       string
	Debug       bool
	PollTimeout time.Duration
	HTTPTimeout time.Duration
	// RatePerSecond caps outgoing messages (Telegram allows about 30/s)
	RatePerSecond int
	Burst         int
}

// Bot is a long-polling Telegram bot
type Bot struct {
	api         *tgbotapi.BotAPI
	log         *logger.Logger
	rateLimiter *rate.Limiter
	pollTimeout int

	mu      sync.Mutex
	running bool
	handler func(ctx context.Context, update tgbotapi.Update)
	wg      sync.WaitGroup
}

var _ Sender = (*Bot)(nil)

// NewBot authorizes the token and creates the bot
func NewBot(cfg Config, log *logger.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "telegram bot token is required")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 60 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		// must outlast the long poll
		cfg.HTTPTimeout = cfg.PollTimeout + 10*time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 30
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}
	api.Debug = cfg.Debug

	log.Infof("Authorized on account %s", api.Self.UserName)

	return &Bot{
		api:         api,
		log:         log.With("component", "telegram_bot"),
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		pollTimeout: int(cfg.PollTimeout.Seconds()),
	}, nil
}

// SetHandler registers the update handler; call before Start
func (b *Bot) SetHandler(h func(ctx context.Context, update tgbotapi.Update)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

// Start polls for updates until ctx is cancelled. Each update is handled
// in its own goroutine; Start waits for them before returning.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return errors.Wrap(errors.ErrInternal, "bot is already running")
	}
	b.running = true
	handler := b.handler
	b.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(u)

	b.log.Info("✓ Telegram bot started, waiting for updates")

	for {
		select {
		case <-ctx.Done():
			b.stop()
			b.wg.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			if handler == nil {
				continue
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				handler(ctx, update)
			}()
		}
	}
}

func (b *Bot) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	b.api.StopReceivingUpdates()
	b.running = false
	b.log.Info("✓ Telegram bot stopped")
}

// Send delivers text as MarkdownV2, split into several messages when long
func (b *Bot) Send(ctx context.Context, chatID int64, text string) error {
	for _, part := range splitMessage(text, maxMessageLen) {
		if err := b.rateLimiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limiter wait failed")
		}

		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdownV2
		msg.DisableWebPagePreview = true

		start := time.Now()
		if _, err := b.api.Send(msg); err != nil {
			b.log.Errorw("Failed to send message", "chat_id", chatID, "error", err, "duration", time.Since(start))
			return errors.Wrap(err, "failed to send message")
		}
	}
	return nil
}

// Typing shows the typing indicator; failures are ignored
func (b *Bot) Typing(chatID int64) {
	_, _ = b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
}

// splitMessage cuts text at line breaks so no part exceeds limit runes.
// A single oversized line is cut at a rune boundary that does not leave
// a dangling escape backslash.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var parts []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			parts = append(parts, string(cur))
			cur = cur[:0]
		}
	}

	for _, line := range splitLines(text) {
		runes := []rune(line)
		if len(cur)+len(runes) > limit {
			flush()
		}
		for len(runes) > limit {
			cut := limit
			if runes[cut-1] == '\\' {
				cut--
			}
			parts = append(parts, string(runes[:cut]))
			runes = runes[cut:]
		}
		cur = append(cur, runes...)
	}
	flush()
	return parts
}

// splitLines keeps the trailing newline on every line
func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
