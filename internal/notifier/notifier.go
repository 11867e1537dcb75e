// Package notifier renders relay messages onto the chat transport.
//
// It owns the inline Done button, the callback-data format that carries
// the correlation token back, and a shared rate limiter so bursts of
// announcements stay inside the platform's send limits.
package notifier

import (
	"context"
	"fmt"
	"html"
	"strings"

	tele "gopkg.in/telebot.v4"

	"golang.org/x/time/rate"

	"github.com/nomanoma121/github-notification-bot/internal/feed"
	"github.com/nomanoma121/github-notification-bot/internal/relay"
	kit "github.com/nomanoma121/github-notification-bot/internal/transport"
	"github.com/nomanoma121/github-notification-bot/pkg/logx"
)

// ackPrefix tags callback data so unrelated button presses are ignored.
const ackPrefix = "ack:"

// AckData packs a correlation token into callback data.
func AckData(token string) string { return ackPrefix + token }

// ParseAckData extracts the correlation token from callback data.
// Telebot prefixes unique-button routing with "\f"; strip it either way.
func ParseAckData(data string) (string, bool) {
	data = strings.TrimPrefix(strings.TrimSpace(data), "\f")
	if !strings.HasPrefix(data, ackPrefix) {
		return "", false
	}
	token := data[len(ackPrefix):]
	if token == "" {
		return "", false
	}
	return token, true
}

type Config struct {
	Target     kit.ChatTarget
	RatePerSec int // outbound send cap; defaults to 1
}

type Service struct {
	adapter kit.Adapter
	target  kit.ChatTarget
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		adapter: adapter,
		target:  cfg.Target,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

func (s *Service) Announce(ctx context.Context, item feed.Item, token string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	opt := &kit.SendOptions{
		ParseMode:          tele.ModeHTML,
		DisablePreview:     true,
		ReplyMarkupAdapter: doneMarkup(token),
	}
	_, err := s.adapter.SendText(ctx, s.target, announceText(item), opt)
	return err
}

func (s *Service) Remind(ctx context.Context, title, token string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	opt := &kit.SendOptions{
		ParseMode:          tele.ModeHTML,
		DisablePreview:     true,
		ReplyMarkupAdapter: doneMarkup(token),
	}
	text := "⏰ Reminder: <b>" + html.EscapeString(title) + "</b>"
	_, err := s.adapter.SendText(ctx, s.target, text, opt)
	return err
}

func (s *Service) ConfirmAck(ctx context.Context, ev relay.AckEvent, duplicate bool) error {
	text := "✅ Done"
	if duplicate {
		text = "Already done"
	}
	return s.adapter.AnswerCallback(ctx, ev.CallbackID, text)
}

func (s *Service) ApplyTerminalUI(ctx context.Context, ev relay.AckEvent, title string) error {
	ref := kit.MessageRef{ChatID: ev.ChatID, ThreadID: ev.ThreadID, MessageID: ev.MessageID}
	// Editing without markup drops the button; the strike marks it done.
	text := "<s>" + html.EscapeString(title) + "</s> ✅"
	return s.adapter.EditText(ctx, ref, text, &kit.SendOptions{ParseMode: tele.ModeHTML, DisablePreview: true})
}

func announceText(item feed.Item) string {
	var b strings.Builder
	b.WriteString("🔔 <b>")
	b.WriteString(html.EscapeString(item.Title))
	b.WriteString("</b>")

	meta := make([]string, 0, 3)
	if item.Repo != "" {
		meta = append(meta, item.Repo)
	}
	if item.Type != "" {
		meta = append(meta, item.Type)
	}
	if item.Reason != "" {
		meta = append(meta, item.Reason)
	}
	if len(meta) > 0 {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(strings.Join(meta, " / ")))
	}
	if item.URL != "" {
		fmt.Fprintf(&b, "\n<a href=%q>open</a>", item.URL)
	}
	return b.String()
}

func doneMarkup(token string) *tele.ReplyMarkup {
	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{{
			{Text: "✅ Done", Data: AckData(token)},
		}},
	}
}
