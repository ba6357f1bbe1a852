// Package telegram implements transport.Platform on the Telegram Bot API.
//
// Channels are chat ids of forum supergroups; a "thread" is a forum topic.
// Telegram cannot attach a topic to an existing message, so StartThread
// creates the topic and copies the message into it. The original stays in
// the General topic, where it is the one that gets pinned.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"threadsched/internal/transport"
	logx "threadsched/pkg/logx"
)

// topicNameLimit is Telegram's maximum forum topic name length.
const topicNameLimit = 128

type Config struct {
	Token       string
	PollTimeout time.Duration
	RatePerSec  int
}

// api is the slice of the Bot API the driver uses.
type api interface {
	chatByID(id int64) (*tele.Chat, error)
	send(chat *tele.Chat, text string) (*tele.Message, error)
	createTopic(chat *tele.Chat, name string) (*tele.Topic, error)
	copyToTopic(chat *tele.Chat, messageID, threadID int) (*tele.Message, error)
	pin(chat *tele.Chat, messageID int) error
	unpin(chat *tele.Chat, messageID int) error
}

type botAPI struct{ b *tele.Bot }

func (a botAPI) chatByID(id int64) (*tele.Chat, error) { return a.b.ChatByID(id) }

func (a botAPI) send(chat *tele.Chat, text string) (*tele.Message, error) {
	return a.b.Send(chat, text, &tele.SendOptions{DisableWebPagePreview: true})
}

func (a botAPI) createTopic(chat *tele.Chat, name string) (*tele.Topic, error) {
	return a.b.CreateTopic(chat, &tele.Topic{Name: name})
}

func (a botAPI) copyToTopic(chat *tele.Chat, messageID, threadID int) (*tele.Message, error) {
	src := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chat.ID}
	return a.b.Copy(chat, src, &tele.SendOptions{ThreadID: threadID, DisableNotification: true})
}

func (a botAPI) pin(chat *tele.Chat, messageID int) error {
	return a.b.Pin(tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chat.ID}, tele.Silent)
}

func (a botAPI) unpin(chat *tele.Chat, messageID int) error { return a.b.Unpin(chat, messageID) }

type Platform struct {
	log     logx.Logger
	api     api
	limiter *rate.Limiter
}

var _ transport.Platform = (*Platform)(nil)

// New creates the bot. telebot verifies the token with getMe.
func New(ctx context.Context, cfg Config, log logx.Logger) (*Platform, error) {
	_ = ctx
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram: %w: empty token", transport.ErrUnauthorized)
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  strings.TrimSpace(cfg.Token),
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: verify token: %w", mapErr(err))
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log.Info("connected", logx.String("user", b.Me.Username), logx.Int64("user_id", b.Me.ID))
	return newPlatform(botAPI{b: b}, cfg.RatePerSec, log), nil
}

func newPlatform(a api, ratePerSec int, log logx.Logger) *Platform {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	return &Platform{log: log, api: a, limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)}
}

func (p *Platform) Name() string { return "telegram" }

// Close is a no-op: the bot never starts polling, so there is nothing to stop.
func (p *Platform) Close() error { return nil }

func (p *Platform) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

func (p *Platform) ResolveChannel(ctx context.Context, id string) (transport.Channel, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram: chat %q: %w: not a chat id", id, transport.ErrNotFound)
	}
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	chat, err := p.api.chatByID(chatID)
	if err != nil {
		return nil, fmt.Errorf("telegram: chat %s: %w", id, mapErr(err))
	}
	return &channel{p: p, chat: chat}, nil
}

type channel struct {
	p    *Platform
	chat *tele.Chat
}

func (c *channel) ID() string   { return strconv.FormatInt(c.chat.ID, 10) }
func (c *channel) Name() string { return c.chat.Title }
func (c *channel) Kind() string {
	if c.chat.IsForum {
		return string(c.chat.Type) + "/forum"
	}
	return string(c.chat.Type)
}

// Only forum supergroups can hold topics.
func (c *channel) SupportsThreadedMessaging() bool {
	return c.chat.Type == tele.ChatSuperGroup && c.chat.IsForum
}

func (c *channel) SendMessage(ctx context.Context, text string) (transport.Message, error) {
	if err := c.p.wait(ctx); err != nil {
		return nil, err
	}
	m, err := c.p.api.send(c.chat, text)
	if err != nil {
		return nil, fmt.Errorf("telegram: send to %d: %w", c.chat.ID, mapErr(err))
	}
	return &message{p: c.p, chat: c.chat, id: m.ID}, nil
}

// FetchMessage cannot check existence: the Bot API has no get-message call.
// A stale id surfaces as a not-found error from Unpin.
func (c *channel) FetchMessage(ctx context.Context, id string) (transport.Message, error) {
	_ = ctx
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("telegram: message %q: %w", id, transport.ErrNotFound)
	}
	return &message{p: c.p, chat: c.chat, id: n}, nil
}

type message struct {
	p    *Platform
	chat *tele.Chat
	id   int
}

func (m *message) ID() string { return strconv.Itoa(m.id) }

func (m *message) StartThread(ctx context.Context, title string) (transport.Thread, error) {
	if err := m.p.wait(ctx); err != nil {
		return transport.Thread{}, err
	}
	topic, err := m.p.api.createTopic(m.chat, truncate(title, topicNameLimit))
	if err != nil {
		return transport.Thread{}, fmt.Errorf("telegram: create topic: %w", mapErr(err))
	}
	if err := m.p.wait(ctx); err != nil {
		return transport.Thread{}, err
	}
	if _, err := m.p.api.copyToTopic(m.chat, m.id, topic.ThreadID); err != nil {
		return transport.Thread{}, fmt.Errorf("telegram: copy %d into topic %d: %w", m.id, topic.ThreadID, mapErr(err))
	}
	return transport.Thread{ID: strconv.Itoa(topic.ThreadID), Name: topic.Name}, nil
}

func (m *message) Pin(ctx context.Context) error {
	if err := m.p.wait(ctx); err != nil {
		return err
	}
	if err := m.p.api.pin(m.chat, m.id); err != nil {
		return fmt.Errorf("telegram: pin %d: %w", m.id, mapErr(err))
	}
	return nil
}

func (m *message) Unpin(ctx context.Context) error {
	if err := m.p.wait(ctx); err != nil {
		return err
	}
	if err := m.p.api.unpin(m.chat, m.id); err != nil {
		return fmt.Errorf("telegram: unpin %d: %w", m.id, mapErr(err))
	}
	return nil
}

// mapErr folds Bot API error descriptions into the transport sentinels. telebot
// returns most API failures as formatted errors, so this matches on text.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "not found"), strings.Contains(s, "message_id_invalid"):
		return fmt.Errorf("%w: %v", transport.ErrNotFound, err)
	case strings.Contains(s, "unauthorized"):
		return fmt.Errorf("%w: %v", transport.ErrUnauthorized, err)
	case strings.Contains(s, "forbidden"), strings.Contains(s, "not enough rights"):
		return fmt.Errorf("%w: %v", transport.ErrForbidden, err)
	default:
		return err
	}
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}
