// Package discord implements transport.Platform on the Discord REST API.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"threadsched/internal/transport"
	logx "threadsched/pkg/logx"
)

// threadArchiveMinutes is the auto-archive window for created threads (one day).
const threadArchiveMinutes = 1440

// threadNameLimit is Discord's maximum thread name length.
const threadNameLimit = 100

type Config struct {
	Token      string
	RatePerSec int
}

// api is the subset of *discordgo.Session the driver uses.
type api interface {
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageThreadStart(channelID, messageID string, name string, archiveDuration int, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessagePin(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessageUnpin(channelID, messageID string, options ...discordgo.RequestOption) error
}

type Platform struct {
	log     logx.Logger
	api     api
	session *discordgo.Session
	limiter *rate.Limiter
}

var _ transport.Platform = (*Platform)(nil)

// New creates a REST session and verifies the token by fetching the bot user.
func New(ctx context.Context, cfg Config, log logx.Logger) (*Platform, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("discord: %w: empty token", transport.ErrUnauthorized)
	}
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	s, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("discord: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p := newPlatform(s, cfg.RatePerSec, log)
	p.session = s

	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	me, err := p.api.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: verify token: %w", mapErr(err))
	}
	log.Info("connected", logx.String("user", me.Username), logx.String("user_id", me.ID))
	return p, nil
}

func newPlatform(a api, ratePerSec int, log logx.Logger) *Platform {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	return &Platform{
		log:     log,
		api:     a,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
}

func (p *Platform) Name() string { return "discord" }

func (p *Platform) Close() error {
	if p.session == nil {
		return nil
	}
	return p.session.Close()
}

func (p *Platform) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

func (p *Platform) ResolveChannel(ctx context.Context, id string) (transport.Channel, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	c, err := p.api.Channel(id, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: channel %s: %w", id, mapErr(err))
	}
	return &channel{p: p, c: c}, nil
}

type channel struct {
	p *Platform
	c *discordgo.Channel
}

func (c *channel) ID() string   { return c.c.ID }
func (c *channel) Name() string { return c.c.Name }
func (c *channel) Kind() string { return channelTypeName(c.c.Type) }

// Threads can be started from messages in text and announcement channels only.
func (c *channel) SupportsThreadedMessaging() bool {
	switch c.c.Type {
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews:
		return true
	default:
		return false
	}
}

func (c *channel) SendMessage(ctx context.Context, text string) (transport.Message, error) {
	if err := c.p.wait(ctx); err != nil {
		return nil, err
	}
	m, err := c.p.api.ChannelMessageSend(c.c.ID, text, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: send to %s: %w", c.c.ID, mapErr(err))
	}
	return &message{p: c.p, channelID: c.c.ID, id: m.ID}, nil
}

func (c *channel) FetchMessage(ctx context.Context, id string) (transport.Message, error) {
	if err := c.p.wait(ctx); err != nil {
		return nil, err
	}
	m, err := c.p.api.ChannelMessage(c.c.ID, id, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: fetch message %s: %w", id, mapErr(err))
	}
	return &message{p: c.p, channelID: c.c.ID, id: m.ID}, nil
}

type message struct {
	p         *Platform
	channelID string
	id        string
}

func (m *message) ID() string { return m.id }

func (m *message) StartThread(ctx context.Context, title string) (transport.Thread, error) {
	if err := m.p.wait(ctx); err != nil {
		return transport.Thread{}, err
	}
	name := truncate(title, threadNameLimit)
	th, err := m.p.api.MessageThreadStart(m.channelID, m.id, name, threadArchiveMinutes, discordgo.WithContext(ctx))
	if err != nil {
		return transport.Thread{}, fmt.Errorf("discord: start thread on %s: %w", m.id, mapErr(err))
	}
	return transport.Thread{ID: th.ID, Name: th.Name}, nil
}

func (m *message) Pin(ctx context.Context) error {
	if err := m.p.wait(ctx); err != nil {
		return err
	}
	if err := m.p.api.ChannelMessagePin(m.channelID, m.id, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: pin %s: %w", m.id, mapErr(err))
	}
	return nil
}

func (m *message) Unpin(ctx context.Context) error {
	if err := m.p.wait(ctx); err != nil {
		return err
	}
	if err := m.p.api.ChannelMessageUnpin(m.channelID, m.id, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: unpin %s: %w", m.id, mapErr(err))
	}
	return nil
}

// mapErr folds Discord REST errors into the transport sentinels while keeping the
// original error text.
func mapErr(err error) error {
	var re *discordgo.RESTError
	if !errors.As(err, &re) {
		return err
	}
	if re.Message != nil {
		switch re.Message.Code {
		case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
			return fmt.Errorf("%w: %v", transport.ErrNotFound, err)
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
			return fmt.Errorf("%w: %v", transport.ErrForbidden, err)
		}
	}
	if re.Response != nil {
		switch re.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", transport.ErrNotFound, err)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", transport.ErrUnauthorized, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", transport.ErrForbidden, err)
		}
	}
	return err
}

func channelTypeName(t discordgo.ChannelType) string {
	switch t {
	case discordgo.ChannelTypeGuildText:
		return "text"
	case discordgo.ChannelTypeGuildNews:
		return "announcement"
	case discordgo.ChannelTypeGuildVoice:
		return "voice"
	case discordgo.ChannelTypeGuildCategory:
		return "category"
	case discordgo.ChannelTypeGuildForum:
		return "forum"
	case discordgo.ChannelTypeDM, discordgo.ChannelTypeGroupDM:
		return "dm"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}
