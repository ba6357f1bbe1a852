package app

import (
	"context"
	"fmt"

	"threadsched/internal/config"
	"threadsched/internal/transport"
	"threadsched/internal/transport/discord"
	"threadsched/internal/transport/telegram"
	logx "threadsched/pkg/logx"
)

// Dialer connects to the configured messaging platform with a resolved token.
type Dialer func(ctx context.Context, cfg *config.Config, token string, log logx.Logger) (transport.Platform, error)

func dialPlatform(ctx context.Context, cfg *config.Config, token string, log logx.Logger) (transport.Platform, error) {
	pc := cfg.Platform
	switch pc.Kind {
	case "telegram":
		d, err := cfg.Durations()
		if err != nil {
			return nil, err
		}
		return telegram.New(ctx, telegram.Config{
			Token:       token,
			PollTimeout: d.PollTimeout,
			RatePerSec:  pc.RatePerSec,
		}, log.With(logx.String("comp", "telegram")))
	case "discord":
		return discord.New(ctx, discord.Config{
			Token:      token,
			RatePerSec: pc.RatePerSec,
		}, log.With(logx.String("comp", "discord")))
	default:
		return nil, fmt.Errorf("%w: platform.kind %q", config.ErrInvalidValue, pc.Kind)
	}
}
