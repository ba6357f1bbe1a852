package scheduler

import (
	"fmt"

	"threadsched/internal/config"
)

// TasksFromConfig builds the task list from a validated config, in stable
// channel then task order.
func TasksFromConfig(cfg *config.Config) ([]Task, error) {
	refs := cfg.Tasks()
	out := make([]Task, 0, len(refs))
	for _, ref := range refs {
		p, err := ref.Config.Period.Period()
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", ref.Task, err)
		}
		out = append(out, Task{
			ID:        ref.Task,
			ChannelID: ref.Channel,
			Title:     ref.Config.Title,
			Period:    p,
			Pin:       PinPolicy{Pin: ref.Config.Pin.Pin, Unpin: ref.Config.Pin.Unpin},
		})
	}
	return out, nil
}
