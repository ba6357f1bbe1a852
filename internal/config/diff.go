package config

import (
	"reflect"
	"sort"
	"strings"

	logx "threadsched/pkg/logx"
)

// SummarizeChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like tokens),
// and (3) the ids of tasks that were added, removed or edited.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "timezone")
		attrs = append(attrs, logx.String("timezone", newCfg.Timezone))
	}
	if oldCfg.Cooldown != newCfg.Cooldown {
		changed = append(changed, "cooldown")
		attrs = append(attrs, logx.String("cooldown", newCfg.Cooldown))
	}
	if oldCfg.Platform != newCfg.Platform {
		changed = append(changed, "platform")
		attrs = append(attrs,
			logx.String("platform.kind", newCfg.Platform.Kind),
			logx.Int("platform.rate_per_sec", newCfg.Platform.RatePerSec),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	// Storage and HTTP hold secrets; report only whether they are set.
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.Bool("storage.password_set", newCfg.Storage.Password != ""),
		)
	}
	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", newCfg.HTTP.Addr),
			logx.Bool("http.token_set", strings.TrimSpace(newCfg.HTTP.Token) != ""),
		)
	}

	tasks := diffTasks(oldCfg, newCfg)
	if len(tasks) > 0 {
		changed = append(changed, "channels")
		attrs = append(attrs, logx.Int("channels.changed_tasks", len(tasks)))
	}

	sort.Strings(changed)
	return changed, attrs, tasks
}

func diffTasks(oldCfg, newCfg *Config) []string {
	index := func(c *Config) map[string]TaskRef {
		m := map[string]TaskRef{}
		for _, ref := range c.Tasks() {
			m[ref.Channel+"/"+ref.Task] = ref
		}
		return m
	}
	oldM, newM := index(oldCfg), index(newCfg)

	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for key := range set {
		o, okOld := oldM[key]
		n, okNew := newM[key]
		if okOld != okNew || !reflect.DeepEqual(o, n) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
