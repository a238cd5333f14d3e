package internal

import (
	"time"

	pkgconfig "github.com/starford/quire/pkg/config"
)

// Settings is a partial update of the sync section. Nil fields are left
// unchanged.
type Settings struct {
	Provider      *string
	Folder        *string
	HookScript    *string
	BaseURL       *string
	FilterSecrets *bool
	HookTimeout   *time.Duration
}

// Empty reports whether s changes nothing.
func (s Settings) Empty() bool {
	return s.Provider == nil && s.Folder == nil && s.HookScript == nil &&
		s.BaseURL == nil && s.FilterSecrets == nil && s.HookTimeout == nil
}

// ApplySettings validates the updated configuration and persists the changed
// keys to path before cfg is changed. Only the sync keys named in s are
// rewritten in the file; ${VAR} placeholders elsewhere stay unexpanded. An
// invalid update leaves both untouched.
func ApplySettings(path string, cfg *Config, s Settings) error {
	next := *cfg
	changes := make(map[string]any)
	if s.Provider != nil {
		next.Sync.Provider = *s.Provider
		changes["sync.provider"] = *s.Provider
	}
	if s.Folder != nil {
		next.Sync.Folder = *s.Folder
		changes["sync.folder"] = *s.Folder
	}
	if s.HookScript != nil {
		next.Sync.HookScript = *s.HookScript
		changes["sync.hook_script"] = *s.HookScript
	}
	if s.BaseURL != nil {
		next.Sync.BaseURL = *s.BaseURL
		changes["sync.base_url"] = *s.BaseURL
	}
	if s.FilterSecrets != nil {
		next.Sync.FilterSecrets = *s.FilterSecrets
		changes["sync.filter_secrets"] = *s.FilterSecrets
	}
	if s.HookTimeout != nil {
		next.Sync.HookTimeout = *s.HookTimeout
		changes["sync.hook_timeout"] = s.HookTimeout.String()
	}

	if err := pkgconfig.Patch(path, &next, changes); err != nil {
		return err
	}
	*cfg = next
	return nil
}
