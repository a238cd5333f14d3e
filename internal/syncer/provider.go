// Package syncer separates note storage from distribution. A Provider
// receives note and image changes and mirrors them somewhere else; the
// folder implementation writes them into a cloud-replicated directory and
// drives the user's publish hook.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/quire/internal/models"
)

// Provider kinds accepted in Config.Provider.
const (
	ProviderNone   = "none"
	ProviderFolder = "folder"
)

// State is the coarse sync state shown to the user.
type State string

const (
	StateSynced   State = "synced"
	StateSyncing  State = "syncing"
	StateError    State = "error"
	StateDisabled State = "disabled"
)

// Status is a snapshot of the provider state. Detail is set for StateError.
type Status struct {
	State  State  `json:"state"`
	Detail string `json:"detail,omitempty"`
}

// Provider is the capability every sync backend implements.
type Provider interface {
	SyncNote(ctx context.Context, note models.Note) error
	DeleteNote(ctx context.Context, id string) error
	// SyncImage mirrors the image and returns the address notes should use.
	SyncImage(ctx context.Context, localPath, hash string) (string, error)
	SyncAll(ctx context.Context) error
	Enabled() bool
	Status() Status
}

// Config is the persisted sync section of the application config.
type Config struct {
	Provider      string        `yaml:"provider"`
	Folder        string        `yaml:"folder"`
	HookScript    string        `yaml:"hook_script"`
	BaseURL       string        `yaml:"base_url"`
	FilterSecrets bool          `yaml:"filter_secrets"`
	HookTimeout   time.Duration `yaml:"hook_timeout"`
}

// Validate validates the sync configuration.
func (c *Config) Validate() error {
	if c.Provider == "" {
		c.Provider = ProviderNone
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(ProviderNone, ProviderFolder)),
		validation.Field(&c.Folder, validation.When(c.Provider == ProviderFolder, validation.Required)),
		validation.Field(&c.BaseURL, validation.By(absoluteHTTPURL)),
		validation.Field(&c.HookTimeout, validation.Min(time.Duration(0))),
	)
}

func absoluteHTTPURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an absolute http(s) URL")
	}
	return nil
}

// New builds the provider selected by cfg. Options only apply to the
// folder provider.
func New(cfg Config, opts ...FolderOption) (Provider, error) {
	switch cfg.Provider {
	case "", ProviderNone:
		return LocalOnly{}, nil
	case ProviderFolder:
		base := []FolderOption{
			WithBaseURL(cfg.BaseURL),
			WithFilterSecrets(cfg.FilterSecrets),
		}
		if cfg.HookScript != "" {
			base = append(base, WithHookScript(cfg.HookScript, cfg.HookTimeout))
		}
		return NewFolder(cfg.Folder, append(base, opts...)...)
	default:
		return nil, fmt.Errorf("sync: unknown provider %q", cfg.Provider)
	}
}

// LocalOnly is the provider used when sync is off. Every operation succeeds
// without doing anything.
type LocalOnly struct{}

var (
	_ Provider = LocalOnly{}
	_ Provider = (*Folder)(nil)
)

func (LocalOnly) SyncNote(context.Context, models.Note) error { return nil }
func (LocalOnly) DeleteNote(context.Context, string) error    { return nil }
func (LocalOnly) SyncAll(context.Context) error               { return nil }
func (LocalOnly) Enabled() bool                               { return false }
func (LocalOnly) Status() Status                              { return Status{State: StateDisabled} }

// SyncImage returns the local path unchanged.
func (LocalOnly) SyncImage(_ context.Context, localPath, _ string) (string, error) {
	return localPath, nil
}
