package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"inline-media-backend/internal/style"
	"inline-media-backend/pkg/logger"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	DefaultLegacyPattern  = `<span\s+data-prompt="([^"]+)"[^>]*>.*?</span>`
	DefaultChainedPattern = `<span\s+data-prompt="([^"]+)"\s+data-img-gen="([^"]+)"[^>]*>(.*?)</span>`
)

// Settings are the user-facing generator settings, persisted as json.
type Settings struct {
	Enabled             bool   `json:"enabled" mapstructure:"enabled"`
	UseCustomContainers bool   `json:"useCustomContainers" mapstructure:"useCustomContainers"`
	Regex               string `json:"regex" mapstructure:"regex"`
	AspectRatio         string `json:"aspectRatio" mapstructure:"aspectRatio"`
	BaseSize            int    `json:"baseSize" mapstructure:"baseSize"`
	Style               string `json:"style" mapstructure:"style"`
	NegativePrompt      string `json:"negativePrompt" mapstructure:"negativePrompt"`
	LegacyWorkflow      string `json:"legacyWorkflow" mapstructure:"legacyWorkflow"`

	UseChained      bool   `json:"useChained" mapstructure:"useChained"`
	ChainedRegex    string `json:"chainedRegex" mapstructure:"chainedRegex"`
	StaticWorkflow  string `json:"staticWorkflow" mapstructure:"staticWorkflow"`
	StaticWidth     int    `json:"staticWidth" mapstructure:"staticWidth"`
	StaticHeight    int    `json:"staticHeight" mapstructure:"staticHeight"`
	DynamicWorkflow string `json:"dynamicWorkflow" mapstructure:"dynamicWorkflow"`
	DynamicWidth    int    `json:"dynamicWidth" mapstructure:"dynamicWidth"`
	DynamicHeight   int    `json:"dynamicHeight" mapstructure:"dynamicHeight"`

	Locale string `json:"locale" mapstructure:"locale"`
}

// ActivePattern is the directive pattern for the current mode.
func (s Settings) ActivePattern() string {
	if s.UseChained {
		return s.ChainedRegex
	}
	return s.Regex
}

func DefaultSettings() Settings {
	neg := ""
	if st, ok := style.Lookup(style.PhotoRealistic); ok {
		neg = st.Negative
	}
	return Settings{
		Enabled:             true,
		UseCustomContainers: true,
		Regex:               DefaultLegacyPattern,
		AspectRatio:         "1:1",
		BaseSize:            512,
		Style:               style.PhotoRealistic,
		NegativePrompt:      neg,
		ChainedRegex:        DefaultChainedPattern,
		StaticWidth:         512,
		StaticHeight:        768,
		DynamicWidth:        512,
		DynamicHeight:       512,
		Locale:              "en",
	}
}

func (s Settings) values() map[string]any {
	return map[string]any{
		"enabled":             s.Enabled,
		"useCustomContainers": s.UseCustomContainers,
		"regex":               s.Regex,
		"aspectRatio":         s.AspectRatio,
		"baseSize":            s.BaseSize,
		"style":               s.Style,
		"negativePrompt":      s.NegativePrompt,
		"legacyWorkflow":      s.LegacyWorkflow,
		"useChained":          s.UseChained,
		"chainedRegex":        s.ChainedRegex,
		"staticWorkflow":      s.StaticWorkflow,
		"staticWidth":         s.StaticWidth,
		"staticHeight":        s.StaticHeight,
		"dynamicWorkflow":     s.DynamicWorkflow,
		"dynamicWidth":        s.DynamicWidth,
		"dynamicHeight":       s.DynamicHeight,
		"locale":              s.Locale,
	}
}

var ErrInvalidSettings = errors.New("invalid settings")

func (s Settings) validate() error {
	if _, _, err := style.Dimensions(s.AspectRatio, s.BaseSize); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if s.StaticWidth <= 0 || s.StaticHeight <= 0 || s.DynamicWidth <= 0 || s.DynamicHeight <= 0 {
		return fmt.Errorf("%w: workflow dimensions must be positive", ErrInvalidSettings)
	}
	return nil
}

// SettingsStore holds the process-wide Settings. Updates apply immediately and are
// written to disk after a debounce interval.
type SettingsStore struct {
	mu       sync.RWMutex
	v        *viper.Viper
	path     string
	current  Settings
	debounce time.Duration
	timer    *time.Timer
}

// NewSettingsStore loads path if it exists, otherwise starts from DefaultSettings.
// An empty path keeps settings in memory only.
func NewSettingsStore(path string, debounce time.Duration) (*SettingsStore, error) {
	v := viper.New()
	for k, val := range DefaultSettings().values() {
		v.SetDefault(k, val)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read settings: %w", err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	return &SettingsStore{
		v:        v,
		path:     path,
		current:  s,
		debounce: debounce,
	}, nil
}

func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies fn to a copy of the current settings. When the style changes and fn
// left the negative list untouched, the negative list resets to the new style's default.
func (s *SettingsStore) Update(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.current
	next := old
	fn(&next)

	if next.Style != old.Style && next.NegativePrompt == old.NegativePrompt {
		if st, ok := style.Lookup(next.Style); ok {
			next.NegativePrompt = st.Negative
		}
	}
	if err := next.validate(); err != nil {
		return old, err
	}

	s.current = next
	s.scheduleSave()
	return next, nil
}

func (s *SettingsStore) scheduleSave() {
	if s.path == "" {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.Flush(); err != nil {
			logger.WithFields(logrus.Fields{"path": s.path}).Errorf("保存设置失败: %v", err)
		}
	})
}

// Flush writes the current settings immediately.
func (s *SettingsStore) Flush() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	for k, val := range s.current.values() {
		s.v.Set(k, val)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	return s.v.WriteConfigAs(s.path)
}
