package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ComposerConfig tunes composer sessions. Changes apply to composers opened
// after the reload.
type ComposerConfig struct {
	AutosaveDelay         time.Duration `mapstructure:"autosaveDelay"`
	ValidationDelay       time.Duration `mapstructure:"validationDelay"`
	SuggestionTTL         time.Duration `mapstructure:"suggestionTTL"`
	PriceDeviationPercent float64       `mapstructure:"priceDeviationPercent"`
	WarningRules          []WarningRule `mapstructure:"warningRules"`
}

// WarningRule is a jsonlogic expression evaluated against every line.
type WarningRule struct {
	Code    string `mapstructure:"code"`
	Message string `mapstructure:"message"`
	Logic   string `mapstructure:"logic"`
}

func DefaultComposerConfig() ComposerConfig {
	return ComposerConfig{
		AutosaveDelay:         5 * time.Second,
		ValidationDelay:       300 * time.Millisecond,
		SuggestionTTL:         2 * time.Minute,
		PriceDeviationPercent: 20,
	}
}

type ComposerConfigHolder struct {
	current atomic.Value // holds ComposerConfig
}

// NewStaticComposerConfigHolder serves cfg without watching any file.
func NewStaticComposerConfigHolder(cfg ComposerConfig) *ComposerConfigHolder {
	holder := &ComposerConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// NewComposerConfigHolder reads composer.yml from cfg.ComposerConfigPath or
// the usual search paths and reloads it on change.
func NewComposerConfigHolder(cfg Config, log *zap.Logger) (*ComposerConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.composer")

	v := viper.New()
	if cfg.ComposerConfigPath != "" {
		v.SetConfigFile(cfg.ComposerConfigPath)
	} else {
		v.SetConfigName("composer")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/pocomposer")
		v.AddConfigPath(".")
	}

	defaults := DefaultComposerConfig()
	v.SetDefault("composer.autosaveDelay", defaults.AutosaveDelay)
	v.SetDefault("composer.validationDelay", defaults.ValidationDelay)
	v.SetDefault("composer.suggestionTTL", defaults.SuggestionTTL)
	v.SetDefault("composer.priceDeviationPercent", defaults.PriceDeviationPercent)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	current, err := decodeComposerConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticComposerConfigHolder(current)
	if !watch {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeComposerConfig(v)
		if err != nil {
			log.Warn("invalid composer config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("composer config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *ComposerConfigHolder) Get() ComposerConfig {
	return h.current.Load().(ComposerConfig)
}

func decodeComposerConfig(v *viper.Viper) (ComposerConfig, error) {
	var cfg ComposerConfig
	if err := v.UnmarshalKey("composer", &cfg); err != nil {
		return ComposerConfig{}, err
	}
	if err := validateComposerConfig(cfg); err != nil {
		return ComposerConfig{}, err
	}
	return cfg, nil
}

func validateComposerConfig(cfg ComposerConfig) error {
	if cfg.AutosaveDelay <= 0 {
		return errors.New("composer.autosaveDelay must be positive")
	}
	if cfg.ValidationDelay < 0 {
		return errors.New("composer.validationDelay cannot be negative")
	}
	if cfg.SuggestionTTL < 0 {
		return errors.New("composer.suggestionTTL cannot be negative")
	}
	for _, rule := range cfg.WarningRules {
		if strings.TrimSpace(rule.Code) == "" || strings.TrimSpace(rule.Logic) == "" {
			return errors.New("composer.warningRules entries need code and logic")
		}
	}
	return nil
}
