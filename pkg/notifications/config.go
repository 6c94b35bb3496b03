package notifications

import (
	"context"
	"errors"

	"github.com/blicence/notifysync/pkg/storage"
)

// ConfigKey is the storage key of the persisted Config.
const ConfigKey = "notification_config"

// Config holds the user's notification preferences. Enabled is the master
// switch; the category toggles apply only while it is on.
type Config struct {
	Enabled          bool `json:"enabled"`
	PlanUpdates      bool `json:"planUpdates"`
	PriceAlerts      bool `json:"priceAlerts"`
	UsageAlerts      bool `json:"usageAlerts"`
	NFTNotifications bool `json:"nftNotifications"`
	SystemMessages   bool `json:"systemMessages"`
	SoundEnabled     bool `json:"soundEnabled"`
	VibrationEnabled bool `json:"vibrationEnabled"`
}

// DefaultConfig enables everything.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		PlanUpdates:      true,
		PriceAlerts:      true,
		UsageAlerts:      true,
		NFTNotifications: true,
		SystemMessages:   true,
		SoundEnabled:     true,
		VibrationEnabled: true,
	}
}

// Patch is a partial Config update. Nil fields are left unchanged.
type Patch struct {
	Enabled          *bool `json:"enabled,omitempty"`
	PlanUpdates      *bool `json:"planUpdates,omitempty"`
	PriceAlerts      *bool `json:"priceAlerts,omitempty"`
	UsageAlerts      *bool `json:"usageAlerts,omitempty"`
	NFTNotifications *bool `json:"nftNotifications,omitempty"`
	SystemMessages   *bool `json:"systemMessages,omitempty"`
	SoundEnabled     *bool `json:"soundEnabled,omitempty"`
	VibrationEnabled *bool `json:"vibrationEnabled,omitempty"`
}

// Bool returns a pointer to v, for building a Patch.
func Bool(v bool) *bool { return &v }

// Apply returns c with the non-nil fields of p applied.
func (c Config) Apply(p Patch) Config {
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&c.Enabled, p.Enabled)
	set(&c.PlanUpdates, p.PlanUpdates)
	set(&c.PriceAlerts, p.PriceAlerts)
	set(&c.UsageAlerts, p.UsageAlerts)
	set(&c.NFTNotifications, p.NFTNotifications)
	set(&c.SystemMessages, p.SystemMessages)
	set(&c.SoundEnabled, p.SoundEnabled)
	set(&c.VibrationEnabled, p.VibrationEnabled)
	return c
}

// Allows reports whether notifications of category cat may be created.
func (c Config) Allows(cat Category) bool {
	if !c.Enabled {
		return false
	}
	switch cat {
	case CategoryPlanUpdate:
		return c.PlanUpdates
	case CategoryPriceChange:
		return c.PriceAlerts
	case CategoryUsageAlert:
		return c.UsageAlerts
	case CategoryNFTReceived:
		return c.NFTNotifications
	case CategorySystem:
		return c.SystemMessages
	}
	return false
}

// LoadConfig reads the persisted Config. Fields missing from the saved value
// keep their defaults. A missing key yields DefaultConfig and no error; a
// corrupt value yields DefaultConfig and the error.
func LoadConfig(ctx context.Context, kv storage.KV) (Config, error) {
	cfg := DefaultConfig()
	if err := storage.GetJSON(ctx, kv, ConfigKey, &cfg); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return DefaultConfig(), nil
		}
		return DefaultConfig(), err
	}
	return cfg, nil
}
