package config

import (
	"fmt"
	"net"

	"github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/pkg/power"
)

var knownCategories = map[power.Category]bool{
	power.CategoryVideo:  true,
	power.CategoryGaming: true,
	power.CategorySocial: true,
	power.CategoryMedia:  true,
}

// Validate checks the semantic rules the schema cannot express.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "badger", "sqlite":
	default:
		return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("unknown storage driver %q (want badger or sqlite)", c.Storage.Driver)).
			WithDetail("driver", c.Storage.Driver)
	}

	intervals := map[string]Duration{
		"daemon.snapshot_interval":  c.Daemon.SnapshotInterval,
		"daemon.cleanup_interval":   c.Daemon.CleanupInterval,
		"daemon.heartbeat_interval": c.Daemon.HeartbeatInterval,
		"daemon.snapshot_max_age":   c.Daemon.SnapshotMaxAge,
		"daemon.inject_backoff":     c.Daemon.InjectBackoff,
	}
	for name, d := range intervals {
		if d <= 0 {
			return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("%s must be positive", name)).
				WithDetail("field", name)
		}
	}
	if c.Daemon.NotificationCooldown < 0 {
		return errors.New(errors.ErrCodeConfigValidation, "daemon.notification_cooldown cannot be negative")
	}
	if c.Daemon.InjectAttempts < 1 || c.Daemon.InjectAttempts > 20 {
		return errors.New(errors.ErrCodeConfigValidation, "daemon.inject_attempts must be between 1 and 20").
			WithDetail("inject_attempts", c.Daemon.InjectAttempts)
	}
	if err := validateLoopback(c.Daemon.CollaboratorAddr); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid daemon.collaborator_addr").
			WithDetail("addr", c.Daemon.CollaboratorAddr)
	}

	if c.Power.MinWatts > c.Power.MaxWatts {
		return errors.New(errors.ErrCodeConfigValidation, "power.min_watts cannot exceed power.max_watts")
	}
	for cat := range c.Power.Hosts {
		if !knownCategories[cat] {
			return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("unknown host category %q", cat)).
				WithDetail("category", string(cat))
		}
	}
	for cat := range c.Power.Multipliers {
		if cat != power.CategoryGeneral && !knownCategories[cat] {
			return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("unknown multiplier category %q", cat)).
				WithDetail("category", string(cat))
		}
	}

	if c.History.MaxBackendEntries < 0 {
		return errors.New(errors.ErrCodeConfigValidation, "history.max_backend_entries cannot be negative")
	}
	if c.History.BackupKeep < 1 {
		return errors.New(errors.ErrCodeConfigValidation, "history.backup_keep must be at least 1")
	}
	return nil
}

// validateLoopback accepts an empty address or a host:port on a loopback
// interface.
func validateLoopback(addr string) error {
	if addr == "" {
		return nil
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("%q is not a loopback address", host)
	}
	return nil
}
