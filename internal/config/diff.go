package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Script and log level changes are applied live; everything else needs a
// restart and is only reported.
type ConfigDiff struct {
	// ScriptChanged is true when any interview setting changed. The new script
	// applies to the next interview, never to a running one.
	ScriptChanged bool

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ProvidersChanged is true when the primary provider or the fallback
	// chain changed.
	ProvidersChanged bool

	// ServerChanged is true when any server setting other than
	// the log level changed.
	ServerChanged bool
}

// RestartRequired reports whether the diff contains changes that cannot be
// applied to a running process.
func (d ConfigDiff) RestartRequired() bool {
	return d.ProvidersChanged || d.ServerChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.LogFile != new.Server.LogFile ||
		old.Server.ArchiveFile != new.Server.ArchiveFile ||
		!reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.ServerChanged = true
	}

	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.ProvidersChanged = true
	}

	if old.Interview != new.Interview {
		d.ScriptChanged = true
	}

	return d
}
