package config

// ChangeSet describes what changed between two configs, split into what
// can be applied to a running process and what needs a session restart.
type ChangeSet struct {
	// LogLevelChanged means the log level can be swapped in place.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// DetectorChanged covers the adaptive tuning; it takes effect for the
	// next session, since adaptive state never survives a session anyway.
	DetectorChanged bool

	// StreamChanged covers buffering and silence-window tuning, also a
	// next-session change.
	StreamChanged bool

	// SynthesisChanged covers the fallback endpoint and voice.
	SynthesisChanged bool

	// RequiresRestart means something structural changed: the service
	// root, the capture setup, the output sink, or the operational
	// listener. The running session keeps its old settings.
	RequiresRestart bool
}

// Any reports whether the change set contains any change at all.
func (c ChangeSet) Any() bool {
	return c.LogLevelChanged || c.DetectorChanged || c.StreamChanged ||
		c.SynthesisChanged || c.RequiresRestart
}

// Diff compares two configs and classifies every difference.
func Diff(old, new *Config) ChangeSet {
	var c ChangeSet

	if old.Server.LogLevel != new.Server.LogLevel {
		c.LogLevelChanged = true
		c.NewLogLevel = new.Server.LogLevel
	}
	if old.Detector != new.Detector {
		c.DetectorChanged = true
	}
	if old.Stream != new.Stream {
		c.StreamChanged = true
	}
	if old.Synthesis != new.Synthesis {
		c.SynthesisChanged = true
	}
	if old.Service != new.Service ||
		old.Capture != new.Capture ||
		old.Output != new.Output ||
		old.Server.ListenAddr != new.Server.ListenAddr {
		c.RequiresRestart = true
	}

	return c
}
