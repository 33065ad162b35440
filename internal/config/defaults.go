package config

const (
	defaultLogDir           = "~/.local/share/typetrace/logs"
	defaultSocketPath       = "~/.local/share/typetrace/typetraced.sock"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultHandshakeTimeout = 5
	defaultQueueDepth       = 256
	defaultDrainTimeout     = 30
	defaultSampleInterval   = 30
	defaultTriggerLevel     = "high"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:     defaultLogDir,
			SocketPath: defaultSocketPath,
		},
		Backend: Backend{
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		Pool: Pool{
			QueueDepth:   defaultQueueDepth,
			DrainTimeout: defaultDrainTimeout,
		},
		Memory: Memory{
			SampleInterval: defaultSampleInterval,
			AutoOptimize:   true,
			TriggerLevel:   defaultTriggerLevel,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
