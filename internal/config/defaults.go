package config

const (
	defaultRecordingsDir           = "~/.local/share/voxtape/recordings"
	defaultLogDir                  = "~/.local/share/voxtape/logs"
	defaultStateDir                = "~/.local/state/voxtape"
	defaultAPIBind                 = "127.0.0.1:7491"
	defaultSizeLimitBytes          = 512 << 20
	defaultMaxTracks               = 10000
	defaultBufferDepth             = 16
	defaultSpotCheckInterval       = 50
	defaultIdleIntervalSeconds     = 60
	defaultIdleWarnSamples         = 5
	defaultReconnectAttempts       = 3
	defaultReconnectBackoffSeconds = 2
	defaultMinFreeBytes            = 1 << 30
	defaultBridgeSizeLimitBytes    = 1 << 30
	defaultSpeakingDebounceMS      = 2000
	defaultGranuleToleranceSeconds = 30
	defaultMaxNickSuffix           = 15
	defaultMaxMessageBytes         = 1 << 16
	defaultTransportKind           = "rtp"
	defaultRTPBind                 = "127.0.0.1:5004"
	defaultMaxRecordHours          = 6
	defaultRetentionHours          = 168
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogRetentionDays        = 30
	defaultLogMaxSizeMB            = 50
	defaultLogMaxBackups           = 5
	defaultNotifyRequestTimeout    = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RecordingsDir: defaultRecordingsDir,
			LogDir:        defaultLogDir,
			StateDir:      defaultStateDir,
			APIBind:       defaultAPIBind,
		},
		Capture: Capture{
			SizeLimitBytes:          defaultSizeLimitBytes,
			MaxTracks:               defaultMaxTracks,
			BufferDepth:             defaultBufferDepth,
			SpotCheckInterval:       defaultSpotCheckInterval,
			IdleIntervalSeconds:     defaultIdleIntervalSeconds,
			IdleWarnSamples:         defaultIdleWarnSamples,
			ReconnectAttempts:       defaultReconnectAttempts,
			ReconnectBackoffSeconds: defaultReconnectBackoffSeconds,
			MinFreeBytes:            defaultMinFreeBytes,
		},
		Bridge: Bridge{
			Enabled:                 true,
			SizeLimitBytes:          defaultBridgeSizeLimitBytes,
			SpeakingDebounceMS:      defaultSpeakingDebounceMS,
			GranuleToleranceSeconds: defaultGranuleToleranceSeconds,
			MaxNickSuffix:           defaultMaxNickSuffix,
			MaxMessageBytes:         defaultMaxMessageBytes,
		},
		Transport: Transport{
			Kind:    defaultTransportKind,
			RTPBind: defaultRTPBind,
		},
		Policy: Policy{
			MaxRecordHours: defaultMaxRecordHours,
			RetentionHours: defaultRetentionHours,
			Features:       []string{"bridge"},
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Started:        false,
			Finished:       true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
			MaxSizeMB:     defaultLogMaxSizeMB,
			MaxBackups:    defaultLogMaxBackups,
		},
	}
}
