package config

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 5005,
		},
		WhatsApp: WhatsAppConfig{
			APIBase:            "https://graph.facebook.com",
			APIVersion:         "v19.0",
			SendTimeoutSeconds: 20,
		},
		Model: ModelConfig{
			APIBase:        "http://127.0.0.1:11434",
			Name:           "llama3.1:8b",
			Temperature:    0.3,
			TopP:           0.9,
			MaxPairs:       6,
			TimeoutSeconds: 60,
		},
		Dispatch: DispatchConfig{
			MaxConcurrent:        8,
			TimeoutSeconds:       300,
			ShutdownGraceSeconds: 15,
		},
		Memory: MemoryConfig{
			Enabled:       true,
			DBPath:        "~/.wabridge/turns.db",
			MaxTurns:      200,
			RetentionDays: 30,
		},
		Dedupe: DedupeConfig{
			TTLSeconds: 600,
			MaxSize:    10000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Template returns Defaults with credentials pointing at environment
// variables, as written by `wabridge init`.
func Template() *Config {
	cfg := Defaults()
	cfg.WhatsApp.AuthToken = "${WHATSAPP_AUTH_TOKEN}"
	cfg.WhatsApp.PhoneNumberID = "${WHATSAPP_PHONE_NUMBER_ID}"
	cfg.WhatsApp.VerifyToken = "${WHATSAPP_VERIFY_TOKEN}"
	return cfg
}
