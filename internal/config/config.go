// Package config loads raayon's configuration from a JSON file backend at
// $XDG_CONFIG_HOME/raayon/config.json, with RAAYON_* environment variables
// overriding file values. Secrets (API keys) come from the environment only.
package config

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Advisor AdvisorConfig
	Mailer  MailerConfig
	Admin   AdminConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

// AdvisorConfig configures the OpenRouter reasoning client. An empty API key
// disables the advisor; the progression engine then runs on its fallback path.
type AdvisorConfig struct {
	APIKey string
	Model  string
}

// MailerConfig configures the Resend summary mailer. An empty API key
// disables summary emails.
type MailerConfig struct {
	APIKey string
	From   string
}

type AdminConfig struct {
	Token string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Advisor: AdvisorConfig{
			Model: "meta-llama/llama-3.1-8b-instruct",
		},
		Mailer: MailerConfig{
			From: "Raayon <onboarding@resend.dev>",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the file backend and applies environment
// overrides. No key is strictly required: the server degrades gracefully
// without advisor or mailer credentials, and the admin token is generated
// on first start when absent.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}
