/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/valpere/gtrans/internal/translator"
)

const envPrefix = "GTRANS"

var cfgFile string

// appConfig is the resolved configuration of one invocation: flags first,
// then GTRANS_* environment variables, then the config file.
type appConfig struct {
	Services        []string
	Workers         int
	FailFast        bool
	Encoding        string
	Timeout         time.Duration
	MaxRetries      int
	ChunkSize       int
	BreakerFailures int
	BreakerCooldown time.Duration
	Validate        bool
	ProtectMarkup   bool

	DBPath      string
	NoCache     bool
	MetricsFile string
	LogLevel    string

	Google         translator.ServiceConfig
	MyMemory       translator.ServiceConfig
	LibreTranslate translator.ServiceConfig
	OpenAI         translator.ServiceConfig
	OpenRouter     translator.ServiceConfig
	Ollama         translator.ServiceConfig
}

// initConfig loads .env, the config file and the environment into viper.
func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".gtrans")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Vendor variable names work too.
	viper.BindEnv("openai.api-key", envPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")
	viper.BindEnv("openrouter.api-key", envPrefix+"_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	viper.BindEnv("google.credentials", envPrefix+"_GOOGLE_CREDENTIALS", "GOOGLE_APPLICATION_CREDENTIALS")
	viper.BindEnv("google.project", envPrefix+"_GOOGLE_PROJECT", "GOOGLE_CLOUD_PROJECT")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Warning: failed to read config: %v\n", err)
		}
	}
}

func loadConfig() *appConfig {
	serviceTimeout := viper.GetDuration("timeout")
	protect := viper.GetBool("protect-markup")

	return &appConfig{
		Services:        viper.GetStringSlice("services"),
		Workers:         viper.GetInt("workers"),
		FailFast:        viper.GetBool("fail-fast"),
		Encoding:        viper.GetString("encoding"),
		Timeout:         serviceTimeout,
		MaxRetries:      viper.GetInt("max-retries"),
		ChunkSize:       viper.GetInt("chunk-size"),
		BreakerFailures: viper.GetInt("breaker-failures"),
		BreakerCooldown: viper.GetDuration("breaker-cooldown"),
		Validate:        viper.GetBool("validate"),
		ProtectMarkup:   protect,

		DBPath:      expandHome(viper.GetString("db")),
		NoCache:     viper.GetBool("no-cache"),
		MetricsFile: viper.GetString("metrics-file"),
		LogLevel:    viper.GetString("log-level"),

		Google: translator.ServiceConfig{
			Credentials: expandHome(viper.GetString("google.credentials")),
			APIKey:      viper.GetString("google.api-key"),
			ProjectID:   viper.GetString("google.project"),
			BaseURL:     viper.GetString("google.url"),
		},
		MyMemory: translator.ServiceConfig{
			Email:   viper.GetString("mymemory.email"),
			BaseURL: viper.GetString("mymemory.url"),
			Timeout: serviceTimeout,
		},
		LibreTranslate: translator.ServiceConfig{
			BaseURL: viper.GetString("libretranslate.url"),
			APIKey:  viper.GetString("libretranslate.api-key"),
			Timeout: serviceTimeout,
		},
		OpenAI: translator.ServiceConfig{
			APIKey:        viper.GetString("openai.api-key"),
			Model:         viper.GetString("openai.model"),
			BaseURL:       viper.GetString("openai.url"),
			ProtectMarkup: protect,
		},
		OpenRouter: translator.ServiceConfig{
			APIKey:        viper.GetString("openrouter.api-key"),
			Model:         viper.GetString("openrouter.model"),
			BaseURL:       viper.GetString("openrouter.url"),
			ProtectMarkup: protect,
		},
		Ollama: translator.ServiceConfig{
			BaseURL:       viper.GetString("ollama.url"),
			Model:         viper.GetString("ollama.model"),
			Timeout:       serviceTimeout,
			ProtectMarkup: protect,
		},
	}
}

func newLogger(levelName string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, using warn")
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)
	return logger
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
