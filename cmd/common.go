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
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/valpere/gtrans/internal/translator"
)

// serviceNames lists what --services accepts, in the default fallback order.
var serviceNames = []string{"google", "mymemory", "libretranslate", "openai", "openrouter", "ollama"}

// buildServices constructs the translation services named in cfg.Services,
// in order. Each is wrapped in a circuit breaker unless disabled. The
// returned closer releases clients that hold connections.
func buildServices(cfg *appConfig, logger *logrus.Logger) ([]translator.TranslationService, func() error, error) {
	var (
		list    []translator.TranslationService
		closers []io.Closer
	)

	for _, name := range cfg.Services {
		var svc translator.TranslationService

		switch strings.ToLower(strings.TrimSpace(name)) {
		case "google":
			g := translator.NewGoogleService(cfg.Google)
			closers = append(closers, g)
			svc = g
		case "mymemory":
			svc = translator.NewMyMemoryService(cfg.MyMemory)
		case "libretranslate":
			svc = translator.NewLibreTranslateService(cfg.LibreTranslate)
		case "openai":
			svc = translator.NewOpenAIService(cfg.OpenAI)
		case "openrouter":
			svc = translator.NewOpenRouterService(cfg.OpenRouter)
		case "ollama":
			svc = translator.NewOllamaTranslator(cfg.Ollama)
		default:
			logger.WithField("service", name).Warn("Unknown service, skipping")
			continue
		}

		if cfg.BreakerFailures > 0 {
			svc = translator.NewBreakerService(svc, uint32(cfg.BreakerFailures), cfg.BreakerCooldown, logger)
		}
		list = append(list, svc)
	}

	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c.Close())
		}
		return errors.Join(errs...)
	}

	if len(list) == 0 {
		return nil, closeAll, fmt.Errorf("no valid services configured (available: %s)", strings.Join(serviceNames, ", "))
	}
	return list, closeAll, nil
}
