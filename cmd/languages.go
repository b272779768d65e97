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
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var languagesCmd = &cobra.Command{
	Use:   "languages [service...]",
	Short: "List the languages the translation services support",
	Long: `Check that each service is reachable and print the language codes it
supports. Without arguments the services configured with --services,
GTRANS_SERVICES or the config file are queried.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		cfg := loadConfig()
		if len(args) > 0 {
			cfg.Services = args
		}
		cfg.BreakerFailures = 0
		logger := newLogger(cfg.LogLevel)

		services, closeServices, err := buildServices(cfg, logger)
		if err != nil {
			return err
		}
		defer closeServices()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		var failed int
		for _, svc := range services {
			if err := svc.IsAvailable(ctx); err != nil {
				fmt.Fprintf(out, "%s: unavailable (%v)\n", svc.Name(), err)
				failed++
				continue
			}
			langs, err := svc.SupportedLanguages(ctx)
			if err != nil {
				fmt.Fprintf(out, "%s: %v\n", svc.Name(), err)
				failed++
				continue
			}
			fmt.Fprintf(out, "%s (%d): %s\n", svc.Name(), len(langs), strings.Join(langs, " "))
		}

		if failed == len(services) {
			return fmt.Errorf("no service is available")
		}
		if failed > 0 {
			fmt.Fprintf(out, "%d of %d services unavailable\n", failed, len(services))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(languagesCmd)
}
