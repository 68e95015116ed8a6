/*
Copyright 2024 Blnk Finance Authors.

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

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/remit/config"
)

const redacted = "********"

func configCommands() *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "print the computed configuration, with credentials redacted",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Fetch()
			if err != nil {
				log.Fatalf("Error getting config: %v\n", err)
			}

			printed := *cfg
			if !showSecrets {
				printed = redactConfig(*cfg)
			}

			data, err := json.MarshalIndent(printed, "", "    ")
			if err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}
			fmt.Println(string(data))
		},
	}
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print credentials in clear text")
	return cmd
}

// redactConfig masks every credential of cfg: DSN passwords, the ops secret key, the Slack and
// PostHog tokens and consumer webhook header values. cfg itself is left untouched.
func redactConfig(cfg config.Configuration) config.Configuration {
	cfg.DataSource.Dns = redactDSN(cfg.DataSource.Dns)
	cfg.Redis.Dns = redactDSN(cfg.Redis.Dns)
	cfg.Server.SecretKey = mask(cfg.Server.SecretKey)
	cfg.Notification.Slack.WebhookUrl = mask(cfg.Notification.Slack.WebhookUrl)
	cfg.Telemetry.PostHogKey = mask(cfg.Telemetry.PostHogKey)

	if headers := cfg.Notification.Webhook.Headers; headers != nil {
		masked := make(map[string]string, len(headers))
		for name, value := range headers {
			masked[name] = mask(value)
		}
		cfg.Notification.Webhook.Headers = masked
	}
	return cfg
}

// redactDSN hides the password of a URL style DSN. Values that do not parse as URLs with
// credentials are masked entirely.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return redacted
	}
	if u.User == nil {
		return dsn
	}
	return u.Redacted()
}

func mask(value string) string {
	if value == "" {
		return ""
	}
	return redacted
}
