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
	"context"
	"log"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/remit"
)

// pollerCommands defines the "pollers" command running the valid and stale transaction crons.
func pollerCommands(app *remitInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pollers",
		Short: "start remit transaction pollers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signalContext()
			defer stop()

			app.mustSetup()
			defer app.close()

			phClient, shutdown, err := initializeObservability(ctx, app.cnf, "REMIT_POLLERS")
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()
			if phClient != nil {
				defer phClient.Close()
			}

			poller := remit.NewTransactionPoller(app.remit, app.cnf.Poller)
			if err := poller.Start(ctx); err != nil {
				logrus.WithError(err).Error("could not start pollers")
				return
			}

			<-ctx.Done()
			logrus.Info("stopping pollers")
			poller.Stop()
		},
	}

	return cmd
}
