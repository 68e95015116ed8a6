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
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/remit"
	"github.com/jerry-enebeli/remit/config"
	"github.com/jerry-enebeli/remit/database"
	"github.com/jerry-enebeli/remit/internal/cache"
	redlock "github.com/jerry-enebeli/remit/internal/lock"
	"github.com/jerry-enebeli/remit/internal/notification"
	redis_db "github.com/jerry-enebeli/remit/internal/redis-db"
	"github.com/jerry-enebeli/remit/workflow"
)

// Remit represents the CLI application, encapsulating the root Cobra command.
type Remit struct {
	cmd *cobra.Command
}

// remitInstance holds the runtime dependencies shared by the subcommands. Only the configuration is
// loaded for every command; the rest is built by setup for the long running ones.
type remitInstance struct {
	cnf      *config.Configuration
	remit    *remit.Remit
	redis    *redis_db.Redis
	queue    *remit.Queue
	webhooks *asynq.Client
	executor *workflow.Executor
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

func preRun(app *remitInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		app.cnf = cnf
		return nil
	}
}

// setup connects to Postgres, Redis and the workflow server and wires the Remit aggregate.
func (app *remitInstance) setup() error {
	cfg := app.cnf

	db, err := database.NewDataSource(cfg)
	if err != nil {
		return fmt.Errorf("error getting datasource: %v", err)
	}

	rdb, err := redis_db.NewRedisClient([]string{cfg.Redis.Dns}, cfg.Redis.SkipTLSVerify)
	if err != nil {
		return fmt.Errorf("error connecting to redis: %v", err)
	}

	queue, err := remit.NewQueue(cfg)
	if err != nil {
		return fmt.Errorf("error creating queue: %v", err)
	}

	connOpt, err := redis_db.AsynqConnOpt(cfg.Redis.Dns, cfg.Redis.SkipTLSVerify)
	if err != nil {
		return fmt.Errorf("error parsing Redis URL: %v", err)
	}
	webhooks := asynq.NewClient(connOpt)

	executor := workflow.NewExecutor(cfg.Workflow, workflow.DialTemporal)
	quoter, err := workflow.NewQuoter(unconfiguredProvider{name: "exchange rate"}, cache.NewCache(rdb.Client(), time.Minute), cfg)
	if err != nil {
		return fmt.Errorf("error creating quoter: %v", err)
	}

	app.remit = remit.NewRemit(
		db,
		queue,
		redlock.NewService(rdb.Client(), cfg.Lock.LockTTL()),
		newProviders(remit.NewWebhookNotifier(webhooks, cfg)),
		workflow.NewFactory(executor, quoter),
	)
	app.redis = rdb
	app.queue = queue
	app.webhooks = webhooks
	app.executor = executor
	return nil
}

func (app *remitInstance) mustSetup() {
	if err := app.setup(); err != nil {
		notification.NotifyError(err)
		log.Fatal(err)
	}
}

func (app *remitInstance) close() {
	if app.executor != nil {
		app.executor.Close()
	}
	if app.webhooks != nil {
		_ = app.webhooks.Close()
	}
	if app.queue != nil {
		_ = app.queue.Close()
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}
}

// NewCLI creates the command-line interface for the Remit application.
func NewCLI() *Remit {
	var configFile string
	app := &remitInstance{}

	var rootCmd = &cobra.Command{
		Use:   "remit",
		Short: "Asynchronous money movement pipeline",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./remit.json", "Configuration file for remit")
	rootCmd.PersistentPreRunE = preRun(app, &configFile)

	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(pollerCommands(app))
	rootCmd.AddCommand(migrateCommands(app))
	rootCmd.AddCommand(configCommands())

	return &Remit{cmd: rootCmd}
}

func (r Remit) executeCLI() {
	if err := r.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
