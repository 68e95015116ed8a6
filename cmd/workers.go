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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jerry-enebeli/remit"
	"github.com/jerry-enebeli/remit/config"
	"github.com/jerry-enebeli/remit/internal/middleware"
	redis_db "github.com/jerry-enebeli/remit/internal/redis-db"
)

const healthCheckTimeout = 3 * time.Second

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

// subscribeProcessors attaches every stage processor to its queue.
func subscribeProcessors(app *remitInstance) ([]remit.Subscription, error) {
	var subscriptions []remit.Subscription
	processors := app.remit.Processors()
	for _, queue := range remit.Queues() {
		processor, ok := processors[queue]
		if !ok {
			return subscriptions, fmt.Errorf("no processor registered for queue %s", queue)
		}
		sub, err := app.queue.SubscribeToQueue(queue, processor)
		if err != nil {
			return subscriptions, err
		}
		subscriptions = append(subscriptions, sub)
	}
	return subscriptions, nil
}

func initializeWebhookServer(conf *config.Configuration) (*asynq.Server, *asynq.ServeMux, error) {
	connOpt, err := redis_db.AsynqConnOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	srv := asynq.NewServer(connOpt, asynq.Config{
		Concurrency: conf.Queue.Concurrency,
		Queues:      map[string]int{conf.Queue.WebhookQueue: 1},
		Logger:      logrus.StandardLogger(),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(conf.Queue.WebhookQueue, remit.ProcessWebhook)
	return srv, mux, nil
}

// healthHandler reports redis and workflow server reachability. Only redis is fatal for the
// workers; a missing workflow server is reported but does not fail the probe.
func healthHandler(app *remitInstance) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		code := http.StatusOK
		status := gin.H{"redis": "ok", "workflow": "ok"}

		if err := app.redis.Ping(ctx); err != nil {
			status["redis"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		if err := app.executor.HealthCheck(ctx); err != nil {
			status["workflow"] = err.Error()
		}

		c.JSON(code, status)
	}
}

func initializeOpsRouter(app *remitInstance) (*gin.Engine, error) {
	connOpt, err := redis_db.AsynqConnOpt(app.cnf.Redis.Dns, app.cnf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	monitor := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: connOpt,
	})

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(app.cnf.ProjectName))
	router.Use(middleware.RateLimitMiddleware(app.cnf.RateLimit, "/health"))
	router.GET("/health", healthHandler(app))

	// asynqmon can delete and rerun tasks
	monitoring := router.Group("/monitoring")
	if app.cnf.Server.Secure {
		monitoring.Use(middleware.SecretKeyAuthMiddleware(app.cnf.Server))
	}
	monitoring.Any("/*path", gin.WrapH(monitor))
	return router, nil
}

// workerCommands defines the "workers" command. It consumes every stage queue and the webhook
// delivery queue, and serves the ops endpoints on the monitoring port.
func workerCommands(app *remitInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start remit workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signalContext()
			defer stop()

			app.mustSetup()
			defer app.close()

			// /health only reports an existing connection, so establish one up front.
			go app.executor.Init(ctx)

			phClient, shutdown, err := initializeObservability(ctx, app.cnf, "REMIT_WORKERS")
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

			subscriptions, err := subscribeProcessors(app)
			defer func() {
				for _, sub := range subscriptions {
					sub.Unsubscribe()
				}
			}()
			if err != nil {
				logrus.WithError(err).Error("could not subscribe stage processors")
				return
			}

			webhookServer, mux, err := initializeWebhookServer(app.cnf)
			if err != nil {
				logrus.Error(err)
				return
			}
			if err := webhookServer.Start(mux); err != nil {
				logrus.WithError(err).Error("could not start webhook worker")
				return
			}
			defer webhookServer.Shutdown()

			router, err := initializeOpsRouter(app)
			if err != nil {
				logrus.Error(err)
				return
			}
			opsServer := &http.Server{Addr: ":" + app.cnf.Queue.MonitoringPort, Handler: router}
			go func() {
				log.Printf("Ops server listening on %s (health at /health, queues at /monitoring)", opsServer.Addr)
				if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logrus.WithError(err).Error("ops server stopped")
				}
			}()

			<-ctx.Done()
			logrus.Info("shutting down workers")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = opsServer.Shutdown(shutdownCtx)
		},
	}

	return cmd
}
