package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paulaanasilva/mazephases/internal/api"
	"github.com/paulaanasilva/mazephases/internal/config"
	"github.com/paulaanasilva/mazephases/internal/events"
	"github.com/paulaanasilva/mazephases/internal/mqtt"
	"github.com/paulaanasilva/mazephases/internal/orchestrator"
	"github.com/paulaanasilva/mazephases/internal/progress"
	"github.com/paulaanasilva/mazephases/internal/storage/postgres"
	"github.com/paulaanasilva/mazephases/internal/version"
)

const (
	shutdownTimeout  = 10 * time.Second
	mqttWatchPeriod  = 5 * time.Second
	clientSweepEvery = 5 * time.Second
	alertCheckEvery  = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load phases and serve them over HTTP",
	Long: `Loads the phase sequence once at startup and serves it over HTTP.

The startup load runs before any game client has registered over MQTT, so
a run with test_application set always falls back to the built-in phases
there. Once a client has registered, an admin POST /phases/reload performs the
redirect to the first test application item.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api.InitMetrics(cfg.Game.ID)
	api.InitTLS()
	if err := api.InitAuth(); err != nil {
		return err
	}
	if !api.IsAuthEnabled() {
		logger.Warn("API authentication disabled", zap.String("hint", "set "+config.SecretAdminUser))
	}

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "mazephases starting", map[string]interface{}{
		"service":  "mazephases",
		"version":  version.Version,
		"game_id":  cfg.Game.ID,
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	eventLog := openEventLog(ctx, cfg.Game.ID)
	if eventLog != nil {
		defer eventLog.Close()
	}

	loader, err := newLoader(cfg, logger)
	if err != nil {
		return err
	}
	loader.SetProgressStore(progressStore(cfg, eventLog))

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MQTT.Enabled {
		mq, err := startMQTT(gctx, g, cfg)
		if err != nil {
			return err
		}
		defer mq.Disconnect()
		loader.SetNavigator(mq.navigator)
	} else {
		api.SetMQTTStatus(false, true)
	}

	m := orchestrator.NewMaterializer(cfg.Grid.CenterX, cfg.Grid.CenterY, cfg.Grid.CellWidth)
	server := api.NewServer(loader, m, cfg.Run, logger)
	alerter := api.NewAlerter(cfg.Game.ID, logger)
	server.SetAlerter(alerter)
	defer alerter.Wait()

	loadCtx, cancel := context.WithTimeout(ctx, cfg.Playground.Timeout()*2)
	server.Reload(loadCtx, cfg.Run)
	cancel()

	resume(ctx, loader)

	g.Go(func() error {
		return server.ListenAndServe(cfg.Network.APIPort)
	})
	g.Go(func() error {
		alerter.Run(gctx, alertCheckEvery)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		events.Emit("info", "system.shutdown", "mazephases stopping", nil)
		events.CloseAllSubscribers()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// resume restores saved progress. Loader.Seek emits phases.resumed.
func resume(ctx context.Context, loader *orchestrator.Loader) int {
	next, err := loader.Resume(ctx)
	if err != nil {
		logger.Warn("resume failed, starting from the first phase", zap.Error(err))
		return 0
	}
	if next > 0 {
		logger.Info("resumed phase sequence", zap.Int("next", next))
	}
	return next
}

// openEventLog connects the Postgres event store. Persistence is optional:
// on failure events stay in memory.
func openEventLog(ctx context.Context, gameID string) *postgres.Client {
	pgCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := postgres.New(pgCtx, gameID)
	if err != nil {
		logger.Warn("event persistence disabled", zap.Error(err))
		api.SetPostgresStatus(false, true)
		return nil
	}
	events.SetStore(client)
	api.SetPostgresStatus(true, false)
	logger.Info("event persistence enabled")
	return client
}

// progressStore prefers the local gdata store. Without a writable data
// directory the cursor is replayed from the event log instead.
func progressStore(cfg *config.Config, eventLog *postgres.Client) orchestrator.ProgressStore {
	local := progress.Open(cfg.Progress.AppName, logger)
	if local.Persistent() || eventLog == nil {
		return local
	}
	logger.Info("progress restored from event log")
	return &orchestrator.EventProgress{Events: eventLog}
}

type mqttStack struct {
	client    *mqtt.Client
	listener  *mqtt.Listener
	monitor   *mqtt.Monitor
	navigator *mqtt.Navigator
}

func (s *mqttStack) Disconnect() {
	s.monitor.Stop()
	s.client.Disconnect()
}

// startMQTT connects to the broker and registers the watch loop with g.
// A broker that is down at startup is retried in the background.
func startMQTT(ctx context.Context, g *errgroup.Group, cfg *config.Config) (*mqttStack, error) {
	password, err := config.ResolveSecret(config.SecretMQTTPassword)
	if err != nil {
		return nil, err
	}

	registry := mqtt.NewClientRegistry()
	client := mqtt.NewClient(cfg.MQTT.BrokerURL, "", password, logger)
	listener := mqtt.NewListener(client, registry, cfg.MQTT.RegisterTopic, logger)

	connected := client.StartWithRetry(listener.Topic(), listener.OnRegistration)
	api.SetMQTTStatus(connected, false)

	monitor := mqtt.NewMonitor(registry, 0)
	monitor.Start(clientSweepEvery)

	g.Go(func() error {
		watchMQTT(ctx, client, listener, connected)
		return nil
	})

	return &mqttStack{
		client:    client,
		listener:  listener,
		monitor:   monitor,
		navigator: mqtt.NewNavigator(client, registry),
	}, nil
}

// watchMQTT tracks the broker connection and restores subscriptions after
// every reconnect.
func watchMQTT(ctx context.Context, client *mqtt.Client, listener *mqtt.Listener, connected bool) {
	ticker := time.NewTicker(mqttWatchPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := client.IsConnected()
		if now && !connected {
			if err := listener.Resubscribe(); err != nil {
				logger.Warn("mqtt resubscribe failed", zap.Error(err))
				continue
			}
			logger.Info("mqtt reconnected", zap.Int("client_topics", len(listener.SubscribedTopics())))
		} else if !now && connected {
			logger.Warn("mqtt connection lost")
		}
		connected = now
		api.SetMQTTStatus(connected, false)
	}
}
