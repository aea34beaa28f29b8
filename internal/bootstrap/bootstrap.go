package bootstrap

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"vad-server-go/internal/app/services"
	"vad-server-go/internal/domain/eventbus"
	"vad-server-go/internal/domain/vad"
	"vad-server-go/internal/domain/vad/inter"
	platformconfig "vad-server-go/internal/platform/config"
	platformerrors "vad-server-go/internal/platform/errors"
	platformlogging "vad-server-go/internal/platform/logging"
	platformobservability "vad-server-go/internal/platform/observability"
	platformstorage "vad-server-go/internal/platform/storage"
	httptransport "vad-server-go/internal/transport/http"
	wstransport "vad-server-go/internal/transport/ws"
	"vad-server-go/internal/utils"

	// Detector backends register themselves with the VAD registry.
	_ "vad-server-go/internal/domain/vad/energy"
	_ "vad-server-go/internal/domain/vad/silero"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID      string
	Title   string
	Kind    platformerrors.Kind
	Execute stepFn
}

type appState struct {
	config                *platformconfig.Config
	configPath            string
	logProvider           *platformlogging.Logger
	logger                *utils.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	journal               *platformstorage.Journal
	stream                *services.StreamService
}

func initSteps() []initStep {
	return []initStep{
		{
			ID:    "config",
			Title: "load configuration",
			Kind:  platformerrors.KindConfig,
			Execute: func(ctx context.Context, state *appState) error {
				result, err := platformconfig.NewLoader().Load()
				if err != nil {
					return err
				}
				state.config = result.Config
				state.configPath = result.Path
				return nil
			},
		},
		{
			ID:    "logging",
			Title: "initialise logging",
			Kind:  platformerrors.KindBootstrap,
			Execute: func(ctx context.Context, state *appState) error {
				provider, err := platformlogging.New(platformlogging.Config{
					Level:    state.config.Log.Level,
					Dir:      state.config.Log.Dir,
					Filename: state.config.Log.File,
				})
				if err != nil {
					return err
				}
				state.logProvider = provider
				state.logger = provider.Tagged()
				if state.configPath != "" {
					state.logger.InfoTag("Boot", "configuration loaded from %s", state.configPath)
				} else {
					state.logger.InfoTag("Boot", "no config file found, using defaults")
				}
				return nil
			},
		},
		{
			ID:    "observability",
			Title: "set up observability",
			Kind:  platformerrors.KindBootstrap,
			Execute: func(ctx context.Context, state *appState) error {
				shutdown, err := platformobservability.Setup(ctx, platformobservability.Config{
					Enabled: state.config.Telemetry.Enabled,
				}, state.logProvider.Slog())
				if err != nil {
					return err
				}
				state.observabilityShutdown = shutdown
				return nil
			},
		},
		{
			ID:    "storage",
			Title: "open segment journal",
			Kind:  platformerrors.KindStorage,
			Execute: func(ctx context.Context, state *appState) error {
				if !state.config.Storage.Enabled {
					return nil
				}
				journal, err := platformstorage.OpenJournal(state.config.Storage.DSN)
				if err != nil {
					return err
				}
				state.journal = journal
				state.logger.InfoTag("Storage", "segment journal at %s", state.config.Storage.DSN)
				return nil
			},
		},
		{
			ID:    "eventbus",
			Title: "wire event subscribers",
			Kind:  platformerrors.KindBootstrap,
			Execute: func(ctx context.Context, state *appState) error {
				if state.journal == nil {
					return nil
				}
				journal := state.journal
				logger := state.logger
				return eventbus.SubscribeAsync(eventbus.TopicSegmentCompleted, func(event services.SegmentEvent) {
					err := journal.Record(&platformstorage.SegmentRecord{
						SessionUID:     event.SessionUID,
						ConnectSession: event.ConnectSession,
						StartedAt:      event.StartedAt,
						EndedAt:        event.EndedAt,
						DurationMs:     event.DurationMs,
						PayloadBytes:   event.PayloadBytes,
					})
					if err != nil {
						logger.WarnTag("Storage", "journal write failed: %v", err)
					}
				})
			},
		},
		{
			ID:    "stream",
			Title: "start stream service",
			Kind:  platformerrors.KindBootstrap,
			Execute: func(ctx context.Context, state *appState) error {
				// Build one detector up front so a model that cannot be
				// loaded stops the server at startup.
				probe, err := vad.Create(state.config.VAD.Backend, inter.DetectorConfig{
					SampleRate:   state.config.Audio.SampleRate,
					FrameSamples: state.config.FrameSamples(),
					Threshold:    state.config.VAD.Threshold,
					ModelPath:    state.config.VAD.ModelPath,
				})
				if err != nil {
					return err
				}
				_ = probe.Close()
				state.stream = services.NewStreamService(state.config, state.logger)
				return nil
			},
		},
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	for _, step := range steps {
		if err := step.Execute(ctx, state); err != nil {
			return platformerrors.Wrap(step.Kind, step.ID, fmt.Sprintf("bootstrap step %q failed", step.Title), err)
		}
	}
	return nil
}

// Run starts the whole service lifecycle: configuration, dependencies,
// transports and graceful shutdown.
func Run(ctx context.Context) error {
	state := &appState{}

	if err := executeInitSteps(ctx, initSteps(), state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger

	if shutdown := state.observabilityShutdown; shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WarnTag("Boot", "observability shutdown failed: %v", err)
			}
		}()
	}
	defer func() {
		eventbus.Shutdown()
		if state.journal != nil {
			if err := state.journal.Close(); err != nil {
				logger.WarnTag("Storage", "journal close failed: %v", err)
			}
		}
		state.stream.Stop()
		_ = state.logProvider.Close()
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	// WebSocket transport.
	hub := wstransport.NewHub(logger)
	router := wstransport.NewRouter(hub, logger, wstransport.RouterOptions{})
	wsServer := wstransport.NewServer(wstransport.ServerConfig{
		Addr: fmt.Sprintf("%s:%d", config.Server.IP, config.Server.Port),
		Path: config.Server.Path,
	}, router, hub, logger)
	wsServer.SetHandlerBuilder(state.stream.BuildHandler)

	group.Go(func() error {
		return wsServer.Start(groupCtx)
	})

	// HTTP status API.
	var httpServer *httptransport.Server
	if config.Web.Enabled {
		status := httptransport.NewStatusService(state.stream, state.journal)
		httpServer = httptransport.NewServer(
			fmt.Sprintf("%s:%d", config.Server.IP, config.Web.Port), logger, status)
		group.Go(func() error {
			return httpServer.Start(groupCtx)
		})
	}

	logger.InfoTag("Boot", "vad-server ready (backend=%s frame=%dms preroll=%dB)",
		config.VAD.Backend, config.Audio.FrameMs, config.VAD.PrerollCapacityBytes)

	<-signalCtx.Done()
	logger.InfoTag("Boot", "shutdown signal received")
	cancel()

	if err := wsServer.Stop(); err != nil {
		logger.WarnTag("Boot", "websocket stop failed: %v", err)
	}
	if httpServer != nil {
		if err := httpServer.Stop(); err != nil {
			logger.WarnTag("Boot", "status API stop failed: %v", err)
		}
	}

	if err := group.Wait(); err != nil && err != context.Canceled {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "run", "service terminated", err)
	}

	logger.InfoTag("Boot", "shutdown complete")
	return nil
}
