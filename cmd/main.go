package main

import (
	"chat-core/ai"
	"chat-core/auth"
	"chat-core/contract"
	grpcserver "chat-core/infrastructure/grpc/server"
	"chat-core/infrastructure/http/server"
	"chat-core/internal"
	"chat-core/observability"
	"chat-core/repositories"
	"chat-core/runtime"
	"chat-core/runtime/workers"
	"chat-core/services"
	"chat-core/sink"
	"chat-core/storage"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until a signal or a server failure.
// Deferred cleanups run before main exits.
func run() error {
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	disk, err := storage.Open(log, config.BadgerFilepath, config.BlugeFilepath)
	if err != nil {
		return fmt.Errorf("storage opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing storage...")
		if err := disk.Close(); err != nil {
			log.Error("Storage close failed", "error", err)
		}
	}()

	maintenance, err := repositories.NewMaintenance(disk.DB, log, config.GCInterval)
	if err != nil {
		return fmt.Errorf("maintenance setup failed: %w", err)
	}
	maintenance.Start()
	defer func() { _ = maintenance.Stop() }()

	monitoring := observability.NewMonitoringManager(log)
	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log), runtime.NewRegistry(),
		disk.Repositories(config.LimitMessages), monitoring, runtime.Options{
			SubscriptionBufferSize: config.SubscriptionBufferSize,
			EventBufferSize:        config.EventBufferSize,
			RecentLimit:            config.RecentLimit,
			SearchLimit:            config.SearchLimit,
			MaxContentLength:       config.MaxContentLength,
			OperationTimeout:       config.OperationTimeout,
			SinkTimeout:            config.SinkTimeout,
			EnableModeration:       config.EnableModeration,
			CharReplacement:        charReplacement,
			AssistantName:          config.AssistantName,
		})
	if err := orchestrator.Load(); err != nil {
		return fmt.Errorf("directory loading failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	responder, err := newResponder(ctx, log, config)
	if err != nil {
		return err
	}
	healthServer := grpcserver.NewHealthServer(log)
	assistant := workers.NewAssistantWorker(log, orchestrator, responder,
		config.AssistantBufferSize, config.AssistantHistoryLimit, config.AssistantTimeout)
	orchestrator.Add(assistant, sink.NewTelemetrySink(monitoring, log))
	orchestrator.AddWorkers(
		assistant,
		healthServer,
		workers.NewTelemetryWorker(log, config.MetricInterval, orchestrator, monitoring),
		workers.NewChannelCapacityWorker(log, config.MetricInterval, config.LowCapacityThreshold,
			workers.NamedChannel{Name: "domain_events", Channel: orchestrator.DomainEvents()},
			workers.NamedChannel{Name: "assistant_pending", Channel: assistant.Pending()},
		),
	)

	defer orchestrator.Stop()

	verifier := auth.NewVerifier([]byte(config.JwtSecret), config.JwtIssuer)
	httpServer := &http.Server{
		Addr: fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: server.NewServer(log,
			services.NewChatService(orchestrator),
			services.NewAuthService(verifier, orchestrator),
			monitoring,
			server.Options{
				Debug:             config.EnableDebugEndpoints,
				DB:                disk.DB,
				SessionBufferSize: config.SubscriptionBufferSize,
			}).Router(),
	}

	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	grpcServer := grpc.NewServer()
	healthServer.Register(grpcServer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := orchestrator.Start(gctx); err != nil {
			return fmt.Errorf("orchestrator failed to start: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("Starting gRPC health server", "address", grpcAddress)
		if err := grpcServer.Serve(listener); err != nil && !stderrors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")
		healthServer.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Program stopped cleanly")
	return nil
}

// newResponder picks Gemini when a key is configured, the canned reply otherwise.
func newResponder(ctx context.Context, log *slog.Logger, config internal.Config) (contract.Responder, error) {
	if config.GeminiAPIKey == "" {
		log.Info("Assistant uses the static reply")
		return ai.NewStaticResponder(config.AssistantReply), nil
	}
	responder, err := ai.NewGeminiResponder(ctx, log, config.GeminiAPIKey, config.GeminiModel, config.AssistantName)
	if err != nil {
		return nil, fmt.Errorf("assistant setup failed: %w", err)
	}
	log.Info("Assistant uses Gemini", "model", config.GeminiModel)
	return responder, nil
}
