package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	server "github.com/kazz187/twinagents/internal"
	"github.com/kazz187/twinagents/internal/config"
	"github.com/kazz187/twinagents/internal/dispatch"
	"github.com/kazz187/twinagents/internal/plan"
	planrepo "github.com/kazz187/twinagents/internal/plan/repositoryimpl"
	"github.com/kazz187/twinagents/internal/planner"
	"github.com/kazz187/twinagents/pkg/channel"
	"github.com/kazz187/twinagents/pkg/clog"
	"github.com/kazz187/twinagents/pkg/storage"
)

func main() {
	env, err := config.LoadPlannerEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewHTTPTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Store and channel failures are not fatal: the planner keeps serving and reports
	// "disabled" / "publish-failed" instead.
	repo, closeRepo := setupRepository(ctx, env)
	publisher := setupChannel(ctx, env)

	project := env.ProjectID
	if ps, ok := publisher.(*channel.PubSubChannel); ok {
		project = ps.Project()
	}
	plannerServer := planner.NewServer(
		plan.NewRecorder(repo),
		dispatch.NewDispatcher(publisher, env.ChannelEnv.Topic, env.PublishTimeout),
		project,
	)
	srv := server.NewServer(&env.BaseEnv, "planner", plannerServer)

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			slog.Error("failed to close channel", "error", err)
		}
	}
	if err := closeRepo(); err != nil {
		slog.Error("failed to close plan store", "error", err)
	}
}

// setupRepository returns a nil repository when the store is disabled or cannot be opened.
func setupRepository(ctx context.Context, env *config.PlannerEnv) (plan.Repository, func() error) {
	noop := func() error { return nil }
	storeEnv := env.StorageEnv

	var (
		store storage.Storage
		err   error
	)
	switch storeEnv.Type {
	case "none":
		slog.Info("plan store disabled")
		return nil, noop
	case "firestore":
		repo, err := planrepo.NewFirestoreRepository(ctx, env.ProjectID, storeEnv.FirestoreCollection)
		if err != nil {
			slog.Warn("firestore client init failed, plan store disabled", "error", err)
			return nil, noop
		}
		slog.Info("initialized firestore plan store", "project", env.ProjectID, "collection", storeEnv.FirestoreCollection)
		return repo, repo.Close
	case "s3":
		store, err = storage.NewS3Storage(ctx, storeEnv.S3Bucket, storeEnv.S3Prefix, storeEnv.S3Region)
	case "sqlite":
		store, err = storage.NewSQLiteStorage(ctx, storeEnv.SQLitePath)
	default:
		store, err = storage.NewLocalStorage(storeEnv.BaseDir)
	}
	if err != nil {
		slog.Warn("storage init failed, plan store disabled", "type", storeEnv.Type, "error", err)
		return nil, noop
	}
	slog.Info("initialized plan store", "type", storeEnv.Type)
	return planrepo.NewYAMLRepository(store), func() error { return storage.Close(store) }
}

// setupChannel returns a nil publisher when publishing is disabled or the client cannot be created.
// The local backend also starts a push forwarder delivering to the executor.
func setupChannel(ctx context.Context, env *config.PlannerEnv) channel.Publisher {
	chEnv := env.ChannelEnv
	if !chEnv.PublishEnabled() {
		slog.Warn("channel not configured, publishing disabled", "type", chEnv.Type, "topic", chEnv.Topic)
		return nil
	}

	switch chEnv.Type {
	case "pubsub":
		pub, err := channel.NewPubSubChannel(ctx, chEnv.ProjectID)
		if err != nil {
			slog.Warn("pubsub client init failed, publishing disabled", "error", err)
			return nil
		}
		slog.Info("initialized pubsub channel", "project", pub.Project(), "topic", chEnv.Topic)
		return pub
	default:
		local := channel.NewLocalChannel(slog.Default())
		messages, err := local.Subscribe(ctx, chEnv.Topic)
		if err != nil {
			slog.Warn("local channel subscribe failed, publishing disabled", "error", err)
			_ = local.Close()
			return nil
		}
		forwarder := channel.NewPushForwarder(channel.PushConfig{
			Subscription: chEnv.PushSubscription,
			Endpoint:     chEnv.PushEndpoint,
			AckDeadline:  chEnv.PushAckDeadline,
			RetryDelay:   chEnv.PushRetryDelay,
			MaxAttempts:  chEnv.PushMaxAttempts,
		})
		go forwarder.Start(ctx, messages)
		slog.Info("initialized local channel", "topic", chEnv.Topic, "push_endpoint", chEnv.PushEndpoint)
		return local
	}
}
