package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/huijing/sgtechonline/internal/backend"
	"github.com/huijing/sgtechonline/internal/chat"
	"github.com/huijing/sgtechonline/internal/config"
	"github.com/huijing/sgtechonline/internal/handler"
	"github.com/huijing/sgtechonline/internal/hub"
	"github.com/huijing/sgtechonline/internal/kafka"
	"github.com/huijing/sgtechonline/internal/service"
	"github.com/huijing/sgtechonline/internal/transport"
	pkgconfig "github.com/huijing/sgtechonline/pkg/config"
	"github.com/huijing/sgtechonline/pkg/jwt"
	pkglog "github.com/huijing/sgtechonline/pkg/log"
	"github.com/huijing/sgtechonline/pkg/pubsub"
)

const serviceName = "spotlight"

func main() {
	// Load configuration
	cfg, v, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Level == "debug",
		ServiceName: serviceName,
	})
	logger := pkglog.L()

	if pkgconfig.Watch(v, func(v *viper.Viper) {
		lvl := pkglog.SetLevel(v.GetString("log.level"))
		logger.Info().Str("level", lvl.String()).Msg("log level reloaded")
	}) {
		logger.Info().Str("file", v.ConfigFileUsed()).Msg("watching configuration file")
	}

	// Initialize PubSub
	ps, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize pubsub")
	}
	defer ps.Close()
	logger.Info().Str("driver", cfg.PubSub.Driver).Msg("pubsub ready")

	// Broadcast backend
	signer, err := jwt.NewProjectSigner(cfg.Backend.APIKey, cfg.Backend.APISecret, cfg.Backend.TokenTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid backend credentials")
	}
	backendClient := backend.NewHTTPClient(cfg.Backend.BaseURL, signer, cfg.Backend.Timeout)

	opts := []service.Option{service.WithBackendTimeout(cfg.Backend.Timeout)}
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create kafka producer, broadcast events disabled")
		} else {
			defer producer.Close()
			opts = append(opts, service.WithEventProducer(producer))
			logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("connected to kafka")
		}
	}
	coordinator := service.NewBroadcastCoordinator(backendClient, opts...)

	// Viewer chat persistence
	store, err := chat.NewStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.Chat.Store).Msg("failed to initialize chat store")
	}
	defer store.Close()
	logger.Info().Str("store", cfg.Chat.Store).Msg("chat store ready")

	sessions := transport.NewHub(ps)
	defer sessions.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run(ctx)

	// Broadcast API
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))
	handler.NewHandler(coordinator).RegisterRoutes(r)

	apiServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Participant gateway
	mux := http.NewServeMux()
	handler.NewWSHandler(wsHub, sessions, coordinator, store, cfg.Session.DefaultID).RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	gatewayServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		Handler:     pkglog.HTTPMiddleware(logger)(mux),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{apiServer, gatewayServer} {
		srv := srv
		g.Go(func() error {
			logger.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info().Msg("shutting down " + serviceName)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), gatewayServer.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	logger.Info().Msg(serviceName + " stopped")
}
