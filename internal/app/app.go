package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tunespace/server/internal/controller"
	"github.com/tunespace/server/internal/domain"
	"github.com/tunespace/server/internal/playback/spotify"
	"github.com/tunespace/server/internal/repository/connection/inmemory"
	sessionRedis "github.com/tunespace/server/internal/repository/session/redis"
	"github.com/tunespace/server/internal/service/session"
	"github.com/tunespace/server/pkg/ctxlogger"
	"github.com/tunespace/server/pkg/redisclient"
)

type AppConfig struct {
	Secret             string        `json:"-"`
	Host               string        `json:"host"`
	Port               int           `json:"port"`
	ParticipantsLimit  int           `json:"participants_limit"`
	QueueLimit         int           `json:"queue_limit"`
	LogLevel           string        `json:"log_level"`
	RedisPort          int           `json:"redis_port"`
	RedisHost          string        `json:"redis_host"`
	RedisPassword      string        `json:"-"`
	DeviceBindTimeout  time.Duration `json:"device_bind_timeout"`
	DevicePollInterval time.Duration `json:"device_poll_interval"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.ParticipantsLimit < 1 {
		return fmt.Errorf("participants limit must be greater than 0")
	}
	if cfg.QueueLimit < 1 {
		return fmt.Errorf("queue limit must be greater than 0")
	}
	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	logger := slog.New(&h)

	rc, err := redisclient.NewRedisClient(&redisclient.Config{
		Port:     cfg.RedisPort,
		Host:     cfg.RedisHost,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	sessionRepo := sessionRedis.NewRepo(rc, 5*time.Minute, 24*time.Hour)
	connRepo := inmemory.NewRepo()

	adapterCfg := spotify.Config{
		PollInterval: cfg.DevicePollInterval,
		BindTimeout:  cfg.DeviceBindTimeout,
	}
	newAdapter := func(credential domain.Credential) session.PlaybackAdapter {
		return spotify.NewAdapter(credential, logger, &adapterCfg)
	}

	sessionService := session.NewService(sessionRepo, newAdapter, logger, &session.Config{
		Secret:            cfg.Secret,
		ParticipantsLimit: cfg.ParticipantsLimit,
		QueueLimit:        cfg.QueueLimit,
	})
	controller := controller.NewController(sessionService, connRepo, sessionRepo, logger)
	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: controller.GetMux()}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
