package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/lobby-ws/lobby"
	"github.com/lobby-ws/lobby/gobwas"
	"github.com/lobby-ws/lobby/gorilla"
)

type config struct {
	Addr               string        `mapstructure:"addr"`
	Namespaces         []string      `mapstructure:"namespaces"`
	MaxRoomConnections int           `mapstructure:"max_room_connections"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	LogLevel           string        `mapstructure:"log_level"`
}

func loadConfig() (*config, error) {
	v := viper.New()
	v.SetConfigName("lobbyd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/lobbyd")
	v.SetEnvPrefix("lobbyd")
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("namespaces", []string{"default"})
	v.SetDefault("max_room_connections", lobby.DefaultMaxRoomConnections)
	v.SetDefault("read_timeout", "0s")
	v.SetDefault("write_timeout", "10s")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		log.Warn().Msg("no config file found, using defaults")
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	conf := lobby.Config{
		Namespaces:         cfg.Namespaces,
		MaxRoomConnections: cfg.MaxRoomConnections,
		ReadTimeout:        cfg.ReadTimeout,
		WriteTimeout:       cfg.WriteTimeout,
		Logger:             &log.Logger,
	}

	gorillaServer, err := lobby.New(gorilla.DefaultUpgrader, conf)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct server")
	}
	gobwasServer, err := lobby.New(gobwas.DefaultUpgrader, conf)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct server")
	}

	mux := http.NewServeMux()
	mux.Handle("/", gorillaServer)
	mux.Handle("/lite", gobwasServer)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Strs("namespaces", cfg.Namespaces).
			Msg("lobbyd started")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server stopped")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	gorillaServer.Close()
	gobwasServer.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
