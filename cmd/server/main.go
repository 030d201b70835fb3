package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/dreamlog/go-approval-server/approval"
	"github.com/dreamlog/go-approval-server/approval/sessions"
	"github.com/dreamlog/go-approval-server/bot"
	"github.com/dreamlog/go-approval-server/internal/config"
	"github.com/dreamlog/go-approval-server/server"
	"github.com/dreamlog/go-approval-server/telegram"
	"github.com/dreamlog/go-approval-server/token"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	c := config.New()
	displayAppname(c.GetAppName())

	codec, err := token.NewCodec(c.GetTokenSecret(), token.WithTokenTTL(c.GetTokenTTL()))
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}

	sessionRepo := sessions.NewInMemoryRepo(sessions.WithSessionTTL(c.GetSessionTTL()))
	approvals, err := approval.NewService(sessionRepo, codec)
	if err != nil {
		return fmt.Errorf("approval service: %w", err)
	}

	// The bot token is optional: without it the service still runs the HTTP
	// transport, but trusts request-body identity (dev mode only).
	var webApp *telegram.Validator
	if botToken := c.GetBotToken(); botToken != "" {
		webApp, err = telegram.NewValidator(botToken)
		if err != nil {
			return fmt.Errorf("init-data validator: %w", err)
		}
	} else {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set; running without bot transport or init-data verification")
	}

	srv, err := server.New(c, approvals, webApp)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go approvals.RunSweeper(ctx, c.GetSweepInterval())

	if botToken := c.GetBotToken(); botToken != "" {
		api, err := tgbotapi.NewBotAPI(botToken)
		if err != nil {
			return fmt.Errorf("tgbotapi.NewBotAPI: %w", err)
		}
		tgBot, err := bot.New(api, approvals, c.GetWebAppURL(), log.With().Str("component", "bot").Logger())
		if err != nil {
			return fmt.Errorf("bot.New: %w", err)
		}
		go tgBot.Run(ctx)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	cancel()
	return shutdown(httpServer)
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
