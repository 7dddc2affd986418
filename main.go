package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Istamjon/Expressbot/internal/bot"
	"github.com/Istamjon/Expressbot/internal/broadcast"
	"github.com/Istamjon/Expressbot/internal/config"
	"github.com/Istamjon/Expressbot/internal/db/sqlite"
	"github.com/Istamjon/Expressbot/internal/handlers"
	"github.com/Istamjon/Expressbot/internal/infra"
	"github.com/Istamjon/Expressbot/internal/infrastructure/telegram"
	"github.com/Istamjon/Expressbot/internal/lifecycle"
	"github.com/Istamjon/Expressbot/internal/observability"
	"github.com/Istamjon/Expressbot/internal/referral"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetFormatter(&config.XbFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		log.WithError(err).Errorln("cant initialize bot api")
		time.Sleep(1 * time.Second)
		log.Fatalln("exiting")
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}
	defer botAPI.StopReceivingUpdates()

	dbClient, err := sqlite.NewSQLiteClient(ctx, infra.GetWorkDir(), "bot.db")
	if err != nil {
		log.WithError(err).Fatalln("cant initialize sqlite client")
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.WithError(err).Errorln("cant close sqlite client")
		}
	}()

	service := bot.NewService(botAPI, dbClient)
	ops := telegram.NewOperations(botAPI)
	ledger := referral.NewLedger(dbClient)
	coordinator := broadcast.NewCoordinator(ops, dbClient, cfg.Broadcast.SendDelay, cfg.Broadcast.MaxErrors)

	bot.RegisterUpdateHandler("admin", handlers.NewAdmin(service, ops, coordinator, ledger, cfg.OwnerID))
	bot.RegisterUpdateHandler("commands", handlers.NewCommands(service, ops, ledger))
	bot.RegisterUpdateHandler("guard", handlers.NewGuard(service, ops, ledger, dbClient))

	runtime := lifecycle.NewRuntime(observability.NewServer(cfg.ListenAddr))
	if err := runtime.Start(ctx); err != nil {
		log.WithError(err).Fatalln("cant start runtime components")
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := runtime.Stop(stopCtx); err != nil {
			log.WithError(err).Errorln("cant stop runtime components")
		}
	}()

	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = 60
	updateProcessor := bot.NewUpdateProcessor(service)
	updateChan, errorChan := bot.GetUpdatesChans(ctx, botAPI, updateConfig)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		for {
			select {
			case err := <-errorChan:
				return errors.WithMessage(err, "bot api get updates error")
			case update := <-updateChan:
				if err := updateProcessor.Process(groupCtx, &update); err != nil {
					log.WithError(err).Errorln("cant process update")
				}
			case <-groupCtx.Done():
				return groupCtx.Err()
			}
		}
	})
	group.Go(func() error {
		if _, ok := <-infra.MonitorExecutable(groupCtx); ok {
			return errors.New("executable file was modified")
		}
		return groupCtx.Err()
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Errorln("no more updates")
	}
}
