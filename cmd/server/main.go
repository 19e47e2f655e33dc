package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/solten/donations/config"
	"github.com/solten/donations/db"
	"github.com/solten/donations/internal/explorer"
	"github.com/solten/donations/internal/notify"
	"github.com/solten/donations/internal/rates"
	"github.com/solten/donations/internal/repository"
	"github.com/solten/donations/internal/scheduler"
	"github.com/solten/donations/internal/service"
	"github.com/solten/donations/internal/wallet"
	"github.com/solten/donations/internal/web"
	"github.com/solten/donations/utils"
)

func main() {
	logger := utils.InitLogger()

	cfg, err := config.LoadConfig(".env")
	if err != nil {
		logger.Fatal("Failed to load config: ", err)
	}

	database, err := db.ConnectDb(cfg.DBURL, logger)
	if err != nil {
		logger.Fatal(err)
	}

	if err := db.Migrate(database, logger); err != nil {
		logger.Fatal(err)
	}

	repo := repository.NewRepository(database, logger)

	deriver, err := wallet.NewDeriver(cfg.MasterKey(), cfg.NetParams())
	if err != nil {
		logger.Fatal("Failed to parse master key: ", err)
	}

	oracle := rates.NewOracle(logger)
	probe := explorer.NewClient(cfg.IsTestnet(), logger)

	sched, err := scheduler.NewGocron(logger)
	if err != nil {
		logger.Fatal("Failed to create scheduler: ", err)
	}
	defer sched.Shutdown()

	var notifier service.Notifier
	if cfg.TelegramBotToken != "" && cfg.AdminChatID != 0 {
		telegramNotifier, err := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.AdminChatID, logger)
		if err != nil {
			logger.Fatal("Failed to create Telegram notifier: ", err)
		}
		notifier = telegramNotifier
	}

	svc := service.NewService(repo, oracle, probe, deriver, sched, notifier, cfg.IsTestnet(), logger)

	if _, err := sched.RunHourly(func() {
		if _, err := svc.CleanupExpired(context.Background()); err != nil {
			logger.Errorf("cleanup failed: %v", err)
		}
	}); err != nil {
		logger.Fatal("Failed to schedule cleanup: ", err)
	}

	server := web.NewServer(svc, cfg.ListenAddr, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("HTTP server failed: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("shutdown error: %v", err)
	}
}
