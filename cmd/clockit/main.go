package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/JollyGreenFrogs/clockit-sub000/internal/config"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/db"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/invoice"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/timer"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/tui"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/web"
)

func main() {
	configPathFlag := flag.String("config", "", "config file path")
	dbPathFlag := flag.String("db", "", "sqlite db path")
	webFlag := flag.Bool("web", false, "enable web API server")
	webOnlyFlag := flag.Bool("web-only", false, "run web API server only")
	portFlag := flag.Int("port", 0, "web API server port")
	userFlag := flag.String("user", "", "user id to track time as")
	flag.Parse()

	cfgPath, err := resolveConfigPath(*configPathFlag)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	if *dbPathFlag != "" {
		cfg.DBPath = *dbPathFlag
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(filepath.Dir(cfgPath), "clockit.db")
	}
	if *webFlag {
		cfg.WebEnabled = true
	}
	if *portFlag != 0 {
		cfg.WebPort = *portFlag
	}
	if cfg.WebPort == 0 {
		cfg.WebPort = 8080
	}
	if *userFlag != "" {
		cfg.DefaultUser = *userFlag
	}
	if cfg.DefaultUser == "" {
		cfg.DefaultUser = "default"
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		log.Fatal(err)
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		log.Fatal(err)
	}

	timers := timer.New(store)
	invoices := invoice.New(store)

	if cfg.WebEnabled || *webOnlyFlag {
		logger := slog.Default()
		addr := fmt.Sprintf(":%d", cfg.WebPort)
		handler := web.NewServer(store, timers, invoices, logger, cfg.DefaultUser).Handler()
		if *webOnlyFlag {
			logger.Info("web API listening", "addr", addr)
			log.Fatal(http.ListenAndServe(addr, handler))
		}

		go func() {
			logger.Info("web API listening", "addr", addr)
			if err := http.ListenAndServe(addr, handler); err != nil {
				logger.Error("web server stopped", "err", err)
			}
		}()
	}

	if err := tui.Run(store, timers, invoices, cfg.DefaultUser); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveConfigPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	return config.DefaultConfigPath()
}

func openStore(dbPath string) (*db.Store, error) {
	if err := config.EnsureDir(dbPath); err != nil {
		return nil, err
	}

	sqlDB, err := db.Open(dbPath)
	if err != nil {
		return nil, err
	}

	return db.NewStore(sqlDB), nil
}
