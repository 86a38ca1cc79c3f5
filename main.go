package main

import (
	"net/http"
	"os"

	"field-history/internal/app"
	"field-history/internal/config"
	"field-history/internal/server"
	"field-history/internal/service"

	"github.com/joho/godotenv"

	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
)

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn("Could not load .env file.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithField("error", err).Fatal("Could not load configuration")
	}

	if err := app.Migrate(cfg); err != nil {
		log.WithField("error", err).Fatal("Could not apply migration")
	}

	a, err := app.New(cfg)
	if err != nil {
		log.WithField("error", err).Fatal("Could not initialize field history")
	}
	defer a.Close()

	// Create service
	orderService := service.NewOrderService(a.Orders)

	// Create server
	srv := server.NewServer(orderService, a.Backend)

	// Setup Echo
	e := echo.New()
	srv.Register(e)

	log.WithField("port", cfg.Port).Info("Field history service is starting with Echo")

	if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
		log.WithField("error", err).Fatal("Echo server failed to start")
	}
}
