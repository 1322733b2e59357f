package main // Entry point package

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/microvault/strain-registry/internal/config"
	"github.com/microvault/strain-registry/internal/database"
	"github.com/microvault/strain-registry/internal/handler"
	"github.com/microvault/strain-registry/internal/queue"
	"github.com/microvault/strain-registry/internal/repository"
	"github.com/microvault/strain-registry/internal/router"
	"github.com/microvault/strain-registry/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment directly
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database open failed: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; login rate limiting disabled")
	}

	auditRepo := repository.NewAuditRepo(db)
	userRepo := repository.NewUserRepo(db, auditRepo)
	strainRepo := repository.NewStrainRepo(db, auditRepo)

	accounts := service.NewAccounts(userRepo, auditRepo, cfg.BcryptCost)
	registry := service.NewStrainRegistry(strainRepo, queue.PublishContainmentAlert)

	// Background consumer for containment alerts; reconnects on its own.
	go func() {
		if err := queue.StartContainmentConsumer(); err != nil {
			log.Printf("containment consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, accounts), userRepo, rdb)
	router.RegisterStrains(e, handler.NewStrainHandler(registry), cfg.JWTSecret, userRepo)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
