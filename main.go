package main

import (
	"context"
	"embed"
	"log"
	"net/http"
	_ "net/http/pprof"

	"speccoh/adapters/postgres"
	"speccoh/adapters/postgres/migrations"
	"speccoh/app"
	"speccoh/internal"
	"speccoh/internal/cindex"
	"speccoh/internal/config"
	"speccoh/internal/errors"
	"speccoh/ports"
	"speccoh/ui"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

//go:embed ui/templates ui/static
var embeddedFiles embed.FS

// initDatabase connects to PostgreSQL and brings the schema up to date
func initDatabase(appConfig *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", appConfig.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	migrator := migrations.NewMigrator(db.DB)
	if err := migrator.Up(context.Background()); err != nil {
		return nil, errors.Wrap(err, "database migration failed")
	}

	return db, nil
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	gin.SetMode(appConfig.Server.GinMode)

	// Persistence is optional: without DATABASE_URL the dashboard still
	// analyzes, it just cannot store or list runs.
	var repo ports.RunRepository
	if appConfig.Database.URL != "" {
		db, err := initDatabase(appConfig)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()

		repo = postgres.NewRunRepository(db)
		log.Println("Run persistence enabled")
	} else {
		log.Println("DATABASE_URL not set, running without persistence")
	}

	logger := internal.NewDefaultLogger()
	analysis := app.NewAnalysisService(cindex.NewEngine(), repo, logger)

	if appConfig.Profiling.Enabled {
		go func() {
			addr := "localhost:" + appConfig.Profiling.Port
			log.Printf("pprof listening on http://%s/debug/pprof", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	server := ui.NewServer(embeddedFiles)
	if err := server.Initialize(analysis, repo, appConfig.Analysis); err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	if err := server.Start(":" + appConfig.Server.Port); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
