package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"league-lobby-system/handlers"
	"league-lobby-system/middleware"
	"league-lobby-system/models"
	"league-lobby-system/services"
	"league-lobby-system/slapapi"
	"league-lobby-system/utils"
	"league-lobby-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024, // 50MB — replay log uploads
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitObjectStore(); err != nil {
		log.Fatal("failed to initialize object store client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.League{},
		&models.Season{},
		&models.Division{},
		&models.SeasonDivision{},
		&models.FreeAgent{},
		&models.Team{},
		&models.TeamPlayer{},
		&models.Player{},
		&models.Matchtype{},
		&models.Match{},
		&models.MatchResult{},
		&models.Lobby{},
		&models.MatchData{},
		&models.PlayerMatchData{},
		&models.MatchReview{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// --- CONFIGURE Slapshot Public API access ---
	slapURL := os.Getenv("SLAP_API_URL")
	if slapURL == "" {
		log.Fatal("SLAP_API_URL environment variable not set")
	}
	slapKey := os.Getenv("SLAP_API_KEY")
	if slapKey == "" {
		log.Fatal("SLAP_API_KEY environment variable not set")
	}
	// --- END CONFIG ---

	slapClient := slapapi.NewClient(slapURL, slapKey)

	taskManager, err := services.NewTaskManager()
	if err != nil {
		log.Fatal("failed to start task manager:", err)
	}

	ingestService := services.NewIngestService(db, slapClient)
	resultService := services.NewResultService(db)
	validationService := services.NewValidationService(db, resultService)

	monitorCfg := workers.MonitorConfig{
		CheckInterval: envSeconds("LOBBY_CHECK_INTERVAL_SEC", 10*time.Second),
		MaxTime:       envSeconds("LOBBY_MAX_TIME_SEC", 45*time.Minute),
	}
	monitor := workers.NewLobbyMonitor(db, slapClient, ingestService, validationService, taskManager, monitorCfg)

	lobbyService := services.NewLobbyService(db, slapClient, taskManager, monitor)
	reviewService := services.NewReviewService(db, lobbyService)

	validationService.StartMaintenanceScheduler(taskManager)

	// ✅ Setup routes — enforced Gateway auth + consistent /s/ prefix
	handlers.SetupLobbyRoutes(app, lobbyService, ingestService)
	handlers.SetupMatchRoutes(app, validationService, reviewService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Maintenance scheduler running (every 1m)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := taskManager.Shutdown(); err != nil {
		log.Printf("⚠️  Task manager shutdown error: %v", err)
	}
}

// envSeconds reads an integer number of seconds from the environment.
func envSeconds(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("⚠️  Invalid %s=%q, using default %s", key, raw, fallback)
		return fallback
	}
	return time.Duration(n) * time.Second
}
