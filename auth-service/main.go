package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/redis/go-redis/v9"

	"github.com/chepyr/taskmaster/auth-service/handlers"
	"github.com/chepyr/taskmaster/internal/db"
	"github.com/chepyr/taskmaster/internal/ratelimit"
	"github.com/chepyr/taskmaster/shared/config"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Error loading .env file: %v", err)
	}
	cfg, err := config.Load("SERVER_PORT")
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	dbConn := initDB(cfg)
	redisClient := initRedis(cfg)

	mux := http.NewServeMux()
	initHandlers(cfg, mux, dbConn, redisClient)
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	startServer(server, dbConn, redisClient)
}

func initDB(cfg *config.Config) *sql.DB {
	dbConn, err := db.Connect(cfg.DBDriver, cfg.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Migrate(ctx, dbConn, cfg.DBDriver); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
	}
	return dbConn
}

func initRedis(cfg *config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := ratelimit.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	return client
}

func initHandlers(cfg *config.Config, mux *http.ServeMux, dbConn *sql.DB, redisClient *redis.Client) {
	handler := &handlers.Handler{
		UserRepo:       db.NewUserRepository(dbConn),
		RateLimiter:    ratelimit.New(redisClient, "ratelimit:auth:", cfg.RateLimit, cfg.RateWindow),
		Tokens:         handlers.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
		TrustedProxies: cfg.TrustedProxies,
	}
	mux.HandleFunc("/register", handler.Register)
	mux.HandleFunc("/login", handler.Login)
}

func startServer(server *http.Server, dbConn *sql.DB, redisClient *redis.Client) {
	log.Printf("Starting server on %s", server.Addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"auth-service": func(ctx context.Context) error {
				log.Println("Shutting down server")
				if err := server.Shutdown(ctx); err != nil {
					return err
				}
				if redisClient != nil {
					if err := redisClient.Close(); err != nil {
						log.Printf("Error closing redis client: %v", err)
					}
				}
				if err := dbConn.Close(); err != nil {
					log.Printf("Error closing database connection: %v", err)
				}
				return nil
			},
		},
	)

	exitCode := <-wait
	log.Printf("Server stopped with code %d", exitCode)
	os.Exit(exitCode)
}
