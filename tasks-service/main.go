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

	internaldb "github.com/chepyr/taskmaster/internal/db"
	"github.com/chepyr/taskmaster/internal/ratelimit"
	"github.com/chepyr/taskmaster/shared/config"
	"github.com/chepyr/taskmaster/tasks-service/auth"
	"github.com/chepyr/taskmaster/tasks-service/db"
	"github.com/chepyr/taskmaster/tasks-service/handlers"
	"github.com/chepyr/taskmaster/tasks-service/tasks"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Error loading .env file: %v", err)
	}
	cfg, err := config.Load("SERVER_PORT_TASKS")
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
	dbConn, err := internaldb.Connect(cfg.DBDriver, cfg.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := internaldb.Migrate(ctx, dbConn, cfg.DBDriver); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		log.Printf("Database schema is up to date (%s)", cfg.DBDriver)
	}
	return dbConn
}

// initRedis returns nil when REDIS_ADDR is unset; rate limiting then stays
// in process.
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
		Tasks:          tasks.NewService(db.NewTaskRepository(dbConn)),
		Resolver:       auth.NewJWTResolver(cfg.JWTSecret, internaldb.NewUserRepository(dbConn)),
		RateLimiter:    ratelimit.New(redisClient, "ratelimit:tasks:", cfg.RateLimit, cfg.RateWindow),
		TrustedProxies: cfg.TrustedProxies,
	}
	handler.Routes(mux)
}

func startServer(server *http.Server, dbConn *sql.DB, redisClient *redis.Client) {
	log.Printf("Starting tasks server on %s", server.Addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			// connections close only after in-flight requests are done
			"tasks-service": func(ctx context.Context) error {
				log.Println("Shutting down server")
				if err := server.Shutdown(ctx); err != nil {
					return err
				}
				if redisClient != nil {
					if err := redisClient.Close(); err != nil {
						log.Printf("Error closing redis client: %v", err)
					}
				}
				return dbConn.Close()
			},
		},
	)

	exitCode := <-wait
	log.Printf("Server stopped with code %d", exitCode)
	os.Exit(exitCode)
}
