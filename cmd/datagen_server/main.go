package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"datagen_platform/datagen/config"
	"datagen_platform/datagen/migrations"
	"datagen_platform/datagen/services"
	"datagen_platform/datagen/storage"
	"datagen_platform/utils"
	"datagen_platform/utils/logging"

	env "github.com/caarlos0/env/v10"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type datagenEnv struct {
	DatabaseUri string
	ShareDir    string
	JwtSecret   string

	ApiKey   string
	GenAiKey string

	RedisAddr         string
	RedisPassword     string
	MaxConcurrentRuns int

	ReviewEndpoint  string
	ReviewApiKey    string
	ReviewWorkspace string

	AllowedOrigin string

	S3 storage.S3Config
}

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

/**
 * ==========================================================================
 * ==== All variables used by the datagen server must be loaded here.    ====
 * ==== This is to make the data flow clear so that a user can see what  ====
 * ==== variables are exposed, and how the values are propagated through ====
 * ==== the system.                                                      ====
 * ==========================================================================
 */
func loadEnv() datagenEnv {
	missingEnvs := []string{}

	requiredEnv := func(key string) string {
		env := os.Getenv(key)
		if env == "" {
			missingEnvs = append(missingEnvs, key)
			slog.Error("missing required env variable", "key", key)
		}
		return env
	}

	cfg := datagenEnv{
		DatabaseUri: requiredEnv("DATABASE_URI"),
		ShareDir:    requiredEnv("SHARE_DIR"),
		JwtSecret:   requiredEnv("JWT_SECRET"),

		ApiKey:   utils.OptionalEnv("API_KEY"),
		GenAiKey: utils.OptionalEnv("GENAI_KEY"),

		RedisAddr:         utils.OptionalEnv("REDIS_ADDR"),
		RedisPassword:     utils.OptionalEnv("REDIS_PASSWORD"),
		MaxConcurrentRuns: utils.IntEnvVar("MAX_CONCURRENT_RUNS", 4),

		ReviewEndpoint:  utils.OptionalEnv("REVIEW_ENDPOINT"),
		ReviewApiKey:    utils.OptionalEnv("REVIEW_API_KEY"),
		ReviewWorkspace: utils.OptionalEnv("REVIEW_WORKSPACE"),

		AllowedOrigin: utils.OptionalEnv("ALLOWED_ORIGIN"),
	}

	if err := env.Parse(&cfg.S3); err != nil {
		log.Fatalf("error parsing s3 env variables: %v", err)
	}

	if len(missingEnvs) > 0 {
		log.Fatalf("The following required env vars are missing: %s", strings.Join(missingEnvs, ", "))
	}

	return cfg
}

func (env *datagenEnv) postgresDsn() string {
	parts, err := url.Parse(env.DatabaseUri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func initDb(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	if err := migrations.Migrate(db); err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")

	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}
	env := loadEnv()

	err := os.MkdirAll(filepath.Join(env.ShareDir, "logs/"), 0777)
	if err != nil {
		log.Fatalf("error creating log dir: %v", err)
	}

	logFile, err := os.OpenFile(filepath.Join(env.ShareDir, "logs/datagen_server.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	logging.InitLogging(logFile)

	db := initDb(env.postgresDsn())

	sharedStorage := storage.NewSharedDisk(env.ShareDir)

	var redisClient *redis.Client
	if env.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     env.RedisAddr,
			Password: env.RedisPassword,
		})
	}

	var exporter *storage.S3Exporter
	if env.S3.Enabled() {
		exporter, err = storage.NewS3Exporter(env.S3)
		if err != nil {
			log.Fatalf("error creating s3 exporter: %v", err)
		}
	}

	variables := services.Variables{
		ApiKey:    env.ApiKey,
		LlmApiKey: env.GenAiKey,
		Review: config.ReviewConfig{
			Endpoint:  env.ReviewEndpoint,
			ApiKey:    env.ReviewApiKey,
			Workspace: env.ReviewWorkspace,
		},
		MaxConcurrentRuns: env.MaxConcurrentRuns,
	}

	service := services.NewDatagenService(
		db,
		sharedStorage,
		redisClient,
		exporter,
		variables,
		[]byte(env.JwtSecret),
	)

	go service.RunStatusSync(30*time.Second, 10*time.Minute)

	allowedOrigin := env.AllowedOrigin
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{allowedOrigin},                             // Allow public ingress origin
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}, // Allow all HTTP methods
		AllowedHeaders:   []string{"*"},                                       // Allow all headers
		ExposedHeaders:   []string{"*"},                                       // Expose all headers
		AllowCredentials: true,                                                // Allow cookies/auth headers
		MaxAge:           300,                                                 // Cache preflight response for 5 minutes
	}))
	r.Mount("/api/v1", service.Routes())

	slog.Info("starting server", "port", *port)
	err = http.ListenAndServe(fmt.Sprintf(":%d", *port), r)
	if err != nil {
		log.Fatalf("listen and serve returned error: %v", err.Error())
	}
	service.StopRunStatusSync()
	service.Shutdown()
}
