package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil {
			return err
		}
	}

	return nil
}

type EnviornmentVariable struct {
	// All variables
	GO_ENV       string
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	PORT         int
	// JWT Configuration
	JWT_SECRET string
	JWT_ISSUER string
	// Redis Configuration
	REDIS_URL      string
	REDIS_PASSWORD string
	REDIS_DB       string
	// DigitalOcean Configuration
	DO_SPACES_BUCKET     string
	DO_SPACES_REGION     string
	DO_SPACES_ENDPOINT   string
	DO_SPACES_ACCESS_KEY string
	DO_SPACES_SECRET_KEY string
	DO_INFERENCE_API_KEY string
	// Provider key sealing
	PROVIDER_KEY_SECRET string
	// Guards tenant provisioning before any tenant API key exists
	BOOTSTRAP_KEY string
	// Pipeline Configuration
	CHUNK_TOKENS        int
	CHUNK_OVERLAP_PCT   int
	UPLOAD_WORKERS      int
	EXTRACTION_WORKERS  int
	LESSON_WORKERS      int
	EVALUATION_WORKERS  int
	STALE_JOB_SWEEP_MIN int
}

func Get() (*EnviornmentVariable, error) {

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	// Database defaults
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "5432"
	}

	envVariables := &EnviornmentVariable{
		GO_ENV:       os.Getenv("GO_ENV"),
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      dbHost,
		DB_PORT:      dbPort,
		DB_SSL_MODE:  os.Getenv("DB_SSL_MODE"),
		PORT:         port,
		// JWT
		JWT_SECRET: os.Getenv("JWT_SECRET"),
		JWT_ISSUER: os.Getenv("JWT_ISSUER"),
		// Redis
		REDIS_URL:      os.Getenv("REDIS_URL"),
		REDIS_PASSWORD: os.Getenv("REDIS_PASSWORD"),
		REDIS_DB:       os.Getenv("REDIS_DB"),
		// DigitalOcean
		DO_SPACES_BUCKET:     os.Getenv("DO_SPACES_BUCKET"),
		DO_SPACES_REGION:     os.Getenv("DO_SPACES_REGION"),
		DO_SPACES_ENDPOINT:   os.Getenv("DO_SPACES_ENDPOINT"),
		DO_SPACES_ACCESS_KEY: os.Getenv("DO_SPACES_ACCESS_KEY"),
		DO_SPACES_SECRET_KEY: os.Getenv("DO_SPACES_SECRET_KEY"),
		DO_INFERENCE_API_KEY: os.Getenv("DO_INFERENCE_API_KEY"),
		// Provider key sealing
		PROVIDER_KEY_SECRET: os.Getenv("PROVIDER_KEY_SECRET"),
		BOOTSTRAP_KEY:       os.Getenv("BOOTSTRAP_KEY"),
		// Pipeline
		CHUNK_TOKENS:        intEnv("CHUNK_TOKENS", 900),
		CHUNK_OVERLAP_PCT:   intEnv("CHUNK_OVERLAP_PCT", 10),
		UPLOAD_WORKERS:      intEnv("UPLOAD_WORKERS", 2),
		EXTRACTION_WORKERS:  intEnv("EXTRACTION_WORKERS", 4),
		LESSON_WORKERS:      intEnv("LESSON_WORKERS", 4),
		EVALUATION_WORKERS:  intEnv("EVALUATION_WORKERS", 2),
		STALE_JOB_SWEEP_MIN: intEnv("STALE_JOB_SWEEP_MIN", 30),
	}

	return envVariables, nil
}

func intEnv(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
