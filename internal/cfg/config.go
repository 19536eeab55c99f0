package cfg

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort          string
	MongoURI          string
	MongoDatabase     string
	MongoCollection   string
	MinioEndpoint     string
	MinioAccessKey    string
	MinioSecretKey    string
	MinioUseSSL       bool
	MinioBucket       string
	MinioPublicURL    string
	KafkaBrokers      []string
	KafkaTopic        string
	KafkaGroupID      string
	RedisAddr         string
	RedisPassword     string
	JWTSecret         string
	MaxPhotoSizeBytes int64
	OpTimeout         time.Duration
	Supervisors       []string
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not found, using environment variables")
	}

	cfg := Config{
		HTTPPort:        os.Getenv("HTTP_PORT"),
		MongoURI:        os.Getenv("MONGODB_URI"),
		MongoDatabase:   os.Getenv("MONGODB_DATABASE"),
		MongoCollection: os.Getenv("MONGODB_COLLECTION"),
		MinioEndpoint:   os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:  os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:  os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:     os.Getenv("MINIO_BUCKET"),
		MinioPublicURL:  os.Getenv("MINIO_PUBLIC_URL"),
		KafkaTopic:      os.Getenv("KAFKA_TOPIC"),
		KafkaGroupID:    os.Getenv("KAFKA_GROUP_ID"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
	}

	if os.Getenv("MINIO_USE_SSL") == "true" || os.Getenv("MINIO_USE_SSL") == "1" {
		cfg.MinioUseSSL = true
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitList(brokers)
	}

	// Supervisor roster is deployment configuration, not code.
	cfg.Supervisors = splitList(os.Getenv("SUPERVISORS"))

	// MAX_PHOTO_SIZE optional, default 10MB
	if maxStr := os.Getenv("MAX_PHOTO_SIZE"); maxStr != "" {
		if v, err := strconv.ParseInt(maxStr, 10, 64); err == nil {
			cfg.MaxPhotoSizeBytes = v
		}
	}
	if cfg.MaxPhotoSizeBytes == 0 {
		cfg.MaxPhotoSizeBytes = 10 * 1024 * 1024
	}

	// OP_TIMEOUT_SECONDS optional, default 10s
	if timeoutStr := os.Getenv("OP_TIMEOUT_SECONDS"); timeoutStr != "" {
		if v, err := strconv.Atoi(timeoutStr); err == nil && v > 0 {
			cfg.OpTimeout = time.Duration(v) * time.Second
		}
	}
	if cfg.OpTimeout == 0 {
		cfg.OpTimeout = 10 * time.Second
	}

	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = "task-events"
	}
	if cfg.KafkaGroupID == "" {
		cfg.KafkaGroupID = "notifications"
	}

	return cfg
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
