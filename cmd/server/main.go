package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nikydiazc/tareas-service/internal/cfg"
	"github.com/nikydiazc/tareas-service/internal/httpmw"
	"github.com/nikydiazc/tareas-service/internal/notification"
	"github.com/nikydiazc/tareas-service/internal/session"
	"github.com/nikydiazc/tareas-service/internal/task"
)

func main() {
	config := cfg.LoadConfig()
	if len(config.JWTSecret) < 32 {
		log.Fatalf("JWT_SECRET must be at least 32 characters long for security")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(config.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect mongo: %v", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Printf("mongo disconnect error: %v", err)
		}
	}()

	coll := mongoClient.Database(config.MongoDatabase).Collection(config.MongoCollection)

	storage, err := task.NewMinioStorage(
		config.MinioEndpoint,
		config.MinioAccessKey,
		config.MinioSecretKey,
		config.MinioUseSSL,
		config.MinioBucket,
		config.MinioPublicURL,
	)
	if err != nil {
		log.Fatalf("failed to init minio: %v", err)
	}

	var redisClient *redis.Client
	if config.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       0,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
	}

	var producer task.EventProducer
	if len(config.KafkaBrokers) > 0 {
		producer = task.NewKafkaProducer(config.KafkaBrokers, config.KafkaTopic)
		defer producer.Close()
	}

	repo := task.NewRepository(coll)
	store := task.NewStore(task.StoreConfig{
		Repository:   repo,
		Photos:       storage,
		Events:       producer,
		OpTimeout:    config.OpTimeout,
		MaxPhotoSize: config.MaxPhotoSizeBytes,
	})

	notifier := notification.NewLogNotifier(nil)
	engine := task.NewEngine(task.EngineConfig{
		Store:       store,
		Mode:        task.StatusPending,
		Supervisors: config.Supervisors,
		Advisor:     notification.Advisor{Notifier: notifier},
	})

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	engine.Start(rootCtx)

	if len(config.KafkaBrokers) > 0 {
		consumer := notification.NewKafkaConsumer(
			config.KafkaBrokers,
			config.KafkaTopic,
			config.KafkaGroupID,
			notification.NewEventHandler(notifier),
		)
		defer consumer.Close()
		go func() {
			if err := consumer.Start(rootCtx); err != nil && rootCtx.Err() == nil {
				log.Printf("kafka consumer stopped: %v", err)
			}
		}()
	}

	provider := session.NewProvider([]byte(config.JWTSecret), redisClient)
	handler := task.NewHandler(engine, store, provider, config.Supervisors, config.MaxPhotoSizeBytes)

	httpPort := config.HTTPPort
	if httpPort == "" {
		httpPort = "8080"
	}
	httpServer := &http.Server{
		Addr: ":" + httpPort,
		Handler: httpmw.Chain(handler.Routes(),
			httpmw.SecurityHeaders,
			httpmw.CORS,
			httpmw.RequestSizeLimit(config.MaxPhotoSizeBytes+1024*1024),
		),
	}

	go func() {
		log.Printf("HTTP server listening on :%s", httpPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	rootCancel()
}
