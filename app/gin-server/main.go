package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/linguacall/linguacall/config"
	"github.com/linguacall/linguacall/internal/api/handlers"
	"github.com/linguacall/linguacall/internal/api/middleware"
	"github.com/linguacall/linguacall/internal/api/routes"
	"github.com/linguacall/linguacall/internal/cache"
	"github.com/linguacall/linguacall/internal/logger"
	"github.com/linguacall/linguacall/internal/providers/stt"
	"github.com/linguacall/linguacall/internal/providers/translate"
	"github.com/linguacall/linguacall/internal/relay"
	mongorepo "github.com/linguacall/linguacall/internal/repositories/mongo"
	pgrepo "github.com/linguacall/linguacall/internal/repositories/postgres"
	"github.com/linguacall/linguacall/internal/services"
	"github.com/linguacall/linguacall/internal/storage"
)

func main() {
	_ = godotenv.Load()
	log := logger.New()

	if err := config.InitPostgres(); err != nil {
		log.WithError(err).Fatal("postgres connection failed")
	}
	if err := config.InitMongo(); err != nil {
		log.WithError(err).Warn("mongo unavailable, call history disabled")
	}
	if err := config.InitRedis(); err != nil {
		log.WithError(err).Warn("redis unavailable, captions and profile cache disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisCache cache.Cache
	if config.RedisClient != nil {
		redisCache = cache.NewRedisCache(config.RedisClient)
	}

	profileRepo := pgrepo.NewProfileRepo(config.PostgresDB)
	profileSvc := services.NewProfileService(profileRepo, redisCache)

	registry := relay.NewRegistry(log)
	if config.MongoClient != nil {
		dbName := os.Getenv("MONGO_DB")
		if dbName == "" {
			dbName = "linguacall"
		}
		sessionRepo := mongorepo.NewCallSessionRepo(config.MongoClient.Database(dbName))
		registry.SetLifecycle(&services.RoomLifecycle{
			Sessions: services.NewCallSessionService(sessionRepo),
			Logger:   log,
		})
	}

	var sttProvider stt.LiveProvider
	switch os.Getenv("STT_PROVIDER") {
	case "google":
		p, err := stt.NewGoogleSpeech(ctx, log)
		if err != nil {
			log.WithError(err).Fatal("google speech client failed")
		}
		sttProvider = p
	default:
		sttProvider = stt.NewDeepgram(os.Getenv("DEEPGRAM_API_KEY"), log)
	}
	defer sttProvider.Close()

	var translator translate.Translator
	switch os.Getenv("TRANSLATE_PROVIDER") {
	case "gemini":
		location := os.Getenv("GOOGLE_LOCATION")
		if location == "" {
			location = "us-central1"
		}
		t, err := translate.NewVertexGemini(ctx, os.Getenv("GOOGLE_PROJECT_ID"), location, os.Getenv("GEMINI_MODEL"))
		if err != nil {
			log.WithError(err).Fatal("vertex gemini client failed")
		}
		translator = t
	default:
		translator = translate.NewHTTPTranslator(os.Getenv("TRANSLATE_API_URL"), os.Getenv("TRANSLATE_API_KEY"))
	}
	translator = translate.NewMemo(translator)
	defer translator.Close()

	var captions services.CaptionHistoryService
	if config.RedisClient != nil {
		captions = services.NewCaptionHistoryService(config.RedisClient)
	}

	var archiver storage.Archiver
	if bucket := os.Getenv("AUDIO_ARCHIVE_BUCKET"); bucket != "" {
		a, err := storage.NewGCSArchiver(ctx, bucket)
		if err != nil {
			log.WithError(err).Warn("audio archive disabled")
		} else {
			archiver = a
		}
	}

	heartbeat := relay.DefaultHeartbeatInterval
	if v := os.Getenv("HEARTBEAT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			heartbeat = d
		} else {
			log.WithField("value", v).Warn("invalid HEARTBEAT_INTERVAL, using default")
		}
	}
	monitor := &relay.Monitor{Registry: registry, Interval: heartbeat, Logger: log}
	go monitor.Run(ctx)

	relayHandler := handlers.NewRelayHandler(handlers.RelayDeps{
		Registry:   registry,
		STT:        sttProvider,
		Translator: translator,
		Profiles:   profileSvc,
		Captions:   captions,
		Archiver:   archiver,
		Logger:     log,
	})

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Profile: handlers.NewProfileHandler(profileSvc),
		History: handlers.NewHistoryHandler(captions),
		Relay:   relayHandler,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.WithField("port", port).Info("starting server")
	if err := r.Run(":" + port); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
