package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gsiegel14/fasten-webhook-service/internal/application"
	"github.com/gsiegel14/fasten-webhook-service/internal/application/event_handlers"
	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
	"github.com/gsiegel14/fasten-webhook-service/internal/infrastructure/cache"
	"github.com/gsiegel14/fasten-webhook-service/internal/infrastructure/metrics"
	"github.com/gsiegel14/fasten-webhook-service/internal/infrastructure/provider"
	"github.com/gsiegel14/fasten-webhook-service/internal/infrastructure/pubsub"
	"github.com/gsiegel14/fasten-webhook-service/internal/infrastructure/repository"
	"github.com/gsiegel14/fasten-webhook-service/internal/infrastructure/sink"
	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

func main() {
	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("⚠️  Warning: .env file not found")
	}

	// Get configuration from environment
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Event store: durable when MongoDB is configured, in-memory otherwise
	var eventStore ports.EventStore
	if mongoURI := os.Getenv("MONGODB_URI"); mongoURI != "" {
		client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(mongoURI))
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
		}
		defer client.Disconnect(context.Background())

		dbName := os.Getenv("MONGODB_DATABASE")
		if dbName == "" {
			dbName = "fasten_webhooks"
		}
		store, err := repository.NewMongoEventStore(context.Background(), client.Database(dbName), 30*24*time.Hour)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize Mongo event store")
		}
		eventStore = store
		logger.Info().Str("database", dbName).Msg("Using MongoDB event store")
	} else {
		eventStore = repository.NewMemoryEventStore(0)
		logger.Info().Msg("Using in-memory event store")
	}

	// Record cache: Redis when configured, in-memory otherwise
	var recordCache ports.RecordCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to parse REDIS_URL")
		}
		recordCache = cache.NewRedisRecordCache(redis.NewClient(opts), 0)
		logger.Info().Msg("Using Redis record cache")
	} else {
		recordCache = cache.NewMemoryRecordCache(0)
		logger.Info().Msg("Using in-memory record cache")
	}

	// Initialize repositories
	connections := repository.NewMemoryConnectionRegistry(logger)
	records := repository.NewMemoryRecordStore()

	// Initialize provider client with rate limiting and retry
	rateLimiter := provider.NewRateLimiter(logger)
	providerClient := provider.NewClient(provider.Config{
		BaseURL:   os.Getenv("FASTEN_API_BASE_URL"),
		APIKey:    os.Getenv("FASTEN_API_KEY"),
		APISecret: os.Getenv("FASTEN_API_SECRET"),
	}, rateLimiter, provider.DefaultRetryConfig(), logger)

	// Initialize application services
	monitor := application.NewTimeoutMonitor(application.TimeoutMonitorConfig{
		DefaultDeadline: durationEnv(logger, "EXPORT_TIMEOUT"),
		EpicDeadline:    durationEnv(logger, "EXPORT_TIMEOUT_EPIC"),
	}, providerClient, m, logger)

	trigger := application.NewExportTrigger(providerClient, connections, m, logger)

	ingestPubSub := pubsub.NewIngestPubSub(logger)

	pipeline := application.NewTransformPipeline(
		providerClient,
		records,
		recordCache,
		ingestPubSub,
		application.TransformPipelineConfig{},
		m,
		logger,
	)

	autoExport := os.Getenv("AUTO_EXPORT") != "false"

	// Initialize event dispatcher and register handlers
	dispatcher := application.NewEventDispatcher(eventStore, m, logger)
	dispatcher.RegisterHandler(event_handlers.NewConnectionSuccessHandler(connections, monitor, trigger, autoExport, logger))
	dispatcher.RegisterHandler(event_handlers.NewExportSuccessHandler(connections, monitor, pipeline, logger))
	dispatcher.RegisterHandler(event_handlers.NewExportFailedHandler(connections, monitor, logger))
	dispatcher.RegisterHandler(event_handlers.NewRevocationHandler(connections, records, recordCache, monitor, logger))
	dispatcher.RegisterHandler(event_handlers.NewTestEventHandler(logger))

	// Optional downstream sink relay
	if sinkURL := os.Getenv("SINK_URL"); sinkURL != "" {
		relay := application.NewSinkRelay(sink.NewHTTPSink(sinkURL, logger), records, m, logger)
		sub := ingestPubSub.Subscribe(context.Background(), nil)
		go relay.Run(context.Background(), sub.Notices)
		logger.Info().Str("sinkUrl", sinkURL).Msg("Sink relay started")
	}

	var verifier *provider.WebhookVerifier
	if secret := os.Getenv("WEBHOOK_SECRET"); secret != "" {
		verifier = provider.NewWebhookVerifier(secret)
	} else {
		logger.Warn().Msg("WEBHOOK_SECRET not set, webhook signatures will not be verified")
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	// Health check - must be public for monitoring
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Get("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP)

	// Webhook endpoint: POST /webhook/fasten
	r.Post("/webhook/fasten", webhookHandler(dispatcher, verifier, logger))

	// Connection state
	r.Get("/connections", connectionsHandler(connections, logger))
	r.Get("/connections/{connectionID}", connectionHandler(connections, logger))
	r.Post("/exports/{connectionID}/trigger", triggerHandler(trigger, logger))

	// Normalized records
	r.Get("/records", allRecordsHandler(records, recordCache, logger))
	r.Get("/records/{userID}", userRecordsHandler(records, recordCache, logger))
	r.Delete("/records", clearRecordsHandler(records, recordCache, logger))

	// Operational views
	r.Get("/monitor/report", monitorReportHandler(monitor))
	r.Get("/events/recent", recentEventsHandler(eventStore, logger))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Info().Str("port", port).Msg("Starting API server")
	if err := http.ListenAndServe(":"+port, r); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
}

// durationEnv parses an optional duration variable; zero means "use default".
func durationEnv(logger zerolog.Logger, name string) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		logger.Warn().Str("name", name).Str("value", raw).Msg("Invalid duration, using default")
		return 0
	}
	return d
}

// webhookHandler handles provider webhook requests. The boundary contract is
// "ack receipt": every outcome except a bad signature is acknowledged with
// 200 so the provider never retries events we have already recorded.
func webhookHandler(dispatcher *application.EventDispatcher, verifier *provider.WebhookVerifier, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to read webhook payload")
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		if verifier != nil {
			signature := r.Header.Get("Fasten-Signature")
			if err := verifier.Verify(payload, signature); err != nil {
				logger.Warn().Err(err).Msg("Webhook signature verification failed")
				http.Error(w, "Invalid signature", http.StatusUnauthorized)
				return
			}
		}

		event, err := domain.ParseWebhookEvent(payload)
		if err != nil {
			// Malformed body: acknowledged so the provider does not retry a
			// payload that will never parse.
			logger.Warn().Err(err).Msg("Unparseable webhook payload, acknowledged and dropped")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"received": "true"})
			return
		}

		if err := dispatcher.Dispatch(r.Context(), event); err != nil {
			logger.Error().Err(err).Str("type", event.Type).Msg("Failed to dispatch webhook event")
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"received": "true"})
	}
}

func connectionsHandler(registry ports.ConnectionRegistry, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := registry.All(r.Context())
		if err != nil {
			logger.Error().Err(err).Msg("Failed to list connections")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{
			"count":       len(all),
			"connections": all,
		})
	}
}

func connectionHandler(registry ports.ConnectionRegistry, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connectionID := chi.URLParam(r, "connectionID")

		conn, err := registry.Get(r.Context(), connectionID)
		if err != nil {
			logger.Error().Err(err).Str("connectionId", connectionID).Msg("Failed to read connection")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if conn == nil {
			http.Error(w, "Connection not found", http.StatusNotFound)
			return
		}

		export, err := registry.GetExport(r.Context(), connectionID)
		if err != nil {
			logger.Error().Err(err).Str("connectionId", connectionID).Msg("Failed to read export")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]interface{}{
			"connection": conn,
			"export":     export,
		})
	}
}

// triggerHandler manually requests an export for a connection.
func triggerHandler(trigger *application.ExportTrigger, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connectionID := chi.URLParam(r, "connectionID")

		task, err := trigger.Trigger(r.Context(), connectionID)
		switch {
		case errors.Is(err, domain.ErrConnectionNotFound):
			http.Error(w, "Connection not found", http.StatusNotFound)
			return
		case errors.Is(err, domain.ErrConnectionRevoked):
			http.Error(w, "Connection is revoked", http.StatusConflict)
			return
		case err != nil:
			logger.Error().Err(err).Str("connectionId", connectionID).Msg("Manual export trigger failed")
			http.Error(w, "Export trigger failed", http.StatusBadGateway)
			return
		case task == nil:
			// Skipped: another trigger in flight, or no provider credentials.
			http.Error(w, "Export trigger unavailable", http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, map[string]interface{}{
			"task_id": task.TaskID,
			"status":  task.Status,
		})
	}
}

func allRecordsHandler(records ports.RecordStore, recordCache ports.RecordCache, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveCachedRecords(w, r, recordCache, "records:all", logger, func(ctx context.Context) (interface{}, error) {
			all, err := records.AllRecords(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"count":   len(all),
				"records": all,
			}, nil
		})
	}
}

func userRecordsHandler(records ports.RecordStore, recordCache ports.RecordCache, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		serveCachedRecords(w, r, recordCache, "records:user:"+userID, logger, func(ctx context.Context) (interface{}, error) {
			userRecords, err := records.RecordsForUser(ctx, userID)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"user_id": userID,
				"count":   len(userRecords),
				"records": userRecords,
			}, nil
		})
	}
}

// serveCachedRecords memoizes an aggregate read under the record cache. Cache
// failures degrade to direct reads.
func serveCachedRecords(
	w http.ResponseWriter,
	r *http.Request,
	recordCache ports.RecordCache,
	key string,
	logger zerolog.Logger,
	load func(ctx context.Context) (interface{}, error),
) {
	if cached, ok, err := recordCache.Get(r.Context(), key); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Record cache read failed")
	} else if ok {
		w.Header().Set("Content-Type", "application/json")
		w.Write(cached)
		return
	}

	payload, err := load(r.Context())
	if err != nil {
		logger.Error().Err(err).Str("key", key).Msg("Failed to read records")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode records")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err := recordCache.Set(r.Context(), key, body); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Record cache write failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func clearRecordsHandler(records ports.RecordStore, recordCache ports.RecordCache, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := records.Clear(r.Context()); err != nil {
			logger.Error().Err(err).Msg("Failed to clear records")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if err := recordCache.Clear(r.Context()); err != nil {
			logger.Warn().Err(err).Msg("Failed to clear record cache")
		}
		writeJSON(w, map[string]string{"status": "cleared"})
	}
}

func monitorReportHandler(monitor *application.TimeoutMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"stats":       monitor.Stats(),
			"diagnostics": monitor.Report(),
		})
	}
}

func recentEventsHandler(store ports.EventStore, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		events, err := store.Recent(r.Context(), limit)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to list recent events")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{
			"count":  len(events),
			"events": events,
		})
	}
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
