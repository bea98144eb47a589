package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-booking/internal/analytics"
	analytics_api "ms-booking/internal/analytics/api"
	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/booking/api"
	bookingdb "ms-booking/internal/booking/db"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/gateway"
	"ms-booking/internal/hold"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/pass"
	"ms-booking/internal/recon"
	"ms-booking/internal/settlement"
)

// subscribeHoldExpiry reacts to expired date holds. An expired hold on a
// booking that is still awaiting manual payment cancels the booking and
// frees the date; a hold on a live paid booking is re-taken so the slot
// stays blocked until the booking resolves.
func subscribeHoldExpiry(rdb *redis.Client, store *bookingdb.DB, dateHold *hold.DateHold, producer *kafka.Producer, log *logger.Logger) {
	ctx := context.Background()

	val, err := rdb.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err != nil {
		log.Error("REDIS", fmt.Sprintf("Failed to get keyspace config: %v", err))
	} else {
		log.Info("REDIS", fmt.Sprintf("Current keyspace notifications setting: %v", val))
	}

	pubsub := rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	log.Info("REDIS", "Subscribed to Redis keyevent expired notifications")

	go func() {
		for msg := range pubsub.Channel() {
			if !strings.HasPrefix(msg.Payload, "date_hold:") {
				continue
			}
			parts := strings.SplitN(strings.TrimPrefix(msg.Payload, "date_hold:"), ":", 2)
			if len(parts) != 2 {
				continue
			}
			productID, date := parts[0], parts[1]
			log.Info("HOLD_EXPIRY", fmt.Sprintf("Date hold expired for product %s on %s", productID, date))

			b, err := store.GetActiveBookingForDate(ctx, productID, date)
			if err != nil {
				// nothing is holding this slot anymore
				continue
			}

			switch b.Status {
			case models.StatusPendingPayment:
				// the bank transfer never arrived inside the window
				moved, err := store.UpdateStatus(ctx, b.ID, models.StatusCancelled.TransitionSources(), models.StatusCancelled)
				if err != nil {
					log.Error("HOLD_EXPIRY", fmt.Sprintf("Failed to cancel unpaid booking %s: %v", b.ID, err))
					continue
				}
				if moved {
					log.LogBooking("EXPIRED", b.ID, "cancelled: payment window lapsed")
					b.Status = models.StatusCancelled
					if err := producer.PublishStatusChanged(*b); err != nil {
						log.Warn("KAFKA", fmt.Sprintf("publish status change failed for %s: %v", b.ID, err))
					}
				}
			default:
				// paid or approved booking: keep the slot blocked
				if _, err := dateHold.Acquire(ctx, productID, date, b.ID); err != nil {
					log.Error("HOLD_EXPIRY", fmt.Sprintf("Failed to re-take hold for booking %s: %v", b.ID, err))
				}
			}
		}
	}()
}

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}

	if _, err := redisClient.ConfigSet(ctx, "notify-keyspace-events", "Ex").Result(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
	} else {
		log.Info("REDIS", "Keyspace notifications enabled for expired events")
	}

	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))
	return bunDB, redisClient
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	log.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	if cfg.Database.MigrationsDir != "" {
		runner := migrations.NewRunner(bunDB, cfg.Database.MigrationsDir)
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		defer runner.Close()
		log.Info("DATABASE", "✅ Schema migrations applied")
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		log.Info("KAFKA", fmt.Sprintf("Using Kafka brokers: %v", cfg.Kafka.Brokers))
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		defer producer.Close()

		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, cfg.Kafka.Topics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, events will not be published")
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
	}

	store := &bookingdb.DB{Bun: bunDB}
	dateHold := hold.NewDateHold(redisClient, cfg.Hold.TTL)
	gatewayClient := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.PG, cfg.Gateway.Timeout, log)
	passIssuer := pass.NewIssuer(redisClient, cfg.Pass.Secret, cfg.Pass.TTL)

	reconStore, err := recon.NewStoreWithDB(bunDB.DB, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to initialize reconciliation storage: %v", err))
	}

	bookingService := booking.NewService(store, dateHold, gatewayClient, producer, reconStore, passIssuer, log)
	settlementService := settlement.NewService(store, producer, log)
	analyticsService := analytics.NewService(bunDB)

	handler := api.NewHandler(bookingService, settlementService, reconStore, log)
	analyticsHandler := analytics_api.NewHandler(analyticsService, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		log.Info("AUTH", "JWT middleware applied to protected API routes")

		handler.RegisterRoutes(r)
		log.Info("ROUTER", "Booking routes registered under /api/bookings")

		analyticsHandler.RegisterRoutes(r)
		log.Info("ROUTER", "Analytics routes registered under /api/bookings/analytics")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Info("REDIS", "Starting date hold expiry subscription")
	subscribeHoldExpiry(redisClient, store, dateHold, producer, log)

	if cfg.Kafka.Enabled && cfg.Settlement.AutoSettle {
		log.Info("SETTLEMENT", "Auto-settlement worker enabled")
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.SettlementRequested, cfg.Kafka.GroupID)
		defer consumer.Close()

		system := auth.CallerContext{ID: "system-auto-settle", Email: "system@booking", Role: auth.RoleAdmin}
		go consumer.Start(func(b models.Booking) {
			if _, err := settlementService.Settle(context.Background(), system, b.ID, 0); err != nil {
				log.Warn("SETTLEMENT", fmt.Sprintf("auto-settle of %s skipped: %v", b.ID, err))
			}
		})
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Booking Service shutdown complete")
	}
}
