package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	_ "github.com/Eissaali11/nuzum-edut-sub003/docs"
	"github.com/Eissaali11/nuzum-edut-sub003/internal/config"
	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
	"github.com/Eissaali11/nuzum-edut-sub003/internal/server"
)

// @title Nuzum API
// @version 1.0
// @description Workforce presence and fleet administration API

// @host localhost:3000
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	log.Println("[API] Starting Nuzum API Server...")

	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("[API] Failed to connect to database: %v", err)
	}
	log.Println("[API] Connected to database")

	if err := autoMigrate(db); err != nil {
		log.Fatalf("[API] Failed to migrate database: %v", err)
	}
	log.Println("[API] Database migrated")

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
		DB:   0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("[API] Failed to connect to Redis: %v", err)
	}
	log.Println("[API] Connected to Redis")
	defer redisClient.Close()

	natsConn, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		log.Fatalf("[API] Failed to connect to NATS: %v", err)
	}
	log.Println("[API] Connected to NATS")
	defer natsConn.Close()

	srv := server.NewServer(cfg, db, redisClient, natsConn)
	if err := srv.Setup(); err != nil {
		log.Fatalf("[API] Failed to set up server: %v", err)
	}

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	go func() {
		if err := srv.Run(addr); err != nil {
			log.Fatalf("[API] Failed to start server: %v", err)
		}
	}()

	log.Printf("[API] Server ready on %s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Println("[API] Shutting down...")

	srv.Shutdown()
	log.Println("[API] Server stopped")
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Employee{},
		&model.Department{},
		&model.EmployeeDepartment{},
		&model.Zone{},
		&model.EmployeeZone{},
		&model.LocationSample{},
		&model.GeofenceEvent{},
		&model.GeofenceSession{},
		&model.GeofenceAttendance{},
		&model.Vehicle{},
		&model.HandoverRecord{},
		&model.WorkshopRecord{},
		&model.AccidentRecord{},
		&model.RentalRecord{},
		&model.OperationRequest{},
		&model.Notification{},
		&model.AuditRecord{},
	)
}
