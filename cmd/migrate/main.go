package main

import (
	"context" // Repository calls
	"flag"    // Command line flags
	"fmt"     // Printing the admin token

	"vps_billing/internal/config" // Custom import path (Config)
	"vps_billing/internal/db"     // Custom import path (Database)
	"vps_billing/internal/domain" // Domain models
	"vps_billing/internal/utils"  // Token generation

	"github.com/sirupsen/logrus" // Logrus for structured logging
)

// Main entry point for migration
func main() {
	seedAdmin := flag.String("seed-admin", "", "create an admin user with this username and print a bearer token")
	email := flag.String("email", "", "email of the seeded admin")
	flag.Parse()

	cfg := config.LoadConfig() // Load configuration
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	gdb, err := db.Open(cfg.DSN()) // Connect to MySQL
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		logrus.Fatalf("migration failed: %v", err)
	}
	logrus.Info("Migration completed")

	if *seedAdmin == "" {
		return
	}
	admin := &domain.User{Username: *seedAdmin, Email: *email, Role: domain.RoleAdmin}
	if err := db.NewUserRepository(gdb).Create(context.Background(), admin); err != nil {
		logrus.Fatalf("failed to create admin: %v", err)
	}
	token, err := utils.GenerateJWT(admin.ID, admin.Role, cfg.JWTSecret, utils.DefaultTokenTTL)
	if err != nil {
		logrus.Fatalf("failed to sign token: %v", err)
	}
	logrus.WithFields(logrus.Fields{"user_id": admin.ID, "username": admin.Username}).Info("Admin created")
	fmt.Println(token) // Bearer token for the operations API
}
