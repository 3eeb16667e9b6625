package main

import (
	"context"
	"flag"
	"fmt"

	"sentinel-edge/app"
	"sentinel-edge/config"
	"sentinel-edge/logger"
	"sentinel-edge/models"
	"sentinel-edge/repository"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	email := flag.String("email", "test@example.com", "user email")
	password := flag.String("password", "testpassword123", "user password")
	name := flag.String("name", "Test User", "display name")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		logger.Log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	pool, err := app.InitPostgres(ctx, cfg.Database.URL)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		logger.Log.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{
		Email:        *email,
		PasswordHash: string(hashedPassword),
		Name:         *name,
	}
	if err := repository.NewUserRepository(pool).Create(ctx, user); err != nil {
		logger.Log.Fatalf("Failed to create user: %v", err)
	}

	fmt.Printf("Test user ready\n")
	fmt.Printf("   ID: %s\n", user.ID)
	fmt.Printf("   Email: %s\n", user.Email)
	fmt.Printf("   Password: %s\n", *password)
	fmt.Printf("   Name: %s\n", user.Name)
}
