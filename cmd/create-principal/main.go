package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/settlement/internal/config"
	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/internal/repository/postgres"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 5 {
		fmt.Println("Usage: go run cmd/create-principal/main.go <role> <name> <email> <api-key>")
		fmt.Println("Example: go run cmd/create-principal/main.go seller \"Clay Studio\" studio@example.com \"studio-api-key-12345\"")
		os.Exit(1)
	}

	role := domain.Role(os.Args[1])
	name := os.Args[2]
	email := os.Args[3]
	apiKey := os.Args[4]

	if !role.IsValid() {
		fmt.Fprintf(os.Stderr, "Unknown role %q (expected buyer, seller or admin)\n", role)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	apiKeyHash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash API key: %v\n", err)
		os.Exit(1)
	}

	repos := postgres.NewRepositories(db, logger)

	principal := &domain.Principal{
		Name:       name,
		Email:      email,
		Role:       role,
		APIKeyHash: string(apiKeyHash),
		IsActive:   true,
	}

	if err := repos.Principal.Create(context.Background(), principal); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create principal: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Principal created\n\n")
	fmt.Printf("ID:    %s\n", principal.ID.String())
	fmt.Printf("Role:  %s\n", principal.Role)
	fmt.Printf("Name:  %s\n", principal.Name)
	fmt.Printf("Email: %s\n", principal.Email)
	fmt.Printf("\nThe API key is stored hashed and cannot be shown again.\n")
	fmt.Printf("Authorization: Bearer %s\n", apiKey)
}
