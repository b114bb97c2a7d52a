package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"binance-futures-trader/config"
	"binance-futures-trader/internal/auth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.AuthConfig.JWTSecret == "" {
		fmt.Println("AUTH_JWT_SECRET is not set")
		os.Exit(1)
	}
	manager := auth.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.Issuer)

	fmt.Println("========================================")
	fmt.Println(" API Token Administration Tool")
	fmt.Println("========================================")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Println("\nOptions:")
		fmt.Println("  1. Generate operator token")
		fmt.Println("  2. Validate a token")
		fmt.Println("  3. Exit")
		fmt.Print("\nSelect option: ")

		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		switch input {
		case "1":
			generateToken(reader, manager)
		case "2":
			validateToken(reader, manager)
		case "3":
			fmt.Println("Goodbye!")
			os.Exit(0)
		default:
			fmt.Println("Invalid option")
		}
	}
}

func generateToken(reader *bufio.Reader, manager *auth.JWTManager) {
	fmt.Println("\n--- Generate Operator Token ---")
	fmt.Print("Subject (operator name): ")
	subject, _ := reader.ReadString('\n')
	subject = strings.TrimSpace(subject)
	if subject == "" {
		fmt.Println("Subject is required")
		return
	}

	fmt.Print("Valid for (e.g. 24h, 720h) [24h]: ")
	ttlInput, _ := reader.ReadString('\n')
	ttlInput = strings.TrimSpace(ttlInput)
	if ttlInput == "" {
		ttlInput = "24h"
	}
	ttl, err := time.ParseDuration(ttlInput)
	if err != nil || ttl <= 0 {
		fmt.Println("Invalid duration")
		return
	}

	token, err := manager.GenerateToken(subject, ttl)
	if err != nil {
		fmt.Printf("Failed to generate token: %v\n", err)
		return
	}

	fmt.Println("\n========================================")
	fmt.Printf("  Subject:  %s\n", subject)
	fmt.Printf("  Expires:  %s\n", time.Now().Add(ttl).Format("2006-01-02 15:04:05"))
	fmt.Printf("  Token:    %s\n", token)
	fmt.Println("========================================")
}

func validateToken(reader *bufio.Reader, manager *auth.JWTManager) {
	fmt.Println("\n--- Validate Token ---")
	fmt.Print("Enter token: ")

	token, _ := reader.ReadString('\n')
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))

	claims, err := manager.ValidateToken(token)

	fmt.Println("\n========================================")
	if err != nil {
		fmt.Printf("  Status:  INVALID\n")
		fmt.Printf("  Error:   %s\n", err)
	} else {
		fmt.Printf("  Status:  VALID\n")
		fmt.Printf("  Subject: %s\n", claims.Subject)
		if claims.ExpiresAt != nil {
			fmt.Printf("  Expires: %s\n", claims.ExpiresAt.Time.Format("2006-01-02 15:04:05"))
		}
	}
	fmt.Println("========================================")
}
