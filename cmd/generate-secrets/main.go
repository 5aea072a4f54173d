package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/utils"
	"github.com/Peeyushmeher/cleanswift-web-sub000/pkg/jwt"
	"github.com/google/uuid"
)

func main() {
	var (
		adminUser string
		issuer    string
		expiry    time.Duration
	)
	flag.StringVar(&adminUser, "admin-user", "", "also mint an admin access token for this user id")
	flag.StringVar(&issuer, "issuer", "cleanswift", "token issuer (JWT_ISSUER)")
	flag.DurationVar(&expiry, "expiry", time.Hour, "admin token lifetime")
	flag.Parse()

	fmt.Println("===========================================")
	fmt.Println("JWT Secret Generator for CleanSwift")
	fmt.Println("===========================================")
	fmt.Println()

	secret, err := utils.GenerateSecret(64)
	if err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}

	fmt.Println("Add this to your .env file:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secret)
	fmt.Println()

	if adminUser != "" {
		userID, err := uuid.Parse(adminUser)
		if err != nil {
			log.Fatalf("Invalid -admin-user: %v", err)
		}
		token, err := jwt.NewService(secret, issuer, expiry).GenerateAccessToken(userID, "", []string{jwt.RoleAdmin})
		if err != nil {
			log.Fatalf("Failed to mint admin token: %v", err)
		}
		fmt.Printf("Admin access token (valid %s, signed with the secret above):\n\n%s\n\n", expiry, token)
	}

	fmt.Println("IMPORTANT: Keep these secrets safe and never commit them to version control!")
	fmt.Println("===========================================")
}
