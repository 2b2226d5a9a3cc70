package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/nonvi/booking-core/internal/utils"
	"github.com/nonvi/booking-core/pkg/jwt"
)

// Generates JWT_SECRET, or with -token mints an access token for local testing
// against the secret in the environment.
func main() {
	var (
		mintToken = flag.Bool("token", false, "mint a development access token using JWT_SECRET")
		userID    = flag.String("user", "", "user id for the token (random when empty)")
		phone     = flag.String("phone", "0197000000", "phone claim")
		name      = flag.String("name", "Dev User", "name claim")
		roles     = flag.String("roles", "passenger", "comma separated roles: passenger,staff,conductor,admin")
		expiry    = flag.Duration("expiry", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	if !*mintToken {
		generateSecret()
		return
	}

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "nonvi-auth"
	}

	id := uuid.New()
	if *userID != "" {
		parsed, err := uuid.Parse(*userID)
		if err != nil {
			log.Fatalf("invalid -user: %v", err)
		}
		id = parsed
	}

	service := jwt.NewService(secret, issuer, *expiry)
	token, err := service.GenerateAccessToken(id, *phone, *name, strings.Split(*roles, ","))
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}

	fmt.Printf("user_id: %s\n", id)
	fmt.Printf("Authorization: Bearer %s\n", token)
}

func generateSecret() {
	fmt.Println("===========================================")
	fmt.Println("JWT Secret Generator")
	fmt.Println("===========================================")
	fmt.Println()

	secret, err := utils.GenerateJWTSecret()
	if err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}

	fmt.Println("Add this to your .env file (it must match the auth service):")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secret)
	fmt.Println()
	fmt.Println("Keep this secret safe and never commit it to version control.")
	fmt.Println("===========================================")
}
