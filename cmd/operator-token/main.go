// Command operator-token mints a signed operator JWT for the admin API.
//
// Usage:
//
//	operator-token -operator ops-1 -roles payments_admin,viewer -ttl 24h
//
// The signing secret comes from JWT_SECRET, matching the running server.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/vietcart/payment-backend/pkg/jwt"
)

func main() {
	operator := flag.String("operator", "", "operator identifier (required)")
	roles := flag.String("roles", "payments_admin", "comma-separated roles")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *operator == "" {
		fmt.Fprintln(os.Stderr, "error: -operator is required")
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "error: JWT_SECRET is not set")
		os.Exit(1)
	}

	service := jwt.NewService(secret, *ttl)
	token, err := service.GenerateToken(*operator, strings.Split(*roles, ","))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
