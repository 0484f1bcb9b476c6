package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"app/internal/util"

	"github.com/joho/godotenv"
)

// Mints a bearer token for the admin API. Run by operators; there is
// no self-service admin login.
func main() {
	email := flag.String("email", "", "administrator email to embed in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "usage: admintoken -email admin@example.com [-ttl 24h]")
		os.Exit(2)
	}

	_ = godotenv.Load()
	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "ADMIN_JWT_SECRET is not set")
		os.Exit(1)
	}

	token, err := util.GenerateAdminToken(*email, secret, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
