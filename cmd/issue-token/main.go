// Command issue-token mints an operator bearer token signed with JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/example/order-saga/internal/auth"
)

func main() {
	subject := flag.String("subject", "operator", "token subject")
	role := flag.String("role", auth.RoleAdmin, "role claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if len(secret) < 32 {
		fmt.Fprintln(os.Stderr, "issue-token: JWT_SECRET must be at least 32 characters long")
		os.Exit(1)
	}

	token, expiresAt, err := auth.NewJWTService(secret, *ttl).GenerateToken(*subject, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue-token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintln(os.Stderr, "expires", expiresAt.Format(time.RFC3339))
}
