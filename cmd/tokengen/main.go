// Command tokengen issues dashboard tokens for local development.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"callcenter/internal/auth"
	"callcenter/internal/config"
	"callcenter/internal/rbac"
)

func main() {
	userID := flag.Int64("user", 0, "dashboard user id (employee id for role employee)")
	role := flag.String("role", rbac.RoleEmployee, "role: admin or employee")
	ttl := flag.Duration("ttl", time.Hour, "access token lifetime")
	flag.Parse()

	if *userID <= 0 {
		fmt.Fprintln(os.Stderr, "-user must be a positive id")
		os.Exit(2)
	}
	if *role != rbac.RoleAdmin && *role != rbac.RoleEmployee {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTIssuer:      os.Getenv("JWT_ISSUER"),
		JWTAudience:    os.Getenv("JWT_AUDIENCE"),
		AccessTokenTTL: *ttl,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	tok, err := m.IssueAccess(time.Now(), *userID, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
