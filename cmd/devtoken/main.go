// Command devtoken mints a bearer token signed with the configured JWT
// secret, for local runs against the in-memory store.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pesio-ai/be-visitor-gatepass/internal/auth"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/config"
)

func main() {
	userID := flag.String("user", "", "user id (token subject)")
	role := flag.String("role", auth.RoleApprover, "Admin, Receptionist or Approver")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}
	switch *role {
	case auth.RoleAdmin, auth.RoleReceptionist, auth.RoleApprover:
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	token, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer).
		Issue(auth.Actor{UserID: *userID, Role: *role}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
