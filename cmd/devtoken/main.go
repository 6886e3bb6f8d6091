// Command devtoken mints credentials for local development.
//
// The API only verifies tokens; in production an identity provider issues
// them. Locally, sign one with the same JWT_SECRET the server uses:
//
//	go run ./cmd/devtoken -user teacher-1
//	curl -H "Authorization: Bearer $(go run ./cmd/devtoken -user teacher-1)" localhost:8080/api/v1/users/me
//
// It also produces the TEACHER_ENROLLMENT_CODE_HASH value:
//
//	go run ./cmd/devtoken -hash-code 'our-school-2026'
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sakif/brightminds/internal/auth"
	"github.com/sakif/brightminds/internal/config"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "devtoken:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("devtoken", flag.ContinueOnError)
	userID := fs.String("user", "", "user id to put in the token subject")
	ttl := fs.Duration("ttl", auth.DefaultTTL, "token lifetime")
	hashCode := fs.String("hash-code", "", "print the bcrypt hash of a teacher enrollment code and exit")
	cost := fs.Int("cost", auth.DefaultCost, "bcrypt cost for -hash-code")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *hashCode != "" {
		h, err := auth.HashCode(*hashCode, *cost)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, h)
		return err
	}

	if *userID == "" {
		return errors.New("-user is required")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return err
	}
	token, err := tokens.Generate(*userID, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
