// Command issue-token signs a party token for local use against the
// registry API, or hashes an arbitrator callback secret.
//
//	issue-token -address 0x00000000000000000000000000000000000a11ce -ttl 1h
//	issue-token -hash-arbitrator-token s3cret
//
// Signing settings come from the same TCR_* configuration as the server.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "tcr/internal/jwt_token"
	"tcr/internal/platform/config"
	id "tcr/pkg/domain"
	arbmw "tcr/pkg/platform/middleware/arbitrator"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "issue-token:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	address := fs.String("address", "", "party address the token is issued to")
	ttl := fs.Duration("ttl", 0, "token lifetime (default auth.token_ttl)")
	secret := fs.String("hash-arbitrator-token", "", "print the bcrypt hash of an arbitrator callback token and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *secret != "" {
		hash, err := arbmw.HashToken(*secret)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	addr, err := id.ParseAddress(*address)
	if err != nil {
		return fmt.Errorf("-address: %w", err)
	}
	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = cfg.Auth.TokenTTL
	}
	if lifetime <= 0 {
		lifetime = time.Hour
	}

	svc := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	token, err := svc.GenerateAccessToken(addr, lifetime)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
