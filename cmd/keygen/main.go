// Package main generates credentials for the registry without a running
// server. It prints a new API key with its bcrypt hash and display prefix,
// ready to paste into auth.api_keys.static or insert into the api_keys table,
// and can mint a registry JWT for an identity. The raw key is shown once and
// is never stored anywhere by this tool.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aibom-registry/aibom-registry/internal/auth"
	"github.com/aibom-registry/aibom-registry/internal/registry"
)

const programName = "keygen"

var flags = struct {
	prefix   string
	identity string
	name     string
	jwt      bool
	ttl      time.Duration
	secret   string
}{}

func main() {
	root := &cobra.Command{
		Use:   programName,
		Short: "Generate an API key and optionally a JWT for a registry identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd)
		},
		SilenceUsage: true,
	}
	root.Flags().StringVar(&flags.prefix, "prefix", "aibom", "API key prefix (auth.api_keys.prefix)")
	root.Flags().StringVar(&flags.identity, "identity", "", "identity the key or token is bound to")
	root.Flags().StringVar(&flags.name, "name", "keygen", "human-readable key name")
	root.Flags().BoolVar(&flags.jwt, "jwt", false, "also mint a JWT for --identity")
	root.Flags().DurationVar(&flags.ttl, "ttl", time.Hour, "JWT lifetime")
	root.Flags().StringVar(&flags.secret, "secret", "", "JWT signing secret (default: $AIBOM_JWT_SECRET)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	identity := registry.NormalizeIdentity(flags.identity)

	key, hash, displayPrefix, err := auth.GenerateAPIKey(flags.prefix)
	if err != nil {
		return fmt.Errorf("failed to generate API key: %w", err)
	}

	fmt.Fprintf(out, "API key:        %s\n", key)
	fmt.Fprintf(out, "Bcrypt hash:    %s\n", hash)
	fmt.Fprintf(out, "Display prefix: %s\n", displayPrefix)

	bound := identity
	if bound == "" {
		bound = "<identity>"
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Static config entry (auth.api_keys.static):")
	fmt.Fprintf(out, "  - identity: %q\n", bound)
	fmt.Fprintf(out, "    name: %q\n", flags.name)
	fmt.Fprintf(out, "    key_hash: %q\n", hash)
	fmt.Fprintf(out, "    key_prefix: %q\n", displayPrefix)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "SQL (postgres store):")
	fmt.Fprintf(out, "  INSERT INTO api_keys (id, identity, name, key_hash, key_prefix, created_by, created_at)\n")
	fmt.Fprintf(out, "  VALUES (gen_random_uuid(), '%s', '%s', '%s', '%s', '%s', now());\n",
		bound, flags.name, hash, displayPrefix, programName)

	if !flags.jwt {
		return nil
	}
	if identity == "" {
		return fmt.Errorf("--identity is required with --jwt")
	}
	secret := flags.secret
	if secret == "" {
		secret = os.Getenv("AIBOM_JWT_SECRET")
	}
	if secret == "" {
		return fmt.Errorf("no JWT secret: pass --secret or set AIBOM_JWT_SECRET")
	}
	token, err := auth.GenerateJWTWithSecret(identity, flags.ttl, secret)
	if err != nil {
		return fmt.Errorf("failed to mint JWT: %w", err)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "JWT for %s (expires in %s):\n%s\n", identity, flags.ttl, token)
	return nil
}
