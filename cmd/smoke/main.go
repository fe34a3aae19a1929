// Package main is a post-deployment smoke test for a running registry. It
// mints JWTs for the principal, a developer and an attacker with the shared
// signing secret, then drives the review workflow end to end: registration
// and owner-only submission, review decisions, and principal-only
// vulnerability reports. It exits non-zero when any check fails, so it can
// gate a deployment pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aibom-registry/aibom-registry/internal/auth"
	"github.com/aibom-registry/aibom-registry/internal/registry"
	"github.com/aibom-registry/aibom-registry/internal/telemetry"
)

const programName = "smoke"

var flags = struct {
	baseURL   string
	secret    string
	principal string
	developer string
	attacker  string
	timeout   time.Duration
	logFormat string
}{}

func main() {
	root := &cobra.Command{
		Use:   programName,
		Short: "Run the review workflow scenarios against a live registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
		SilenceUsage: true,
	}
	root.Flags().StringVar(&flags.baseURL, "url", "http://localhost:8080", "registry base URL")
	root.Flags().StringVar(&flags.secret, "secret", os.Getenv("AIBOM_JWT_SECRET"), "JWT signing secret shared with the server")
	root.Flags().StringVar(&flags.principal, "principal", os.Getenv("AIBOM_REGISTRY_PRINCIPAL"), "the server's registry.principal")
	root.Flags().StringVar(&flags.developer, "developer", "0x00000000000000000000000000000000000000d1", "identity that registers and submits")
	root.Flags().StringVar(&flags.attacker, "attacker", "0x00000000000000000000000000000000000000be", "identity with no rights on the record")
	root.Flags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "overall deadline")
	root.Flags().StringVar(&flags.logFormat, "log-format", "text", "log format (text or json)")

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger := telemetry.NewLogger(os.Stderr, flags.logFormat, "info").With("component", programName)

	if flags.secret == "" {
		return fmt.Errorf("no JWT secret: pass --secret or set AIBOM_JWT_SECRET")
	}
	if flags.principal == "" {
		return fmt.Errorf("no principal: pass --principal or set AIBOM_REGISTRY_PRINCIPAL")
	}

	ctx, cancel := context.WithTimeout(ctx, flags.timeout)
	defer cancel()

	ids := identities{
		principal: registry.NormalizeIdentity(flags.principal),
		developer: registry.NormalizeIdentity(flags.developer),
		attacker:  registry.NormalizeIdentity(flags.attacker),
	}
	tokens := make(map[string]string, 3)
	for _, id := range []string{ids.principal, ids.developer, ids.attacker} {
		tok, err := auth.GenerateJWTWithSecret(id, flags.timeout+time.Minute, flags.secret)
		if err != nil {
			return fmt.Errorf("failed to mint JWT for %s: %w", id, err)
		}
		tokens[id] = tok
	}

	c := newClient(flags.baseURL, tokens)
	if err := c.ready(ctx); err != nil {
		return err
	}

	r := &runner{client: c, ids: ids, logger: logger}
	r.run(ctx)

	logger.Info("smoke test finished", "passed", r.passed, "failed", r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

// identities are the three callers the scenarios act as
type identities struct {
	principal string
	developer string
	attacker  string
}
