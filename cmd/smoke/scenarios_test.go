package main

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aibom-registry/aibom-registry/internal/api"
	"github.com/aibom-registry/aibom-registry/internal/auth"
	"github.com/aibom-registry/aibom-registry/internal/config"
	"github.com/aibom-registry/aibom-registry/internal/registry"
)

const testSecret = "smoke-test-jwt-secret-that-is-32-chars"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Setenv("AIBOM_JWT_SECRET", testSecret)
	os.Exit(m.Run())
}

func TestScenariosPassAgainstRegistry(t *testing.T) {
	ids := identities{
		principal: "0x00000000000000000000000000000000000000aa",
		developer: "0x00000000000000000000000000000000000000d1",
		attacker:  "0x00000000000000000000000000000000000000be",
	}

	resolver, err := registry.NewResolver(ids.principal, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(registry.NewMemoryStore(), resolver, registry.WithLogger(logger))
	srv := httptest.NewServer(api.NewRouter(api.Dependencies{
		Config:   &config.Config{},
		Registry: reg,
		Logger:   logger,
	}))
	defer srv.Close()

	tokens := make(map[string]string)
	for _, id := range []string{ids.principal, ids.developer, ids.attacker} {
		tok, err := auth.GenerateJWTWithSecret(id, time.Minute, testSecret)
		if err != nil {
			t.Fatal(err)
		}
		tokens[id] = tok
	}

	c := newClient(srv.URL, tokens)
	ctx := context.Background()
	if err := c.ready(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}

	r := &runner{client: c, ids: ids, logger: logger}
	r.run(ctx)

	if r.failed != 0 {
		t.Fatalf("%d checks failed", r.failed)
	}
	if r.passed < 15 {
		t.Errorf("only %d checks ran", r.passed)
	}
}
