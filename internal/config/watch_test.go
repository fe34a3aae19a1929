package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/aibom-registry/aibom-registry/internal/registry"
)

func TestWatch_RequiresConfigFile(t *testing.T) {
	if _, err := Watch("/nonexistent/aibom/config.yaml", nil, func(*Config) {}); err == nil {
		t.Error("Watch() expected error without a config file, got nil")
	}
}

func TestWatch_DeliversValidChanges(t *testing.T) {
	path := writeTempConfig(t, "registry:\n  principal: \"0xaa\"\n")

	changes := make(chan *Config, 4)
	if _, err := Watch(path, slog.Default(), func(c *Config) { changes <- c }); err != nil {
		t.Fatalf("Watch() error: %v", err)
	}

	updated := "registry:\n  principal: \"0xaa\"\n  bindings:\n    \"0xd1\": [regulator]\n"
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if len(c.Registry.Bindings) == 1 {
				return
			}
		case <-deadline:
			t.Fatal("no config change delivered")
		}
	}
}

func TestReloadBindings(t *testing.T) {
	current := &Config{Registry: RegistryConfig{Principal: "0xaa"}}
	res, err := current.Registry.NewResolver()
	if err != nil {
		t.Fatal(err)
	}
	apply := ReloadBindings(current, res, slog.Default())

	apply(&Config{Registry: RegistryConfig{
		Principal: "0xbb",
		Bindings:  map[string][]string{"0xd1": {"supervisor"}},
	}})
	if !res.Can("0xd1", registry.PermReportVulnerability) {
		t.Error("binding not applied")
	}
	if !res.IsPrincipal("0xaa") {
		t.Error("principal changed at runtime")
	}

	// A broken table leaves the previous bindings in place
	apply(&Config{Registry: RegistryConfig{
		Principal: "0xaa",
		Bindings:  map[string][]string{"0xd1": {"nope"}},
	}})
	if !res.Can("0xd1", registry.PermReportVulnerability) {
		t.Error("invalid reload replaced bindings")
	}
}
