package testutil

import (
	"testing"
)

const (
	testDBDefaultUser     = "evalplan"
	testDBDefaultPassword = "evalplan"
	testDBDefaultName     = "evalplan"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "")
	t.Setenv("TEST_DB_PORT", "")
	t.Setenv("TEST_DB_USER", "")
	t.Setenv("TEST_DB_PASSWORD", "")
	t.Setenv("TEST_DB_NAME", "")

	cfg := DefaultTestDBConfig()
	if cfg.Host != "localhost" {
		t.Errorf("expected host localhost, got %s", cfg.Host)
	}
	if cfg.Port != "55432" {
		t.Errorf("expected port 55432, got %s", cfg.Port)
	}
	if cfg.User != testDBDefaultUser {
		t.Errorf("expected user %s, got %s", testDBDefaultUser, cfg.User)
	}
	if cfg.Password != testDBDefaultPassword {
		t.Errorf("expected password %s, got %s", testDBDefaultPassword, cfg.Password)
	}
	if cfg.DBName != testDBDefaultName {
		t.Errorf("expected db name %s, got %s", testDBDefaultName, cfg.DBName)
	}
}

func TestDefaultTestDBConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "db.internal")
	t.Setenv("TEST_DB_PORT", "5432")
	t.Setenv("TEST_DB_USER", "ci")
	t.Setenv("TEST_DB_PASSWORD", "secret")
	t.Setenv("TEST_DB_NAME", "evalplan_test")

	cfg := DefaultTestDBConfig()
	if cfg.Host != "db.internal" {
		t.Errorf("expected host db.internal, got %s", cfg.Host)
	}
	if cfg.Port != "5432" {
		t.Errorf("expected port 5432, got %s", cfg.Port)
	}
	if cfg.User != "ci" {
		t.Errorf("expected user ci, got %s", cfg.User)
	}
	if cfg.Password != "secret" {
		t.Errorf("expected password secret, got %s", cfg.Password)
	}
	if cfg.DBName != "evalplan_test" {
		t.Errorf("expected db name evalplan_test, got %s", cfg.DBName)
	}
}

func TestJobRequestBuilder(t *testing.T) {
	req := NewJobRequest().Build()
	if err := req.Validate(); err != nil {
		t.Fatalf("default builder request should validate: %v", err)
	}

	custom := NewJobRequest().WithUserPrompt("Outline a logic model.").Build()
	if err := custom.Validate(); err != nil {
		t.Fatalf("custom builder request should validate: %v", err)
	}
}
