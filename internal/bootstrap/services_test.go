package bootstrap

import (
	"testing"

	"github.com/planlab/evalplan-api/config"
)

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 0,
		},
		{
			name:  "http only",
			modes: []config.ServiceMode{config.ServiceModeHTTP},
			want:  1,
		},
		{
			name:  "worker and sweeper",
			modes: []config.ServiceMode{config.ServiceModeWorker, config.ServiceModeSweeper},
			want:  2,
		},
		{
			name: "all services enabled",
			modes: []config.ServiceMode{
				config.ServiceModeHTTP,
				config.ServiceModeWorker,
				config.ServiceModeSweeper,
			},
			want: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelCapacity(enabled); got != tt.want {
				t.Fatalf("errorChannelCapacity(%v) = %d, want %d", tt.modes, got, tt.want)
			}
		})
	}
}

func TestErrorChannelBufferSize(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 1,
		},
		{
			name:  "http only",
			modes: []config.ServiceMode{config.ServiceModeHTTP},
			want:  2,
		},
		{
			name: "all services enabled",
			modes: []config.ServiceMode{
				config.ServiceModeHTTP,
				config.ServiceModeWorker,
				config.ServiceModeSweeper,
			},
			want: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelBufferSize(enabled); got != tt.want {
				t.Fatalf("errorChannelBufferSize(%v) = %d, want %d", tt.modes, got, tt.want)
			}
		})
	}
}

func TestNewServices_MemoryBackend(t *testing.T) {
	cfg := &config.AppConfig{QueueBackend: config.QueueBackendMemory}

	services, err := NewServices(&ServiceDeps{Config: cfg})
	if err != nil {
		t.Fatalf("NewServices failed: %v", err)
	}
	if services.Jobs == nil {
		t.Fatal("expected job service to be wired")
	}
	if services.JobRepo == nil {
		t.Fatal("expected job repository to be wired")
	}
	if services.Prompts == nil {
		t.Fatal("expected prompt cache to be wired")
	}
}

func TestNewServices_PostgresBackendRequiresDB(t *testing.T) {
	cfg := &config.AppConfig{QueueBackend: config.QueueBackendPostgres}

	if _, err := NewServices(&ServiceDeps{Config: cfg}); err == nil {
		t.Fatal("expected error when postgres backend has no database connection")
	}
}

func TestValidateServiceConfig(t *testing.T) {
	cfg := &config.AppConfig{Services: "http,worker"}
	if err := ValidateServiceConfig(cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	bad := &config.AppConfig{Services: "http,bogus"}
	if err := ValidateServiceConfig(bad); err == nil {
		t.Fatal("expected error for unknown service mode")
	}

	if err := ValidateServiceConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
