package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/wonny/qval/pkg/config"
)

func disabledClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(context.Background(), &config.Config{
		Redis: config.RedisConfig{Enabled: false},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestNewClient_Disabled(t *testing.T) {
	client := disabledClient(t)
	if client.Enabled() {
		t.Error("Expected client to be disabled")
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping() on disabled client error = %v", err)
	}
	if client.Redis() != nil {
		t.Error("Expected no underlying client when disabled")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if Disabled().Enabled() {
		t.Error("Expected Disabled() to be disabled")
	}
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(disabledClient(t), "test")
	ctx := context.Background()

	var result string
	found, err := cache.Get(ctx, "key", &result)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("Expected cache miss when Redis disabled")
	}
	if err := cache.Set(ctx, "key", "value", TTLReport); err != nil {
		t.Errorf("Set() error = %v", err)
	}
	if err := cache.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
}

func TestGetOrCompute_Disabled(t *testing.T) {
	cache := NewCache(disabledClient(t), "test")

	calls := 0
	fn := func() (map[string]float64, error) {
		calls++
		return map[string]float64{"mse": 0.5}, nil
	}

	for i := 0; i < 2; i++ {
		v, hit, err := GetOrCompute(context.Background(), cache, "k", TTLReport, fn)
		if err != nil {
			t.Fatalf("GetOrCompute() error = %v", err)
		}
		if hit {
			t.Error("Expected no hit when Redis disabled")
		}
		if v["mse"] != 0.5 {
			t.Errorf("Expected computed value, got %v", v)
		}
	}
	if calls != 2 {
		t.Errorf("Expected fn to run on every call, ran %d times", calls)
	}

	wantErr := errors.New("boom")
	_, _, err := GetOrCompute(context.Background(), cache, "k", TTLReport, func() (int, error) {
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Expected fn error to propagate, got %v", err)
	}
}

func TestCacheKeys(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"ComparisonKey", ComparisonKey("abc123", "f00d"), "comparison:abc123:f00d"},
		{"StabilityKey", StabilityKey("abc123", "f00d"), "stability:abc123:f00d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}
