package database

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/wonny/qval/pkg/config"
)

func testConfig(url string) *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{
			URL:             url,
			MaxConns:        4,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
	}
}

func TestNewNotConfigured(t *testing.T) {
	_, err := New(context.Background(), testConfig(""))
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestNewWithInvalidURL(t *testing.T) {
	_, err := New(context.Background(), testConfig("invalid://url"))
	if err == nil {
		t.Error("Expected error with invalid database URL, got nil")
	}
}

func TestHealthCheckAndMigrate(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := New(ctx, testConfig(url))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	status, err := db.HealthCheck(ctx)
	if err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if !status.Healthy {
		t.Error("Expected database to be healthy")
	}
	if status.Stats.MaxConns != 4 {
		t.Errorf("Expected MaxConns 4, got %d", status.Stats.MaxConns)
	}

	err = db.Migrate(ctx,
		`CREATE SCHEMA IF NOT EXISTS qval_test`,
		`CREATE TABLE IF NOT EXISTS qval_test.ping (id INT PRIMARY KEY)`,
	)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	// Double close should not panic
	db.Close()
	db.Close()
}
