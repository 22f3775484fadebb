package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/qval/internal/audit"
	"github.com/wonny/qval/internal/marketdata"
	"github.com/wonny/qval/pkg/redis"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "PostgreSQL 스키마 및 연결 관리",
	Long: `데이터베이스 스키마를 생성하거나 연결을 점검합니다.

Subcommands:
  init   - qval 스키마 생성 (observations, fundamentals, runs)
  ping   - 연결 테스트 및 풀 통계

Example:
  go run ./cmd/quant db init
  go run ./cmd/quant db ping`,
}

var (
	dbInitCmd = &cobra.Command{
		Use:   "init",
		Short: "스키마 생성 (idempotent)",
		RunE:  runDBInit,
	}

	dbPingCmd = &cobra.Command{
		Use:   "ping",
		Short: "연결 테스트",
		RunE:  runDBPing,
	}
)

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbInitCmd)
	dbCmd.AddCommand(dbPingCmd)
}

func runDBInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sess, err := newSession(false)
	if err != nil {
		return err
	}
	defer sess.Close()

	db, err := sess.database(ctx)
	if err != nil {
		if isNotConfigured(err) {
			return fmt.Errorf("DATABASE_URL is not set")
		}
		return err
	}

	statements := append(append([]string{}, marketdata.Schema...), audit.Schema...)
	if err := db.Migrate(ctx, statements...); err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("Schema ready (%d statements)", len(statements)))
	return nil
}

func runDBPing(cmd *cobra.Command, args []string) error {
	sess, err := newSession(false)
	if err != nil {
		return err
	}
	defer sess.Close()

	fmt.Printf("Database URL: %s\n", maskPassword(sess.cfg.Database.URL))

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	db, err := sess.database(ctx)
	if err != nil {
		return err
	}

	status, err := db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	PrintSuccess("Ping successful")
	PrintKeyValue("Healthy", fmt.Sprintf("%v", status.Healthy), 20)
	PrintKeyValue("Response time", status.ResponseTime.String(), 20)
	PrintKeyValue("Max connections", fmt.Sprintf("%d", status.Stats.MaxConns), 20)
	PrintKeyValue("Total connections", fmt.Sprintf("%d", status.Stats.TotalConns), 20)
	PrintKeyValue("Idle connections", fmt.Sprintf("%d", status.Stats.IdleConns), 20)
	PrintKeyValue("Acquired connections", fmt.Sprintf("%d", status.Stats.AcquiredConns), 20)

	// report cache is optional; show its state without failing the ping
	redisStatus := "disabled"
	if sess.cfg.Redis.Enabled {
		client, err := redis.New(ctx, sess.cfg)
		if err != nil {
			redisStatus = err.Error()
		} else {
			redisStatus = "ok"
			client.Close()
		}
	}
	PrintKeyValue("Redis", redisStatus, 20)
	return nil
}

// maskPassword hides the password in a database URL for display
func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
