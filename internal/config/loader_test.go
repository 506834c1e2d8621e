package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/pitchside/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		convey.Reset(clearConfigEnvVars)

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.CacheTTLSeconds, convey.ShouldEqual, 300)
				convey.So(cfg.ShardCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("PITCHSIDE_ADDR", ":8080")
			_ = os.Setenv("PITCHSIDE_CACHE_TTL_SECONDS", "60")
			_ = os.Setenv("PITCHSIDE_MOVEMENT_THRESHOLD_KM", "0.25")
			_ = os.Setenv("PITCHSIDE_DISTANCE_TIE_BREAK", "true")
			_ = os.Setenv("PITCHSIDE_MATRIX_API_KEY", "secret")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.CacheTTLSeconds, convey.ShouldEqual, 60)
				convey.So(cfg.MovementThresholdKm, convey.ShouldEqual, 0.25)
				convey.So(cfg.DistanceTieBreak, convey.ShouldBeTrue)
				convey.So(cfg.MatrixAPIKey, convey.ShouldEqual, "secret")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
shard_count: 8
travel_mode: walking
`)
			_ = os.Setenv("PITCHSIDE_CONFIG", tmpFile)
			_ = os.Setenv("PITCHSIDE_SHARD_COUNT", "16")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.ShardCount, convey.ShouldEqual, 16)
				convey.So(cfg.TravelMode, convey.ShouldEqual, "walking")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			})
		})

		convey.Convey("When a .env file is present", func() {
			dotenv := filepath.Join(t.TempDir(), "test.env")
			convey.So(os.WriteFile(dotenv, []byte("PITCHSIDE_REDIS_ADDR=localhost:6379\nPITCHSIDE_ADDR=:7000\n"), 0o600), convey.ShouldBeNil)
			_ = os.Setenv("PITCHSIDE_ENV_FILE", dotenv)
			_ = os.Setenv("PITCHSIDE_ADDR", ":8080")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it fills unset variables without overriding set ones", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.RedisAddr, convey.ShouldEqual, "localhost:6379")
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			_ = os.Setenv("PITCHSIDE_CONFIG", createTempConfigFile(t, `invalid: yaml: content: [`))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("PITCHSIDE_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("PITCHSIDE_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("PITCHSIDE_SHARD_COUNT", "not_a_number")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When loading config with out of range values", func() {
			_ = os.Setenv("PITCHSIDE_SHARD_COUNT", "0")
			_ = os.Setenv("PITCHSIDE_LOG_FORMAT", "xml")

			cfg, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "shard_count")
			convey.So(err.Error(), convey.ShouldContainSubstring, "log_format")
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "PITCHSIDE_") {
			_ = os.Unsetenv(name)
		}
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "pitchside-config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
