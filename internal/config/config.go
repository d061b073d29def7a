package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

type Config struct {
	DatabaseURL string
	DBDriver    string // pgx | sqlite

	HTTPAddr    string
	MetricsAddr string

	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool

	TickPeriod           time.Duration
	ConfirmationWindow   time.Duration
	CorridorStepDelay    time.Duration
	ObserverBuffer       int
	CancelWhenUnobserved bool
	DemoCorridor         []int64

	RouterURL       string
	DetectorURL     string
	UpstreamTimeout time.Duration
	VehicleSpeedKmh float64

	JWTSecret string

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Signal inventory DSN: prefer DATABASE_URL / PG_DSN, else build from PG* vars.
	// Empty means the service runs with no signal inventory.
	cfg.DBDriver = strings.ToLower(getenvDefault("DB_DRIVER", "pgx"))
	switch cfg.DBDriver {
	case "pgx", "postgres":
		cfg.DBDriver = "pgx"
	case "sqlite", "sqlite3":
		cfg.DBDriver = "sqlite"
	default:
		return nil, fmt.Errorf("invalid DB_DRIVER: %q", cfg.DBDriver)
	}
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN"))
	if cfg.DatabaseURL == "" && cfg.DBDriver == "pgx" {
		if db := os.Getenv("PGDATABASE"); db != "" {
			host := getenvDefault("PGHOST", "127.0.0.1")
			port := getenvDefault("PGPORT", "5432")
			user := getenvDefault("PGUSER", "postgres")
			pass := os.Getenv("PGPASSWORD")
			sslmode := getenvDefault("PGSSLMODE", "disable")
			if pass != "" {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
			} else {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
			}
		}
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":" + getenvDefault("PORT", "5000")
	}
	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Empty NATS_URL disables the event mirror.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "corridor")
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"), false)

	var err error
	if cfg.TickPeriod, err = millis("TICK_INTERVAL_MS", time.Second); err != nil {
		return nil, err
	}
	if cfg.ConfirmationWindow, err = millis("CONFIRM_WINDOW_MS", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.CorridorStepDelay, err = millis("CORRIDOR_STEP_MS", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.UpstreamTimeout, err = millis("UPSTREAM_TIMEOUT_MS", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.ObserverBuffer = 64
	if v := os.Getenv("OBSERVER_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid OBSERVER_BUFFER: %q", v)
		}
		cfg.ObserverBuffer = n
	}

	cfg.CancelWhenUnobserved = parseBool(os.Getenv("CANCEL_WHEN_UNOBSERVED"), true)

	if cfg.DemoCorridor, err = parseIDs(getenvDefault("DEMO_CORRIDOR", "1,2,3")); err != nil {
		return nil, fmt.Errorf("invalid DEMO_CORRIDOR: %w", err)
	}

	cfg.RouterURL = strings.TrimRight(getenvDefault("ROUTER_URL", "http://router.project-osrm.org"), "/")
	cfg.DetectorURL = strings.TrimRight(getenvDefault("DETECTOR_URL", "http://localhost:5001"), "/")

	cfg.VehicleSpeedKmh = 40
	if v := os.Getenv("VEHICLE_SPEED_KMH"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid VEHICLE_SPEED_KMH: %q", v)
		}
		cfg.VehicleSpeedKmh = f
	}

	// Empty JWT_SECRET leaves command endpoints open.
	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid LOG_FORMAT: %q", cfg.LogFormat)
	}

	return cfg, nil
}

func millis(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// parseIDs parses a comma separated list of signal ids, skipping blanks.
func parseIDs(s string) ([]int64, error) {
	parts := lo.Filter(strings.Split(s, ","), func(p string, _ int) bool {
		return strings.TrimSpace(p) != ""
	})
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseBool(v string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
