package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr string

	DBDriver string // memory|sqlite|postgres
	DBDSN    string

	AuthSecret string // HMAC key for access tokens

	AdminUser     string
	AdminPassHash string // bcrypt

	CORSOrigins []string

	// Seed values for the settings row when none exists yet.
	DefaultPassingScore int
	DefaultNumQuestions int
	DefaultNumOptions   int
}

func FromEnv() Config {
	return Config{
		HTTPAddr:      envOr("HTTP_ADDR", ":8080"),
		DBDriver:      envOr("DB_DRIVER", "sqlite"),
		DBDSN:         envOr("DB_DSN", ""),
		AuthSecret:    envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		AdminUser:     envOr("ADMIN_USER", "admin"),
		AdminPassHash: envOr("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"),
		CORSOrigins:   csvOr("CORS_ORIGINS", "http://localhost:3000"),

		DefaultPassingScore: envInt("DEFAULT_PASSING_SCORE", 70),
		DefaultNumQuestions: envInt("DEFAULT_NUM_QUESTIONS", 10),
		DefaultNumOptions:   envInt("DEFAULT_NUM_OPTIONS", 10),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
