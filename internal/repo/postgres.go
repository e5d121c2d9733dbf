package repo

import (
	"net"
	"net/url"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewPostgresRepo constructs a repository on PostgreSQL using the pgx driver.
func NewPostgresRepo(dsn string) (*SQLRepo, error) {
	return openSQL("pgx", dsn, 0)
}

// PostgresDSNFromEnv builds a DSN from component env vars (with defaults):
//   POSTGRES_HOST (postgres), POSTGRES_PORT (5432), POSTGRES_DB (quip),
//   POSTGRES_USER (quip), POSTGRES_PASSWORD (empty), POSTGRES_SSLMODE (disable)
// Credentials and db name are URL-encoded.
func PostgresDSNFromEnv() string {
	host := getenv("POSTGRES_HOST", "postgres")
	port := getenv("POSTGRES_PORT", "5432")
	db := getenv("POSTGRES_DB", "quip")
	user := getenv("POSTGRES_USER", "quip")
	pass := getenv("POSTGRES_PASSWORD", "")
	ssl := getenv("POSTGRES_SSLMODE", "disable")

	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, pass),
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + db,
	}
	q := url.Values{}
	q.Set("sslmode", ssl)
	u.RawQuery = q.Encode()
	return u.String()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
