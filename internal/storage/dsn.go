package storage

import (
	"fmt"
	"strings"
)

// ConnParams describes a server-backed database when no DSN is given.
type ConnParams struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// BuildDSN returns the driver DSN for params.
func BuildDSN(dialect Dialect, p ConnParams) (string, error) {
	switch dialect {
	case DialectMySQL:
		return buildMySQLDSN(p), nil
	case DialectPostgres:
		return buildPostgresDSN(p), nil
	case DialectSQLite:
		if p.Database == "" {
			return "", fmt.Errorf("sqlite: database path is required")
		}
		return p.Database, nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", dialect)
	}
}

func buildMySQLDSN(p ConnParams) string {
	port := p.Port
	if port == 0 {
		port = 3306
	}
	// user:password@tcp(host:port)/dbname?parseTime=true
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		p.User, p.Password, p.Host, port, p.Database,
	)
	if p.SSLMode == "require" {
		dsn += "&tls=true"
	}
	return dsn
}

func buildPostgresDSN(p ConnParams) string {
	port := p.Port
	if port == 0 {
		port = 5432
	}
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, port, p.User, quotePG(p.Password), p.Database, sslMode,
	)
}

// quotePG quotes a libpq keyword value when it contains spaces or quotes.
func quotePG(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
