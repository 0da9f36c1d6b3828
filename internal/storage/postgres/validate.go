package postgres

import (
	"fmt"
	"net/url"
	"strings"
)

// validatePostgresURI 要求 DSN 是 URI 形式。
// pgx 和 gorm 都能接受 key=value 形式的 DSN，但两边各自解析容易悄悄走偏，
// 这里统一收紧到 postgres:// / postgresql:// URI。
func validatePostgresURI(dsn string) error {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return fmt.Errorf("postgres dsn is empty")
	case !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://"):
		return fmt.Errorf("postgres dsn must be a postgres:// or postgresql:// URI")
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return fmt.Errorf("parse postgres dsn: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("postgres dsn has no host")
	}
	return nil
}
