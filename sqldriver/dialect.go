package sqldriver

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// Dialect SQL 方言
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
	DialectGeneric  Dialect = "generic"
)

// DialectFor 根据 database/sql 驱动名推断方言
func DialectFor(driverName string) Dialect {
	switch strings.ToLower(driverName) {
	case "postgres", "postgresql", "pgx", "pgx/v5", "cloudsqlpostgres":
		return DialectPostgres
	case "mysql":
		return DialectMySQL
	case "sqlite", "sqlite3":
		return DialectSQLite
	default:
		return DialectGeneric
	}
}

// mergeCredentials 把单独传入的用户名/密码合并进 DSN；DSN 中已有的值优先
func (d Dialect) mergeCredentials(dsn, user, pass string) (string, error) {
	if user == "" && pass == "" {
		return dsn, nil
	}

	switch d {
	case DialectPostgres:
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			u, err := url.Parse(dsn)
			if err != nil {
				return "", fmt.Errorf("parse postgres url: %w", err)
			}
			if u.User == nil || u.User.Username() == "" {
				if pass != "" {
					u.User = url.UserPassword(user, pass)
				} else {
					u.User = url.User(user)
				}
			}
			return u.String(), nil
		}
		kv := dsn
		if strings.Contains(kv, "://") {
			// pq 能识别的其他 URL 形式
			converted, err := pq.ParseURL(kv)
			if err != nil {
				return "", fmt.Errorf("parse postgres url: %w", err)
			}
			kv = converted
		}
		if user != "" && !strings.Contains(kv, "user=") {
			kv = strings.TrimSpace(kv + " user=" + quoteKV(user))
		}
		if pass != "" && !strings.Contains(kv, "password=") {
			kv = strings.TrimSpace(kv + " password=" + quoteKV(pass))
		}
		return kv, nil

	case DialectMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		if cfg.User == "" {
			cfg.User = user
		}
		if cfg.Passwd == "" {
			cfg.Passwd = pass
		}
		return cfg.FormatDSN(), nil

	default:
		return dsn, nil
	}
}

func quoteKV(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// quote 为字符串字面量加引号
func (d Dialect) quote(s string) string {
	switch d {
	case DialectPostgres:
		return pq.QuoteLiteral(s)
	case DialectMySQL:
		r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\x00", `\0`, "\n", `\n`, "\r", `\r`, "\x1a", `\Z`)
		return "'" + r.Replace(s) + "'"
	default:
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
}

// quoteIdent 为标识符加引号
func (d Dialect) quoteIdent(name string) string {
	switch d {
	case DialectPostgres:
		return pq.QuoteIdentifier(name)
	case DialectMySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// sessionVarSQL 设置会话变量的语句
func (d Dialect) sessionVarSQL(name string, value any) (string, error) {
	if !validVarName(name) {
		return "", fmt.Errorf("invalid session variable name %q", name)
	}
	lit := d.literal(value)
	switch d {
	case DialectMySQL:
		return fmt.Sprintf("SET @@SESSION.%s = %s", name, lit), nil
	case DialectSQLite:
		return fmt.Sprintf("PRAGMA %s = %s", name, lit), nil
	default:
		return fmt.Sprintf("SET %s = %s", name, lit), nil
	}
}

func (d Dialect) literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "DEFAULT"
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(x)
	default:
		return d.quote(fmt.Sprint(x))
	}
}

func validVarName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// versionSQL 查询服务器版本的语句
func (d Dialect) versionSQL() string {
	switch d {
	case DialectPostgres:
		return "SHOW server_version"
	case DialectSQLite:
		return "SELECT sqlite_version()"
	default:
		return "SELECT VERSION()"
	}
}

// lastInsertIDSQL 读取最近插入 ID 的语句；name 为序列名（仅 postgres 使用）
func (d Dialect) lastInsertIDSQL(name string) (string, []any) {
	switch d {
	case DialectPostgres:
		if name != "" {
			return "SELECT currval($1)", []any{name}
		}
		return "SELECT lastval()", nil
	case DialectMySQL:
		return "SELECT LAST_INSERT_ID()", nil
	case DialectSQLite:
		return "SELECT last_insert_rowid()", nil
	default:
		return "", nil
	}
}
