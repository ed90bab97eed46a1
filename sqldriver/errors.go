package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/BaSui01/sessiondb/driver"
)

// errorInfo 把驱动错误映射为 PDO 风格的错误信息
func errorInfo(err error) driver.ErrorInfo {
	if err == nil {
		return driver.ErrorInfo{}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return driver.ErrorInfo{SQLState: string(pqErr.Code), Code: string(pqErr.Code), Message: pqErr.Message}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return driver.ErrorInfo{SQLState: pgErr.Code, Code: pgErr.Code, Message: pgErr.Message}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		state := string(myErr.SQLState[:])
		if myErr.SQLState == [5]byte{} {
			state = "HY000"
		}
		return driver.ErrorInfo{SQLState: state, Code: strconv.Itoa(int(myErr.Number)), Message: myErr.Message}
	}

	switch {
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, sql.ErrTxDone):
		return driver.ErrorInfo{SQLState: "08003", Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return driver.ErrorInfo{SQLState: "HYT00", Message: err.Error()}
	case errors.Is(err, driver.ErrInvalidParam):
		return driver.ErrorInfo{SQLState: "HY093", Message: err.Error()}
	case errors.Is(err, driver.ErrInvalidColumn):
		return driver.ErrorInfo{SQLState: "42S22", Message: err.Error()}
	}
	return driver.ErrorInfo{SQLState: "HY000", Message: err.Error()}
}
