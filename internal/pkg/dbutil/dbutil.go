package dbutil

import (
	"github.com/jmoiron/sqlx"
)

// Finalize rewrites the `?` placeholders produced by gendry into the bind
// style of driver.
func Finalize(driver string, query string, args []interface{}) (string, []interface{}) {
	bindType := sqlx.BindType(driver)
	if bindType == sqlx.UNKNOWN {
		bindType = sqlx.QUESTION
	}
	return sqlx.Rebind(bindType, query), args
}
