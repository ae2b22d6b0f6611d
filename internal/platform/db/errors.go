package db

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

const (
	erDupEntry        = 1062
	erNoReferencedRow = 1452
	erLockDeadlock    = 1213
	erLockWaitTimeout = 1205
)

func mysqlNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// IsDuplicateKey: UNIQUE / PRIMARY KEY 違反
func IsDuplicateKey(err error) bool { return mysqlNumber(err) == erDupEntry }

// IsForeignKey: 参照先が存在しない
func IsForeignKey(err error) bool { return mysqlNumber(err) == erNoReferencedRow }

// IsRetryable: デッドロック・ロック待ちタイムアウト
func IsRetryable(err error) bool {
	n := mysqlNumber(err)
	return n == erLockDeadlock || n == erLockWaitTimeout
}
