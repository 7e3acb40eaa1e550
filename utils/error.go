package utils

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// Error taxonomy of the lot engine. Workflows return these wrapped with
// call-site context; callers branch with errors.Is.
var (
	// ErrorRecordNotFound is returned when a referenced commodity, lot,
	// invoice or transaction id does not resolve.
	ErrorRecordNotFound = errors.New("record not found")

	// ErrorNotAvailableQuantity is returned by the strict consumption path
	// (transfers): stock that does not exist cannot be moved.
	ErrorNotAvailableQuantity = errors.New("quantity is more than available")

	// ErrorNotRightQuantity is returned when the serialized-unit codes
	// supplied at production time do not match the lot quantity.
	ErrorNotRightQuantity = errors.New("markup count does not match lot quantity")

	// ErrorDuplicateValue is returned by uniqueness validation on master
	// records (commodity names, account names).
	ErrorDuplicateValue = errors.New("value already exists")
)

// IsDuplicateEntry reports whether err is a MySQL unique-key violation.
func IsDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
