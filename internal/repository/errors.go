// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrForbidden indicates that the current account may not
// touch a resource, while ErrConflict signals that an operation
// cannot proceed due to existing dependent records (e.g. deleting
// an affiliate that still has coupon usage).
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a delete or update cannot be
// performed because of conflicting state. Handlers should
// translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrAffiliateNotFound is returned when no affiliate matches a lookup.
var ErrAffiliateNotFound = errors.New("affiliate not found")

// ErrCouponExists is returned when inserting a coupon code that is taken.
var ErrCouponExists = errors.New("coupon code already exists")

// ErrUsageNotFound is returned when a coupon usage row does not exist.
var ErrUsageNotFound = errors.New("usage record not found")

// MySQL server error numbers the repositories react to.
const (
	errDupEntry     = 1062
	errNoReferenced = 1452
)

func isMySQLError(err error, number uint16) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == number
}
