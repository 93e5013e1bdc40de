package common

import (
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation - код ошибки PostgreSQL для нарушения уникальности.
const uniqueViolation = "23505"

// IsUniqueViolation сообщает, что вставка нарушила уникальный индекс.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
