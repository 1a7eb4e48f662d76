package sqlxrepos

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core"
)

const (
	pqInvalidTextRepresentation = "22P02"
	pqUniqueViolation           = "23505"
)

var errDuplicate = errors.New("duplicate record")

// trapNoRowsErr maps psql "no rows" err to a *core.NotFoundError.
// An id that is not a valid UUID cannot match any row either.
func trapNoRowsErr(err error, resource, id, msg string) error {
	if err == sql.ErrNoRows {
		return core.NewNotFoundError(resource, id)
	}
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqInvalidTextRepresentation {
		return core.NewNotFoundError(resource, id)
	}
	return errors.Wrap(err, msg)
}

// trapUniqueErr maps unique constraint violations to errDuplicate
func trapUniqueErr(err error, msg string) error {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
		return errors.Wrap(errDuplicate, pqErr.Constraint)
	}
	return errors.Wrap(err, msg)
}

// where accumulates AND-ed conditions with `?` bindvars; queries are rebound before use.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// orderBy renders orderings already mapped to columns, with a unique tiebreaker.
func orderBy(ords []core.DBOrdering, fallback core.DBOrdering, tiebreak string) string {
	if len(ords) == 0 {
		ords = []core.DBOrdering{fallback}
	}
	parts := make([]string, 0, len(ords)+1)
	for _, ord := range ords {
		parts = append(parts, ord.String())
	}
	parts = append(parts, tiebreak)
	return " ORDER BY " + strings.Join(parts, ", ")
}

func limitOffset(page core.Page) string {
	var clause string
	if page.Limit > 0 {
		clause += " LIMIT " + strconv.Itoa(page.Limit)
	}
	if page.Offset > 0 {
		clause += " OFFSET " + strconv.Itoa(page.Offset)
	}
	return clause
}
