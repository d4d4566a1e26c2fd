package cards

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smileperks/cardhub/internal/locks"
	"gorm.io/gorm"
)

// Kind classifies a lifecycle failure.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindValidation
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

// Domain errors.
var (
	ErrCardNotFound            = errors.New("card not found")
	ErrBatchNotFound           = errors.New("batch not found")
	ErrPerkNotFound            = errors.New("perk not found")
	ErrActorNotFound           = errors.New("actor not found")
	ErrClinicNotFound          = errors.New("clinic not found")
	ErrTemplateNotFound        = errors.New("perk template not found")
	ErrLocationAlreadyAssigned = errors.New("location already assigned")
	ErrCardNotActivatable      = errors.New("card is not awaiting activation")
	ErrCardNotRedeemable       = errors.New("card is not active")
	ErrCardNotSuspendable      = errors.New("card is not active")
	ErrPerkAlreadyClaimed      = errors.New("perk already claimed")
	ErrIdempotencyMismatch     = errors.New("idempotency key reused with different parameters")
	ErrInvalidInput            = errors.New("invalid input")
)

var sentinelKinds = map[error]Kind{
	ErrCardNotFound:            KindNotFound,
	ErrBatchNotFound:           KindNotFound,
	ErrPerkNotFound:            KindNotFound,
	ErrActorNotFound:           KindNotFound,
	ErrClinicNotFound:          KindNotFound,
	ErrTemplateNotFound:        KindNotFound,
	ErrLocationAlreadyAssigned: KindConflict,
	ErrCardNotActivatable:      KindConflict,
	ErrCardNotRedeemable:       KindConflict,
	ErrCardNotSuspendable:      KindConflict,
	ErrPerkAlreadyClaimed:      KindConflict,
	ErrIdempotencyMismatch:     KindConflict,
	ErrInvalidInput:            KindValidation,
}

// Error carries the kind and operation of a failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrap classifies err and tags it with op. Already tagged errors keep their kind.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return &Error{Kind: KindOf(err), Op: op, Err: err}
}

// invalid builds a validation error for op.
func invalid(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))}
}

// KindOf classifies err, translating store and driver errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	for sentinel, kind := range sentinelKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return KindNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return KindConflict
	case errors.Is(err, locks.ErrNotObtained),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return KindConflict
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "40001",
			pgErr.Code == "40P01",
			pgErr.Code == "57P01":
			return KindTransient
		}
		return KindInternal
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return KindConflict
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "database table is locked"),
		strings.Contains(msg, "SQLITE_BUSY"):
		return KindTransient
	}
	return KindInternal
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
