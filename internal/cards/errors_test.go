package cards

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smileperks/cardhub/internal/locks"
	"gorm.io/gorm"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"record not found", gorm.ErrRecordNotFound, KindNotFound},
		{"wrapped sentinel", fmt.Errorf("redeem: %w", ErrPerkAlreadyClaimed), KindConflict},
		{"duplicated key", gorm.ErrDuplicatedKey, KindConflict},
		{"pg unique", &pgconn.PgError{Code: "23505"}, KindConflict},
		{"pg connection", &pgconn.PgError{Code: "08006"}, KindTransient},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, KindTransient},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, KindTransient},
		{"pg admin shutdown", &pgconn.PgError{Code: "57P01"}, KindTransient},
		{"pg check", &pgconn.PgError{Code: "23514"}, KindInternal},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: cards.control_number (2067)"), KindConflict},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), KindTransient},
		{"bad conn", fmt.Errorf("exec: %w", driver.ErrBadConn), KindTransient},
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"lock busy", locks.ErrNotObtained, KindTransient},
		{"tagged", &Error{Kind: KindValidation, Op: "x", Err: errors.New("bad")}, KindValidation},
		{"other", errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("%s: KindOf = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestWrapKeepsSentinelAndKind(t *testing.T) {
	t.Parallel()

	err := wrap("activate card", ErrCardNotActivatable)
	var tagged *Error
	if !errors.As(err, &tagged) || tagged.Kind != KindConflict || tagged.Op != "activate card" {
		t.Fatalf("unexpected wrapped error %#v", err)
	}
	if !errors.Is(err, ErrCardNotActivatable) {
		t.Fatalf("wrapped error must match its sentinel")
	}
	if err.Error() != "activate card: card is not awaiting activation" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if again := wrap("outer", err); again != err {
		t.Fatalf("tagged errors must not be wrapped twice")
	}
	if wrap("noop", nil) != nil {
		t.Fatalf("wrap(nil) must be nil")
	}
}
