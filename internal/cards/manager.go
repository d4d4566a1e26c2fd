// Package cards implements the loyalty card lifecycle: batch generation,
// location assignment, activation, perk redemption and lookup.
//
// Every state change runs inside one database transaction together with its
// audit entry. Status and claim transitions are conditional updates, so two
// concurrent callers can never both move the same card or perk forward.
package cards

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"github.com/smileperks/cardhub/internal/locks"
	"github.com/smileperks/cardhub/internal/models"
	"gorm.io/gorm"
)

const (
	defaultChunkSize    = 250
	defaultMaxBatchSize = 10000
	defaultLockTTL      = 15 * time.Second
)

// Actor identifies who performs a lifecycle operation.
type Actor struct {
	Kind models.ActorKind
	ID   uint64
}

// AdminActor returns an admin actor.
func AdminActor(id uint64) Actor { return Actor{Kind: models.ActorAdmin, ID: id} }

// ClinicActor returns a clinic actor.
func ClinicActor(id uint64) Actor { return Actor{Kind: models.ActorClinic, ID: id} }

// SystemActor returns the actor used by background workers.
func SystemActor() Actor { return Actor{Kind: models.ActorSystem} }

func (a Actor) idPtr() *uint64 {
	if a.Kind == models.ActorSystem || a.ID == 0 {
		return nil
	}
	id := a.ID
	return &id
}

// Manager owns the card state machine.
type Manager struct {
	db       *gorm.DB
	locker   locks.Locker
	now      func() time.Time
	retry    RetryPolicy
	validate *validator.Validate

	randMu sync.Mutex
	random io.Reader

	chunkSize       int
	maxBatchSize    int
	lockTTL         time.Duration
	controlPrefix   func() string
	defaultTemplate func() string
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLocker sets the per-card locker. Defaults to an in-process locker.
func WithLocker(l locks.Locker) Option {
	return func(m *Manager) {
		if l != nil {
			m.locker = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRandom overrides the randomness used for passcodes and batch numbers.
func WithRandom(r io.Reader) Option {
	return func(m *Manager) {
		if r != nil {
			m.random = r
		}
	}
}

// WithRetryPolicy overrides the transient-failure retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(m *Manager) { m.retry = p }
}

// WithChunkSize sets how many cards are committed per generation transaction.
func WithChunkSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.chunkSize = n
		}
	}
}

// WithMaxBatchSize caps the number of cards in a single batch.
func WithMaxBatchSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxBatchSize = n
		}
	}
}

// WithLockTTL bounds how long a crashed process can hold a card lock.
func WithLockTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lockTTL = d
		}
	}
}

// WithControlPrefix sets the resolver for the control-number prefix of new batches.
func WithControlPrefix(resolve func() string) Option {
	return func(m *Manager) {
		if resolve != nil {
			m.controlPrefix = resolve
		}
	}
}

// WithDefaultTemplate sets the resolver for the perk template name used when a
// batch names none. An empty name falls back to the template flagged as default.
func WithDefaultTemplate(resolve func() string) Option {
	return func(m *Manager) {
		if resolve != nil {
			m.defaultTemplate = resolve
		}
	}
}

// NewManager creates a Manager on db.
func NewManager(db *gorm.DB, opts ...Option) *Manager {
	m := &Manager{
		db:              db,
		locker:          locks.NewLocalLocker(10 * time.Second),
		now:             time.Now,
		retry:           DefaultRetryPolicy(),
		validate:        validator.New(),
		random:          rand.Reader,
		chunkSize:       defaultChunkSize,
		maxBatchSize:    defaultMaxBatchSize,
		lockTTL:         defaultLockTTL,
		controlPrefix:   func() string { return DefaultControlPrefix },
		defaultTemplate: func() string { return "" },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DB exposes the underlying connection for read-only listings.
func (m *Manager) DB() *gorm.DB {
	return m.db
}

func (m *Manager) clock() time.Time {
	return m.now().UTC()
}

func (m *Manager) passcodeTail() (string, error) {
	m.randMu.Lock()
	defer m.randMu.Unlock()
	return randomPasscodeTail(m.random)
}

func (m *Manager) prefix() string {
	raw := m.controlPrefix()
	p, ok := NormalizeControlPrefix(raw)
	if !ok {
		if strings.TrimSpace(raw) != "" {
			log.WithField("prefix", raw).Warn("cards: invalid control prefix, using default")
		}
		return DefaultControlPrefix
	}
	return p
}

// checkInput runs struct validation and converts failures to validation errors.
func (m *Manager) checkInput(op string, in any) error {
	errValidate := m.validate.Struct(in)
	if errValidate == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(errValidate, &fieldErrs) {
		parts := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return invalid(op, "%s", strings.Join(parts, ", "))
	}
	return invalid(op, "%v", errValidate)
}

// withCardLock runs fn while holding the lock of cardID.
func (m *Manager) withCardLock(ctx context.Context, cardID uint64, fn func() error) error {
	lock, errObtain := m.locker.Obtain(ctx, locks.CardKey(cardID), m.lockTTL)
	if errObtain != nil {
		return errObtain
	}
	defer func() {
		if errRelease := lock.Release(context.WithoutCancel(ctx)); errRelease != nil {
			log.WithError(errRelease).WithField("card_id", cardID).Warn("cards: release lock failed")
		}
	}()
	return fn()
}

// inTx runs fn in a retried transaction.
func (m *Manager) inTx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	return m.retry.Do(ctx, op, func(ctx context.Context) error {
		return m.db.WithContext(ctx).Transaction(fn)
	})
}

// ensureActor verifies the actor exists and may act.
func ensureActor(tx *gorm.DB, actor Actor) error {
	switch actor.Kind {
	case models.ActorAdmin:
		var admin models.Admin
		if errFind := tx.Select("id", "active").First(&admin, actor.ID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrActorNotFound
			}
			return errFind
		}
		if !admin.Active {
			return ErrActorNotFound
		}
	case models.ActorClinic:
		var clinic models.Clinic
		if errFind := tx.Select("id", "active").First(&clinic, actor.ID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrClinicNotFound
			}
			return errFind
		}
		if !clinic.Active {
			return ErrClinicNotFound
		}
	case models.ActorSystem:
	default:
		return ErrActorNotFound
	}
	return nil
}

func notFoundAs(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
