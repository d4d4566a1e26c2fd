package cards

import (
	"context"
	"fmt"
	mathrand "math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smileperks/cardhub/internal/db"
	"github.com/smileperks/cardhub/internal/models"
	"gorm.io/gorm"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	db      *gorm.DB
	clock   *testClock
	manager *Manager
	admin   models.Admin
	clinic  models.Clinic
}

func setupCardsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:cards_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	conn := setupCardsTestDB(t)

	admin := models.Admin{Username: "root", Password: "hash", Active: true, IsSuperAdmin: true}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		t.Fatalf("create admin: %v", errCreate)
	}
	clinic := models.Clinic{Name: "Smile Cavite", Code: "CAV", Username: "cavite", Password: "hash", Active: true}
	if errCreate := conn.Create(&clinic).Error; errCreate != nil {
		t.Fatalf("create clinic: %v", errCreate)
	}

	clock := &testClock{now: time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)}
	base := []Option{
		WithClock(clock.Now),
		WithRandom(mathrand.NewChaCha8([32]byte{7, 7, 7})),
		WithRetryPolicy(RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}),
	}
	manager := NewManager(conn, append(base, opts...)...)
	return &testEnv{db: conn, clock: clock, manager: manager, admin: admin, clinic: clinic}
}

func (e *testEnv) generate(t *testing.T, total int) *BatchResult {
	t.Helper()
	result, err := e.manager.GenerateBatch(context.Background(), GenerateBatchInput{ActorID: e.admin.ID, TotalCards: total})
	if err != nil {
		t.Fatalf("generate batch: %v", err)
	}
	return result
}

// activated returns a card that went through location assignment and activation.
func (e *testEnv) activated(t *testing.T, card models.Card) *models.Card {
	t.Helper()
	ctx := context.Background()
	assigned, err := e.manager.AssignLocation(ctx, card.ID, "CAV", ClinicActor(e.clinic.ID))
	if err != nil {
		t.Fatalf("assign location: %v", err)
	}
	out, err := e.manager.ActivateCard(ctx, ActivateInput{
		ControlNumber: assigned.ControlNumber,
		Passcode:      assigned.Passcode,
		ClinicID:      e.clinic.ID,
	})
	if err != nil {
		t.Fatalf("activate card: %v", err)
	}
	return out
}

func countTransactions(t *testing.T, conn *gorm.DB, cardID uint64, kind models.TransactionType) int64 {
	t.Helper()
	var n int64
	if errCount := conn.Model(&models.Transaction{}).
		Where("card_id = ? AND transaction_type = ?", cardID, kind).
		Count(&n).Error; errCount != nil {
		t.Fatalf("count transactions: %v", errCount)
	}
	return n
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}
