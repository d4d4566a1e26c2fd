package public

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/smileperks/cardhub/internal/cards"
	"github.com/smileperks/cardhub/internal/db"
	"github.com/smileperks/cardhub/internal/models"
	"gorm.io/gorm"
)

func setupPublicRouter(t *testing.T) (*gin.Engine, *cards.Manager, *models.Card, *models.Clinic) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:public_api_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	admin := models.Admin{Username: "root", Password: "unused", Active: true, IsSuperAdmin: true}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		t.Fatalf("create admin: %v", errCreate)
	}
	clinic := models.Clinic{Name: "Bacoor Dental", Code: "BAC", Username: "bacoor", Password: "unused", Active: true}
	if errCreate := conn.Create(&clinic).Error; errCreate != nil {
		t.Fatalf("create clinic: %v", errCreate)
	}

	manager := cards.NewManager(conn)
	ctx := context.Background()
	result, errGenerate := manager.GenerateBatch(ctx, cards.GenerateBatchInput{ActorID: admin.ID, TotalCards: 1})
	if errGenerate != nil {
		t.Fatalf("generate batch: %v", errGenerate)
	}
	card, errAssign := manager.AssignLocation(ctx, result.Cards[0].ID, "BAC", cards.ClinicActor(clinic.ID))
	if errAssign != nil {
		t.Fatalf("assign location: %v", errAssign)
	}

	r := gin.New()
	RegisterPublicRoutes(r, manager)
	return r, manager, card, &clinic
}

func postLookup(r *gin.Engine, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/v0/public/cards/lookup", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPublicLookup(t *testing.T) {
	r, _, card, _ := setupPublicRouter(t)

	w := postLookup(r, gin.H{"control_number": card.ControlNumber, "passcode": card.Passcode})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if resp["control_number"] != card.ControlNumber || resp["status"] != string(models.CardStatusUnactivated) {
		t.Fatalf("unexpected response %v", resp)
	}
	if _, leaked := resp["passcode"]; leaked {
		t.Fatalf("passcode must not be returned: %v", resp)
	}
	perks, _ := resp["perks"].([]any)
	if len(perks) != len(db.DefaultPerkTypes) {
		t.Fatalf("expected %d perks, got %d", len(db.DefaultPerkTypes), len(perks))
	}
}

func TestPublicLookupShowsClinicAfterActivation(t *testing.T) {
	r, manager, card, clinic := setupPublicRouter(t)
	var resp struct {
		Status    string  `json:"status"`
		Clinic    string  `json:"clinic"`
		ExpiresAt *string `json:"expires_at"`
	}

	w := postLookup(r, gin.H{"control_number": card.ControlNumber, "passcode": card.Passcode})
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if resp.Clinic != "" || resp.ExpiresAt != nil {
		t.Fatalf("unactivated card should have no clinic or expiry, got %+v", resp)
	}

	if _, errActivate := manager.ActivateCard(context.Background(), cards.ActivateInput{
		ControlNumber: card.ControlNumber,
		Passcode:      card.Passcode,
		ClinicID:      clinic.ID,
	}); errActivate != nil {
		t.Fatalf("activate: %v", errActivate)
	}

	w = postLookup(r, gin.H{"control_number": card.ControlNumber, "passcode": card.Passcode})
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if resp.Status != string(models.CardStatusActivated) || resp.Clinic != "Bacoor Dental" || resp.ExpiresAt == nil {
		t.Fatalf("unexpected activated view %+v", resp)
	}
}

func TestPublicLookupRejectsBadCredentials(t *testing.T) {
	r, _, card, _ := setupPublicRouter(t)

	wrong := "BAC0000"
	if card.Passcode == wrong {
		wrong = "BAC0001"
	}
	cases := []struct {
		name string
		body any
		want int
	}{
		{name: "wrong passcode", body: gin.H{"control_number": card.ControlNumber, "passcode": wrong}, want: http.StatusNotFound},
		{name: "control number only", body: gin.H{"control_number": card.ControlNumber}, want: http.StatusBadRequest},
		{name: "unknown card", body: gin.H{"control_number": "MOC-9999", "passcode": card.Passcode}, want: http.StatusNotFound},
		{name: "malformed control number", body: gin.H{"control_number": "nope", "passcode": card.Passcode}, want: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := postLookup(r, tc.body); w.Code != tc.want {
				t.Fatalf("expected %d, got %d body=%s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}
