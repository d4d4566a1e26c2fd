package clinic

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
	"github.com/smileperks/cardhub/internal/config"
	"github.com/smileperks/cardhub/internal/db"
	"github.com/smileperks/cardhub/internal/models"
	"github.com/smileperks/cardhub/internal/security"
	"github.com/smileperks/cardhub/internal/session"
	"gorm.io/gorm"
)

const testPassword = "clinic-password-1"

type clinicTestEnv struct {
	db      *gorm.DB
	manager *cards.Manager
	router  *gin.Engine
	adminID uint64
}

func setupClinicTestEnv(t *testing.T) *clinicTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:clinic_api_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	manager := cards.NewManager(conn, cards.WithRetryPolicy(cards.RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}))
	sessions := session.NewManager(session.NewMemoryStore())
	jwtCfg := config.JWTConfig{Secret: "clinic-secret-with-at-least-32-chars", Expiry: time.Hour, ClinicExpiry: time.Hour}

	router := gin.New()
	RegisterClinicRoutes(router, conn, manager, sessions, jwtCfg)
	return &clinicTestEnv{db: conn, manager: manager, router: router, adminID: admin.ID}
}

func (e *clinicTestEnv) createClinic(t *testing.T, username, code string) models.Clinic {
	t.Helper()
	hash, errHash := security.HashPassword(testPassword)
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	clinic := models.Clinic{Name: "Clinic " + code, Code: code, Username: username, Password: hash, Active: true}
	if errCreate := e.db.Create(&clinic).Error; errCreate != nil {
		t.Fatalf("create clinic: %v", errCreate)
	}
	return clinic
}

func (e *clinicTestEnv) generate(t *testing.T, total int) []models.Card {
	t.Helper()
	result, errGenerate := e.manager.GenerateBatch(context.Background(), cards.GenerateBatchInput{ActorID: e.adminID, TotalCards: total})
	if errGenerate != nil {
		t.Fatalf("generate batch: %v", errGenerate)
	}
	return result.Cards
}

func (e *clinicTestEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var errMarshal error
		if raw, errMarshal = json.Marshal(body); errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *clinicTestEnv) login(t *testing.T, username string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v0/clinic/login", "", gin.H{"username": username, "password": testPassword})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, w, &resp)
	return resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if errDecode := json.Unmarshal(w.Body.Bytes(), out); errDecode != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), errDecode)
	}
}

type cardView struct {
	ID            uint64 `json:"id"`
	ControlNumber string `json:"control_number"`
	LocationCode  string `json:"location_code"`
	Passcode      string `json:"passcode"`
	Status        string `json:"status"`
	Perks         []struct {
		ID      uint64 `json:"id"`
		Claimed bool   `json:"claimed"`
	} `json:"perks"`
}

func TestClinicCardLifecycle(t *testing.T) {
	env := setupClinicTestEnv(t)
	clinic := env.createClinic(t, "makati", "MKT")
	generated := env.generate(t, 2)
	token := env.login(t, "makati")

	w := env.do(t, http.MethodPost, fmt.Sprintf("/v0/clinic/cards/%d/location", generated[0].ID), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("assign location: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var assigned cardView
	decode(t, w, &assigned)
	if assigned.LocationCode != "MKT" || len(assigned.Passcode) != 7 || assigned.Passcode[:3] != "MKT" {
		t.Fatalf("unexpected assignment %+v", assigned)
	}

	again := env.do(t, http.MethodPost, fmt.Sprintf("/v0/clinic/cards/%d/location", generated[0].ID), token, gin.H{"location_code": "MKT"})
	if again.Code != http.StatusConflict {
		t.Fatalf("second assignment: expected 409, got %d", again.Code)
	}

	w = env.do(t, http.MethodPost, "/v0/clinic/cards/activate", token, gin.H{
		"control_number": assigned.ControlNumber,
		"passcode":       assigned.Passcode,
		"sale_amount":    "1500.00",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("activate: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var activated cardView
	decode(t, w, &activated)
	if activated.Status != string(models.CardStatusActivated) || activated.Passcode != "" {
		t.Fatalf("unexpected activation view %+v", activated)
	}
	var sales int64
	if errCount := env.db.Model(&models.Sale{}).Where("card_id = ? AND clinic_id = ?", activated.ID, clinic.ID).Count(&sales).Error; errCount != nil {
		t.Fatalf("count sales: %v", errCount)
	}
	if sales != 1 {
		t.Fatalf("expected one sale, got %d", sales)
	}

	perkPath := fmt.Sprintf("/v0/clinic/cards/%d/perks/%d/redeem", activated.ID, activated.Perks[0].ID)
	w = env.do(t, http.MethodPost, perkPath, token, gin.H{"service_description": "Oral prophylaxis", "amount": "800"})
	if w.Code != http.StatusOK {
		t.Fatalf("redeem: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if w = env.do(t, http.MethodPost, perkPath, token, gin.H{"service_description": "Oral prophylaxis"}); w.Code != http.StatusConflict {
		t.Fatalf("double redeem: expected 409, got %d", w.Code)
	}
	if w = env.do(t, http.MethodPost, perkPath, token, gin.H{}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing description: expected 400, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/v0/clinic/cards/lookup", token, gin.H{"control_number": assigned.ControlNumber, "passcode": assigned.Passcode})
	if w.Code != http.StatusOK {
		t.Fatalf("lookup: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var looked cardView
	decode(t, w, &looked)
	if !looked.Perks[0].Claimed {
		t.Fatalf("expected first perk claimed after redemption")
	}
}

func TestClinicCannotAssignForeignLocation(t *testing.T) {
	env := setupClinicTestEnv(t)
	env.createClinic(t, "makati", "MKT")
	env.createClinic(t, "cavite", "CAV")
	generated := env.generate(t, 1)
	token := env.login(t, "makati")

	w := env.do(t, http.MethodPost, fmt.Sprintf("/v0/clinic/cards/%d/location", generated[0].ID), token, gin.H{"location_code": "CAV"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	card, errGet := env.manager.GetCard(context.Background(), generated[0].ID)
	if errGet != nil {
		t.Fatalf("get card: %v", errGet)
	}
	if card.LocationAssigned() {
		t.Fatalf("card location should stay pending, got %q", card.LocationCode)
	}
}

func TestClinicActivationRejectsWrongPasscode(t *testing.T) {
	env := setupClinicTestEnv(t)
	env.createClinic(t, "makati", "MKT")
	generated := env.generate(t, 1)
	token := env.login(t, "makati")

	card, errAssign := env.manager.AssignLocation(context.Background(), generated[0].ID, "MKT", cards.AdminActor(env.adminID))
	if errAssign != nil {
		t.Fatalf("assign location: %v", errAssign)
	}
	wrong := "MKT0000"
	if card.Passcode == wrong {
		wrong = "MKT0001"
	}

	w := env.do(t, http.MethodPost, "/v0/clinic/cards/activate", token, gin.H{"control_number": card.ControlNumber, "passcode": wrong})
	if w.Code != http.StatusNotFound {
		t.Fatalf("wrong passcode: expected 404, got %d", w.Code)
	}
	w = env.do(t, http.MethodPost, "/v0/clinic/cards/activate", token, gin.H{"control_number": card.ControlNumber, "passcode": "12"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed passcode: expected 400, got %d", w.Code)
	}
}

func TestDisabledClinicIsRejected(t *testing.T) {
	env := setupClinicTestEnv(t)
	clinic := env.createClinic(t, "makati", "MKT")
	token := env.login(t, "makati")

	if w := env.do(t, http.MethodGet, "/v0/clinic/me", token, nil); w.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", w.Code)
	}
	if errUpdate := env.db.Model(&models.Clinic{}).Where("id = ?", clinic.ID).Update("active", false).Error; errUpdate != nil {
		t.Fatalf("disable clinic: %v", errUpdate)
	}
	if w := env.do(t, http.MethodGet, "/v0/clinic/me", token, nil); w.Code != http.StatusForbidden {
		t.Fatalf("disabled clinic: expected 403, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/v0/clinic/login", "", gin.H{"username": "makati", "password": testPassword}); w.Code != http.StatusForbidden {
		t.Fatalf("disabled login: expected 403, got %d", w.Code)
	}
}

func TestAdminTokenIsRejectedByClinicRoutes(t *testing.T) {
	env := setupClinicTestEnv(t)
	token, errToken := security.GenerateAdminToken("clinic-secret-with-at-least-32-chars", env.adminID, "root", "sid", time.Hour)
	if errToken != nil {
		t.Fatalf("generate token: %v", errToken)
	}
	if w := env.do(t, http.MethodGet, "/v0/clinic/me", token, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
