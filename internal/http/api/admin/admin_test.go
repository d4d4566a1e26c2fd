package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/pquerna/otp/totp"
	"github.com/smileperks/cardhub/internal/cards"
	"github.com/smileperks/cardhub/internal/config"
	"github.com/smileperks/cardhub/internal/db"
	"github.com/smileperks/cardhub/internal/http/api/admin/permissions"
	"github.com/smileperks/cardhub/internal/models"
	"github.com/smileperks/cardhub/internal/security"
	"github.com/smileperks/cardhub/internal/session"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const testPassword = "correct-horse-battery"

type adminTestEnv struct {
	db     *gorm.DB
	router *gin.Engine
}

func setupAdminTestEnv(t *testing.T) *adminTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:admin_api_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	manager := cards.NewManager(conn, cards.WithRetryPolicy(cards.RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}))
	sessions := session.NewManager(session.NewMemoryStore())
	jwtCfg := config.JWTConfig{Secret: "test-secret-with-at-least-32-characters", Expiry: time.Hour}

	router := gin.New()
	RegisterAdminRoutes(router, conn, manager, sessions, jwtCfg)
	return &adminTestEnv{db: conn, router: router}
}

func (e *adminTestEnv) createAdmin(t *testing.T, username string, super bool, granted ...string) models.Admin {
	t.Helper()
	hash, errHash := security.HashPassword(testPassword)
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	raw, _ := permissions.MarshalPermissions(granted)
	admin := models.Admin{Username: username, Password: hash, Active: true, IsSuperAdmin: super, Permissions: datatypes.JSON(raw)}
	if errCreate := e.db.Create(&admin).Error; errCreate != nil {
		t.Fatalf("create admin: %v", errCreate)
	}
	return admin
}

func (e *adminTestEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *adminTestEnv) login(t *testing.T, username string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v0/admin/login", "", gin.H{"username": username, "password": testPassword})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, w, &resp)
	if resp.Token == "" {
		t.Fatalf("login returned no token: %s", w.Body.String())
	}
	return resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if errDecode := json.Unmarshal(w.Body.Bytes(), out); errDecode != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), errDecode)
	}
}

func TestAdminLoginRejectsBadCredentials(t *testing.T) {
	env := setupAdminTestEnv(t)
	env.createAdmin(t, "root", true)

	w := env.do(t, http.MethodPost, "/v0/admin/login", "", gin.H{"username": "root", "password": "wrong-password"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w = env.do(t, http.MethodGet, "/v0/admin/me", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestAdminBatchAndCardFlow(t *testing.T) {
	env := setupAdminTestEnv(t)
	env.createAdmin(t, "root", true)
	token := env.login(t, "root")

	w := env.do(t, http.MethodPost, "/v0/admin/batches", token, gin.H{
		"total_cards":        3,
		"distribution_label": "Cavite launch",
		"idempotency_key":    "cavite-2026-03",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("generate batch: expected 201, got %d body=%s", w.Code, w.Body.String())
	}
	var created struct {
		Batch struct {
			ID             uint64 `json:"id"`
			CardsGenerated int    `json:"cards_generated"`
		} `json:"batch"`
		Cards []struct {
			ID            uint64 `json:"id"`
			ControlNumber string `json:"control_number"`
			Passcode      string `json:"passcode"`
			Perks         []any  `json:"perks"`
		} `json:"cards"`
	}
	decode(t, w, &created)
	if created.Batch.CardsGenerated != 3 || len(created.Cards) != 3 {
		t.Fatalf("expected 3 cards, got %+v", created)
	}
	if created.Cards[0].ControlNumber != "MOC-0001" || len(created.Cards[0].Passcode) != 4 {
		t.Fatalf("unexpected first card %+v", created.Cards[0])
	}
	if len(created.Cards[0].Perks) != len(db.DefaultPerkTypes) {
		t.Fatalf("expected default perks, got %d", len(created.Cards[0].Perks))
	}

	replay := env.do(t, http.MethodPost, "/v0/admin/batches", token, gin.H{
		"total_cards":        3,
		"distribution_label": "Cavite launch",
		"idempotency_key":    "cavite-2026-03",
	})
	if replay.Code != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d body=%s", replay.Code, replay.Body.String())
	}
	mismatch := env.do(t, http.MethodPost, "/v0/admin/batches", token, gin.H{
		"total_cards":        3,
		"distribution_label": "Laguna launch",
		"idempotency_key":    "cavite-2026-03",
	})
	if mismatch.Code != http.StatusConflict {
		t.Fatalf("replay with another label: expected 409, got %d", mismatch.Code)
	}

	if w = env.do(t, http.MethodGet, "/v0/admin/cards/MOC-0002", token, nil); w.Code != http.StatusOK {
		t.Fatalf("get by control number: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if w = env.do(t, http.MethodGet, fmt.Sprintf("/v0/admin/cards/%d", created.Cards[1].ID), token, nil); w.Code != http.StatusOK {
		t.Fatalf("get by id: expected 200, got %d", w.Code)
	}
	if w = env.do(t, http.MethodGet, "/v0/admin/cards/MOC-9999", token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown control number: expected 404, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/v0/admin/cards?status=unactivated&page_size=2", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list cards: expected 200, got %d", w.Code)
	}
	var listed struct {
		Cards      []any `json:"cards"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	decode(t, w, &listed)
	if len(listed.Cards) != 2 || listed.Pagination.Total != 3 {
		t.Fatalf("expected page of 2 out of 3, got %d/%d", len(listed.Cards), listed.Pagination.Total)
	}

	suspend := env.do(t, http.MethodPost, fmt.Sprintf("/v0/admin/cards/%d/suspend", created.Cards[0].ID), token, gin.H{"reason": "lost"})
	if suspend.Code != http.StatusConflict {
		t.Fatalf("suspending an unactivated card: expected 409, got %d", suspend.Code)
	}

	w = env.do(t, http.MethodGet, fmt.Sprintf("/v0/admin/cards/%d/transactions", created.Cards[0].ID), token, nil)
	var trail struct {
		Transactions []struct {
			TransactionType string `json:"transaction_type"`
		} `json:"transactions"`
	}
	decode(t, w, &trail)
	if len(trail.Transactions) != 1 || trail.Transactions[0].TransactionType != string(models.TransactionCreated) {
		t.Fatalf("expected one created entry, got %+v", trail.Transactions)
	}
}

func TestAdminPermissionMiddleware(t *testing.T) {
	env := setupAdminTestEnv(t)
	env.createAdmin(t, "viewer", false, "GET /v0/admin/cards")
	token := env.login(t, "viewer")

	if w := env.do(t, http.MethodGet, "/v0/admin/cards", token, nil); w.Code != http.StatusOK {
		t.Fatalf("granted route: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodPost, "/v0/admin/batches", token, gin.H{"total_cards": 1}); w.Code != http.StatusForbidden {
		t.Fatalf("missing permission: expected 403, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/v0/admin/me", token, nil); w.Code != http.StatusOK {
		t.Fatalf("self route: expected 200, got %d", w.Code)
	}
}

func TestAdminDisabledAccountLosesAccess(t *testing.T) {
	env := setupAdminTestEnv(t)
	admin := env.createAdmin(t, "root", true)
	token := env.login(t, "root")

	if errUpdate := env.db.Model(&models.Admin{}).Where("id = ?", admin.ID).Update("active", false).Error; errUpdate != nil {
		t.Fatalf("disable admin: %v", errUpdate)
	}
	if w := env.do(t, http.MethodGet, "/v0/admin/me", token, nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for disabled admin, got %d", w.Code)
	}
}

func TestAdminLogoutRevokesToken(t *testing.T) {
	env := setupAdminTestEnv(t)
	env.createAdmin(t, "root", true)
	token := env.login(t, "root")

	if w := env.do(t, http.MethodPost, "/v0/admin/logout", token, nil); w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/v0/admin/me", token, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", w.Code)
	}
}

func TestAdminTOTPEnrolmentAndLogin(t *testing.T) {
	env := setupAdminTestEnv(t)
	env.createAdmin(t, "root", true)
	token := env.login(t, "root")

	w := env.do(t, http.MethodPost, "/v0/admin/mfa/totp/prepare", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("prepare: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var prepared struct {
		Secret string `json:"secret"`
	}
	decode(t, w, &prepared)
	code, errCode := totp.GenerateCode(prepared.Secret, time.Now())
	if errCode != nil {
		t.Fatalf("generate code: %v", errCode)
	}
	if w = env.do(t, http.MethodPost, "/v0/admin/mfa/totp/confirm", token, gin.H{"code": code}); w.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d body=%s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/v0/admin/login", "", gin.H{"username": "root", "password": testPassword})
	var challenge struct {
		MFARequired bool   `json:"mfa_required"`
		Challenge   string `json:"challenge"`
		Token       string `json:"token"`
	}
	decode(t, w, &challenge)
	if !challenge.MFARequired || challenge.Challenge == "" || challenge.Token != "" {
		t.Fatalf("expected mfa challenge, got %s", w.Body.String())
	}

	if w = env.do(t, http.MethodPost, "/v0/admin/login/totp", "", gin.H{"challenge": challenge.Challenge, "code": code}); w.Code != http.StatusOK {
		t.Fatalf("totp login: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if w = env.do(t, http.MethodPost, "/v0/admin/login/totp", "", gin.H{"challenge": challenge.Challenge, "code": code}); w.Code != http.StatusUnauthorized {
		t.Fatalf("reused challenge: expected 401, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/v0/admin/login", "", gin.H{"username": "root", "password": testPassword})
	decode(t, w, &challenge)
	wrong := code[:len(code)-1] + string('0'+(code[len(code)-1]-'0'+1)%10)
	if w = env.do(t, http.MethodPost, "/v0/admin/login/totp", "", gin.H{"challenge": challenge.Challenge, "code": wrong}); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong code: expected 401, got %d", w.Code)
	}
	if w = env.do(t, http.MethodPost, "/v0/admin/login/totp", "", gin.H{"challenge": challenge.Challenge, "code": code}); w.Code != http.StatusUnauthorized {
		t.Fatalf("a wrong code must burn the challenge, got %d", w.Code)
	}
}

func TestAdminSettingsUpdateChangesPrefix(t *testing.T) {
	env := setupAdminTestEnv(t)
	env.createAdmin(t, "root", true)
	token := env.login(t, "root")

	if w := env.do(t, http.MethodPut, "/v0/admin/settings/CONTROL_NUMBER_PREFIX", token, gin.H{"value": "x1"}); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid prefix: expected 400, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPut, "/v0/admin/settings/NOPE", token, gin.H{"value": true}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown key: expected 404, got %d", w.Code)
	}
	w := env.do(t, http.MethodPut, "/v0/admin/settings/CONTROL_NUMBER_PREFIX", token, gin.H{"value": "smp"})
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Value string `json:"value"`
	}
	decode(t, w, &resp)
	if resp.Value != "SMP" {
		t.Fatalf("expected normalized prefix SMP, got %q", resp.Value)
	}
}

func TestAdminClinicManagement(t *testing.T) {
	env := setupAdminTestEnv(t)
	env.createAdmin(t, "root", true)
	token := env.login(t, "root")

	body := gin.H{"name": "Makati Smiles", "code": "mkt", "username": "makati", "password": "clinic-pass-1"}
	w := env.do(t, http.MethodPost, "/v0/admin/clinics", token, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create clinic: expected 201, got %d body=%s", w.Code, w.Body.String())
	}
	var clinic struct {
		ID   uint64 `json:"id"`
		Code string `json:"code"`
	}
	decode(t, w, &clinic)
	if clinic.Code != "MKT" {
		t.Fatalf("expected upper-cased code, got %q", clinic.Code)
	}
	if w = env.do(t, http.MethodPost, "/v0/admin/clinics", token, body); w.Code != http.StatusConflict {
		t.Fatalf("duplicate clinic: expected 409, got %d", w.Code)
	}
	bad := gin.H{"name": "Bad", "code": "M1", "username": "bad", "password": "clinic-pass-1"}
	if w = env.do(t, http.MethodPost, "/v0/admin/clinics", token, bad); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid code: expected 400, got %d", w.Code)
	}

	if w = env.do(t, http.MethodPost, fmt.Sprintf("/v0/admin/clinics/%d/disable", clinic.ID), token, nil); w.Code != http.StatusOK {
		t.Fatalf("disable: expected 200, got %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/v0/admin/clinics?active=false", token, nil)
	var listed struct {
		Clinics []struct {
			ID uint64 `json:"id"`
		} `json:"clinics"`
	}
	decode(t, w, &listed)
	if len(listed.Clinics) != 1 || listed.Clinics[0].ID != clinic.ID {
		t.Fatalf("expected the disabled clinic, got %+v", listed.Clinics)
	}
}

func TestAdminPerkTemplates(t *testing.T) {
	env := setupAdminTestEnv(t)
	env.createAdmin(t, "root", true)
	token := env.login(t, "root")

	w := env.do(t, http.MethodPost, "/v0/admin/perk-templates", token, gin.H{"name": "basic", "perk_types": []string{"consultation", "bogus"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown perk type: expected 400, got %d", w.Code)
	}
	w = env.do(t, http.MethodPost, "/v0/admin/perk-templates", token, gin.H{
		"name":       "basic",
		"perk_types": []string{"Consultation", "xray"},
		"is_default": true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create template: expected 201, got %d body=%s", w.Code, w.Body.String())
	}
	var created struct {
		ID uint64 `json:"id"`
	}
	decode(t, w, &created)

	var defaults []models.PerkTemplate
	if errFind := env.db.Where("is_default = ?", true).Find(&defaults).Error; errFind != nil {
		t.Fatalf("find defaults: %v", errFind)
	}
	if len(defaults) != 1 || defaults[0].ID != created.ID {
		t.Fatalf("expected the new template to be the only default, got %+v", defaults)
	}

	w = env.do(t, http.MethodPost, "/v0/admin/batches", token, gin.H{"total_cards": 1})
	var generated struct {
		Cards []struct {
			Perks []any `json:"perks"`
		} `json:"cards"`
	}
	decode(t, w, &generated)
	if len(generated.Cards) != 1 || len(generated.Cards[0].Perks) != 2 {
		t.Fatalf("batch should use the new default template, got %s", w.Body.String())
	}

	if w = env.do(t, http.MethodDelete, fmt.Sprintf("/v0/admin/perk-templates/%d", created.ID), token, nil); w.Code != http.StatusConflict {
		t.Fatalf("delete default template: expected 409, got %d", w.Code)
	}
}

func TestAdminAccountsListAndDeleteGuards(t *testing.T) {
	env := setupAdminTestEnv(t)
	root := env.createAdmin(t, "root", true)
	clerk := env.createAdmin(t, "clerk", false)
	token := env.login(t, "root")

	if w := env.do(t, http.MethodPost, "/v0/admin/batches", token, gin.H{"total_cards": 1}); w.Code != http.StatusCreated {
		t.Fatalf("create batch: expected 201, got %d body=%s", w.Code, w.Body.String())
	}

	w := env.do(t, http.MethodGet, "/v0/admin/admins?page_size=10", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list admins: expected 200, got %d", w.Code)
	}
	var listed struct {
		Admins []struct {
			Username         string `json:"username"`
			BatchesGenerated int64  `json:"batches_generated"`
		} `json:"admins"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	decode(t, w, &listed)
	if listed.Pagination.Total != 2 || len(listed.Admins) != 2 {
		t.Fatalf("expected two admins, got %+v", listed)
	}
	for _, item := range listed.Admins {
		want := int64(0)
		if item.Username == "root" {
			want = 1
		}
		if item.BatchesGenerated != want {
			t.Fatalf("admin %s: batches_generated = %d, want %d", item.Username, item.BatchesGenerated, want)
		}
	}

	if w = env.do(t, http.MethodDelete, fmt.Sprintf("/v0/admin/admins/%d", root.ID), token, nil); w.Code == http.StatusNoContent {
		t.Fatalf("deleting yourself should be refused")
	}
	if w = env.do(t, http.MethodDelete, fmt.Sprintf("/v0/admin/admins/%d", clerk.ID), token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete clerk: expected 204, got %d body=%s", w.Code, w.Body.String())
	}
}
