package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/modelgate/modelgate/internal/models"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func openHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	errMigrate := db.AutoMigrate(
		&models.User{}, &models.Provider{}, &models.AIModel{}, &models.Credential{},
		&models.ModelPreference{}, &models.UsageStatistic{},
		&models.ThreadCategory{}, &models.Thread{}, &models.Message{}, &models.SavedPrompt{},
	)
	if errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return db
}

// asUser is a test middleware standing in for JWT auth.
func asUser(userID uint64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	}
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var errMarshal error
		payload, errMarshal = json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &out); errDecode != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), errDecode)
	}
	return out
}

func seedHandlerProvider(t *testing.T, db *gorm.DB, code string) models.Provider {
	t.Helper()
	provider := models.Provider{Code: code, DisplayName: code, IsActive: true}
	if errCreate := db.Create(&provider).Error; errCreate != nil {
		t.Fatalf("seed provider: %v", errCreate)
	}
	return provider
}

func seedHandlerModel(t *testing.T, db *gorm.DB, providerID uint64, code string) models.AIModel {
	t.Helper()
	model := models.AIModel{ProviderID: providerID, Code: code, DisplayName: code, IsActive: true, MaxContextLength: 16385}
	if errCreate := db.Create(&model).Error; errCreate != nil {
		t.Fatalf("seed model: %v", errCreate)
	}
	return model
}

func seedHandlerCredential(t *testing.T, db *gorm.DB, userID, providerID uint64) models.Credential {
	t.Helper()
	cred := models.Credential{UserID: userID, ProviderID: providerID, SecretValue: "sk-handler-test-key-0123456789", IsActive: true}
	if errCreate := db.Create(&cred).Error; errCreate != nil {
		t.Fatalf("seed credential: %v", errCreate)
	}
	return cred
}
