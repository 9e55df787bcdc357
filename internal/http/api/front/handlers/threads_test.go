package handlers

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/models"
	"gorm.io/gorm"
)

func newThreadRouter(db *gorm.DB, userID uint64) *gin.Engine {
	router := gin.New()
	handler := NewThreadHandler(db, nil)
	group := router.Group("/threads", asUser(userID))
	group.GET("", handler.List)
	group.POST("", handler.Create)
	group.GET("/:id", handler.Get)
	group.PUT("/:id", handler.Update)
	group.DELETE("/:id", handler.Delete)
	group.GET("/:id/messages", handler.ListMessages)
	return router
}

func seedThreadRow(t *testing.T, db *gorm.DB, thread models.Thread) models.Thread {
	t.Helper()
	if thread.MaxTokens == 0 {
		thread.MaxTokens = 1000
	}
	if thread.Temperature == 0 {
		thread.Temperature = 0.7
	}
	if err := db.Create(&thread).Error; err != nil {
		t.Fatalf("seed thread: %v", err)
	}
	return thread
}

func TestThreadCreate(t *testing.T) {
	db := openHandlerTestDB(t)
	provider := seedHandlerProvider(t, db, "openai")
	model := seedHandlerModel(t, db, provider.ID, "gpt-4o")
	router := newThreadRouter(db, 1)

	rec := doJSON(t, router, http.MethodPost, "/threads", map[string]any{
		"title":       "kickoff",
		"provider_id": provider.ID,
		"model_id":    model.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["MaxTokens"].(float64) != 1000 {
		t.Fatalf("MaxTokens = %v, want default 1000", body["MaxTokens"])
	}
	if body["Temperature"].(float64) != 0.7 {
		t.Fatalf("Temperature = %v, want default 0.7", body["Temperature"])
	}
}

func TestThreadCreateValidation(t *testing.T) {
	db := openHandlerTestDB(t)
	provider := seedHandlerProvider(t, db, "openai")
	model := seedHandlerModel(t, db, provider.ID, "gpt-4o")
	otherProvider := seedHandlerProvider(t, db, "anthropic")
	router := newThreadRouter(db, 1)

	rec := doJSON(t, router, http.MethodPost, "/threads", map[string]any{
		"title": "", "provider_id": provider.ID, "model_id": model.ID,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty title: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/threads", map[string]any{
		"title": "t", "provider_id": otherProvider.ID, "model_id": model.ID,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("model from other provider: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/threads", map[string]any{
		"title": "t", "provider_id": provider.ID, "model_id": model.ID, "temperature": 1.5,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("temperature out of range: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/threads", map[string]any{
		"title": "t", "provider_id": provider.ID, "model_id": model.ID, "max_tokens": 999999,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("max_tokens beyond context: status = %d, want 400", rec.Code)
	}
}

func TestThreadListOrderingAndArchiveFilter(t *testing.T) {
	db := openHandlerTestDB(t)
	provider := seedHandlerProvider(t, db, "openai")
	model := seedHandlerModel(t, db, provider.ID, "gpt-4o")
	router := newThreadRouter(db, 1)

	now := time.Now().UTC()
	seedThreadRow(t, db, models.Thread{UserID: 1, Title: "old", ProviderID: provider.ID, ModelID: model.ID, LastMessageAt: now.Add(-2 * time.Hour)})
	seedThreadRow(t, db, models.Thread{UserID: 1, Title: "recent", ProviderID: provider.ID, ModelID: model.ID, LastMessageAt: now})
	seedThreadRow(t, db, models.Thread{UserID: 1, Title: "pinned", ProviderID: provider.ID, ModelID: model.ID, IsPinned: true, LastMessageAt: now.Add(-time.Hour)})
	archived := seedThreadRow(t, db, models.Thread{UserID: 1, Title: "archived", ProviderID: provider.ID, ModelID: model.ID, LastMessageAt: now})
	if err := db.Model(&models.Thread{}).Where("id = ?", archived.ID).Update("is_archived", true).Error; err != nil {
		t.Fatalf("archive thread: %v", err)
	}
	seedThreadRow(t, db, models.Thread{UserID: 2, Title: "foreign", ProviderID: provider.ID, ModelID: model.ID, LastMessageAt: now})

	rec := doJSON(t, router, http.MethodGet, "/threads", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	threads := decodeBody(t, rec)["threads"].([]any)
	if len(threads) != 3 {
		t.Fatalf("threads = %d, want 3 (archived and foreign excluded)", len(threads))
	}
	titles := make([]string, 0, len(threads))
	for _, raw := range threads {
		titles = append(titles, raw.(map[string]any)["Title"].(string))
	}
	if titles[0] != "pinned" || titles[1] != "recent" || titles[2] != "old" {
		t.Fatalf("order = %v, want [pinned recent old]", titles)
	}

	rec = doJSON(t, router, http.MethodGet, "/threads?archived=true", nil)
	threads = decodeBody(t, rec)["threads"].([]any)
	if len(threads) != 4 {
		t.Fatalf("threads with archived = %d, want 4", len(threads))
	}
}

func TestThreadUpdateFlagsAndValidation(t *testing.T) {
	db := openHandlerTestDB(t)
	provider := seedHandlerProvider(t, db, "openai")
	model := seedHandlerModel(t, db, provider.ID, "gpt-4o")
	router := newThreadRouter(db, 1)

	thread := seedThreadRow(t, db, models.Thread{UserID: 1, Title: "t", ProviderID: provider.ID, ModelID: model.ID, LastMessageAt: time.Now()})

	rec := doJSON(t, router, http.MethodPut, fmt.Sprintf("/threads/%d", thread.ID), map[string]any{
		"is_pinned": true, "is_archived": true, "title": "renamed",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var reloaded models.Thread
	if err := db.First(&reloaded, thread.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.IsPinned || !reloaded.IsArchived || reloaded.Title != "renamed" {
		t.Fatalf("update not persisted: %+v", reloaded)
	}

	rec = doJSON(t, router, http.MethodPut, fmt.Sprintf("/threads/%d", thread.ID), map[string]any{
		"temperature": 2.0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad temperature: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPut, "/threads/9999", map[string]any{"title": "x"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing thread: status = %d, want 404", rec.Code)
	}
}

func TestThreadDeleteRemovesMessages(t *testing.T) {
	db := openHandlerTestDB(t)
	provider := seedHandlerProvider(t, db, "openai")
	model := seedHandlerModel(t, db, provider.ID, "gpt-4o")
	router := newThreadRouter(db, 1)

	thread := seedThreadRow(t, db, models.Thread{UserID: 1, Title: "t", ProviderID: provider.ID, ModelID: model.ID, LastMessageAt: time.Now()})
	for _, content := range []string{"hi", "hello"} {
		msg := models.Message{ThreadID: thread.ID, Role: models.RoleUser, Content: content}
		if err := db.Create(&msg).Error; err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	rec := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/threads/%d", thread.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var messageCount int64
	db.Model(&models.Message{}).Where("thread_id = ?", thread.ID).Count(&messageCount)
	if messageCount != 0 {
		t.Fatalf("messages left behind = %d, want 0", messageCount)
	}

	rec = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/threads/%d", thread.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: status = %d, want 404", rec.Code)
	}
}

func TestThreadListMessagesScopedToOwner(t *testing.T) {
	db := openHandlerTestDB(t)
	provider := seedHandlerProvider(t, db, "openai")
	model := seedHandlerModel(t, db, provider.ID, "gpt-4o")
	router := newThreadRouter(db, 1)

	foreign := seedThreadRow(t, db, models.Thread{UserID: 2, Title: "t", ProviderID: provider.ID, ModelID: model.ID, LastMessageAt: time.Now()})
	msg := models.Message{ThreadID: foreign.ID, Role: models.RoleUser, Content: "secret"}
	if err := db.Create(&msg).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}

	rec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/threads/%d/messages", foreign.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign messages: status = %d, want 404", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/threads/%d", foreign.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign get: status = %d, want 404", rec.Code)
	}
}
