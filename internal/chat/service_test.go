package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/modelgate/modelgate/internal/models"
	"github.com/modelgate/modelgate/internal/pricing"
	"github.com/modelgate/modelgate/internal/providers"
	"github.com/modelgate/modelgate/internal/usage"
	"gorm.io/gorm"
)

// fakeClient scripts provider behavior for pipeline tests.
type fakeClient struct {
	code       models.ProviderCode
	text       string
	tokens     providers.TokenUsage
	generated  int
	genErr     *providers.ClientError
	streamFunc func(ctx context.Context) <-chan providers.StreamChunk
}

func (f *fakeClient) Code() models.ProviderCode { return f.code }

func (f *fakeClient) Generate(ctx context.Context, req providers.Request) (*providers.Result, *providers.ClientError) {
	if f.genErr != nil {
		return nil, f.genErr
	}
	f.generated++
	return &providers.Result{
		Text:     f.text,
		Tokens:   f.tokens,
		Cost:     0.123,
		Model:    req.Model,
		Provider: f.code,
	}, nil
}

func (f *fakeClient) GenerateConversation(ctx context.Context, req providers.Request) (*providers.Result, *providers.ClientError) {
	return f.Generate(ctx, req)
}

func (f *fakeClient) Stream(ctx context.Context, req providers.Request) (<-chan providers.StreamChunk, *providers.ClientError) {
	return f.streamFunc(ctx), nil
}

func (f *fakeClient) StreamConversation(ctx context.Context, req providers.Request) (<-chan providers.StreamChunk, *providers.ClientError) {
	return f.streamFunc(ctx), nil
}

func (f *fakeClient) CountTokens(text, model string) providers.TokenCount {
	return providers.TokenCount{Count: len(text) / 4, Estimated: true}
}

func (f *fakeClient) Cost(promptTokens, completionTokens int, model string) float64 {
	return pricing.BuiltinCost(f.code, model, promptTokens, completionTokens)
}

// testEnv is one fully seeded chat pipeline over in-memory SQLite.
type testEnv struct {
	db      *gorm.DB
	service *Service
	client  *fakeClient

	user     models.User
	provider models.Provider
	model    models.AIModel
	cred     models.Credential
	thread   models.Thread
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:chat_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	errMigrate := db.AutoMigrate(
		&models.User{}, &models.Provider{}, &models.AIModel{}, &models.Credential{},
		&models.ModelPreference{}, &models.UsageStatistic{}, &models.Thread{}, &models.Message{},
	)
	if errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	env := &testEnv{db: db}
	env.user = models.User{Username: "alice", Email: "alice@example.com", Password: "x", IsActive: true}
	if err := db.Create(&env.user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	env.provider = models.Provider{Code: "openai", DisplayName: "OpenAI", IsActive: true}
	if err := db.Create(&env.provider).Error; err != nil {
		t.Fatalf("seed provider: %v", err)
	}
	env.model = models.AIModel{ProviderID: env.provider.ID, Code: "gpt-3.5-turbo", DisplayName: "GPT-3.5", IsActive: true, MaxContextLength: 16385}
	if err := db.Create(&env.model).Error; err != nil {
		t.Fatalf("seed model: %v", err)
	}
	env.cred = models.Credential{UserID: env.user.ID, ProviderID: env.provider.ID, SecretValue: "sk-test", IsActive: true}
	if err := db.Create(&env.cred).Error; err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	env.thread = models.Thread{
		UserID:        env.user.ID,
		Title:         "test thread",
		ProviderID:    env.provider.ID,
		ModelID:       env.model.ID,
		MaxTokens:     1000,
		Temperature:   0.7,
		LastMessageAt: time.Now().UTC(),
	}
	if err := db.Create(&env.thread).Error; err != nil {
		t.Fatalf("seed thread: %v", err)
	}

	env.client = &fakeClient{
		code:   models.ProviderOpenAI,
		text:   "assistant reply",
		tokens: providers.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}
	clientCache := providers.NewClientCache()
	clientCache.Put(env.cred.ID, env.client)

	env.service = NewService(db,
		providers.NewResolver(db, clientCache),
		pricing.NewCalculator(db),
		usage.NewRecorder(db),
		nil,
	)
	return env
}

// waitForUsageRow polls for the deferred accounting write.
func waitForUsageRow(t *testing.T, db *gorm.DB, userID uint64) models.UsageStatistic {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var row models.UsageStatistic
		if errFind := db.Where("user_id = ?", userID).First(&row).Error; errFind == nil {
			return row
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("usage row never appeared")
	return models.UsageStatistic{}
}

func TestCompletePricesWithBuiltinTable(t *testing.T) {
	env := newTestEnv(t)

	out, errComplete := env.service.Complete(context.Background(), env.user.ID, CompletionInput{
		ProviderCode: "openai",
		Model:        "gpt-3.5-turbo",
		Prompt:       "hello",
	})
	if errComplete != nil {
		t.Fatalf("complete: %v", errComplete)
	}
	if out.Cached {
		t.Fatalf("no cache configured, result must not be cached")
	}
	if out.Result.Text != "assistant reply" {
		t.Fatalf("unexpected text %q", out.Result.Text)
	}
	if out.Pricing.Source != pricing.SourceTable {
		t.Fatalf("expected table pricing, got %s", out.Pricing.Source)
	}
	want := 100*0.0015/1000 + 50*0.002/1000
	if out.Result.Cost < want-1e-9 || out.Result.Cost > want+1e-9 {
		t.Fatalf("expected cost %f, got %f", want, out.Result.Cost)
	}

	row := waitForUsageRow(t, env.db, env.user.ID)
	if row.RequestCount != 1 || row.TotalTokens != 150 {
		t.Fatalf("unexpected usage row: %+v", row)
	}
	if row.ModelID != env.model.ID {
		t.Fatalf("expected usage attributed to model %d, got %d", env.model.ID, row.ModelID)
	}
}

func TestCompleteAppliesDefaultPreference(t *testing.T) {
	env := newTestEnv(t)
	override := 0.01
	pref := models.ModelPreference{
		UserID:             env.user.ID,
		CredentialID:       env.cred.ID,
		ProviderID:         env.provider.ID,
		ModelID:            env.model.ID,
		MaxTokens:          512,
		Temperature:        0.3,
		SystemPrompt:       "be brief",
		IsDefault:          true,
		InputCostOverride:  &override,
		OutputCostOverride: &override,
	}
	if err := env.db.Create(&pref).Error; err != nil {
		t.Fatalf("seed preference: %v", err)
	}

	out, errComplete := env.service.Complete(context.Background(), env.user.ID, CompletionInput{
		ProviderCode: "openai",
		Model:        "gpt-3.5-turbo",
		Prompt:       "hello",
	})
	if errComplete != nil {
		t.Fatalf("complete: %v", errComplete)
	}
	if out.Pricing.Source != pricing.SourceOverride {
		t.Fatalf("expected override pricing via default preference, got %s", out.Pricing.Source)
	}
	want := 100*0.01/1000 + 50*0.01/1000
	if out.Result.Cost < want-1e-9 || out.Result.Cost > want+1e-9 {
		t.Fatalf("expected overridden cost %f, got %f", want, out.Result.Cost)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var reloaded models.ModelPreference
		if err := env.db.First(&reloaded, pref.ID).Error; err == nil && reloaded.UseCount == 1 {
			if reloaded.LastUsedAt == nil {
				t.Fatalf("expected last_used_at stamped")
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("preference use count never bumped")
}

func TestCompletePropagatesClientError(t *testing.T) {
	env := newTestEnv(t)
	env.client.genErr = &providers.ClientError{Type: providers.ErrorRateLimit, Message: "slow down"}

	_, errComplete := env.service.Complete(context.Background(), env.user.ID, CompletionInput{
		ProviderCode: "openai",
		Model:        "gpt-3.5-turbo",
		Prompt:       "hello",
	})
	var clientErr *providers.ClientError
	if !errors.As(errComplete, &clientErr) {
		t.Fatalf("expected ClientError, got %v", errComplete)
	}
	if clientErr.Type != providers.ErrorRateLimit {
		t.Fatalf("expected rate_limit, got %s", clientErr.Type)
	}
}

func TestCompleteCredentialNotFound(t *testing.T) {
	env := newTestEnv(t)
	if err := env.db.Delete(&models.Credential{}, env.cred.ID).Error; err != nil {
		t.Fatalf("delete credential: %v", err)
	}

	_, errComplete := env.service.Complete(context.Background(), env.user.ID, CompletionInput{
		ProviderCode: "openai",
		Model:        "gpt-3.5-turbo",
		Prompt:       "hello",
	})
	if !errors.Is(errComplete, providers.ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", errComplete)
	}
}

func TestSendMessagePersistsBothTurns(t *testing.T) {
	env := newTestEnv(t)

	assistant, errSend := env.service.SendMessage(context.Background(), env.user.ID, env.thread.ID, SendInput{
		Content: "what is two plus two",
	})
	if errSend != nil {
		t.Fatalf("send: %v", errSend)
	}
	if assistant.Role != models.RoleAssistant || assistant.Content != "assistant reply" {
		t.Fatalf("unexpected assistant message: %+v", assistant)
	}
	if assistant.TokensTotal != 150 {
		t.Fatalf("expected token usage on message, got %d", assistant.TokensTotal)
	}

	var rows []models.Message
	if err := env.db.Where("thread_id = ?", env.thread.ID).Order("id ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load messages: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected user and assistant rows, got %d", len(rows))
	}
	if rows[0].Role != models.RoleUser || rows[0].Content != "what is two plus two" {
		t.Fatalf("unexpected user row: %+v", rows[0])
	}

	var thread models.Thread
	if err := env.db.First(&thread, env.thread.ID).Error; err != nil {
		t.Fatalf("reload thread: %v", err)
	}
	if !thread.LastMessageAt.After(env.thread.LastMessageAt) {
		t.Fatalf("expected last_message_at refreshed")
	}
}

func TestSendMessageUnknownThread(t *testing.T) {
	env := newTestEnv(t)

	_, errSend := env.service.SendMessage(context.Background(), env.user.ID, 9999, SendInput{Content: "hi"})
	if !errors.Is(errSend, ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound, got %v", errSend)
	}
}

func TestSendMessageOtherUsersThread(t *testing.T) {
	env := newTestEnv(t)

	_, errSend := env.service.SendMessage(context.Background(), env.user.ID+1, env.thread.ID, SendInput{Content: "hi"})
	if !errors.Is(errSend, ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound for foreign thread, got %v", errSend)
	}
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	env := newTestEnv(t)

	_, errSend := env.service.SendMessage(context.Background(), env.user.ID, env.thread.ID, SendInput{Content: ""})
	if errSend == nil {
		t.Fatalf("expected validation error for empty content")
	}
}

func TestStreamMessageDeliversAndPersists(t *testing.T) {
	env := newTestEnv(t)
	env.client.streamFunc = func(ctx context.Context) <-chan providers.StreamChunk {
		out := make(chan providers.StreamChunk, 4)
		out <- providers.StreamChunk{Delta: "four"}
		out <- providers.StreamChunk{Delta: ", obviously"}
		out <- providers.StreamChunk{
			Done:   true,
			Tokens: &providers.TokenUsage{PromptTokens: 10, CompletionTokens: 4, TotalTokens: 14},
			Cost:   0.002,
		}
		close(out)
		return out
	}

	events, errStream := env.service.StreamMessage(context.Background(), env.user.ID, env.thread.ID, SendInput{
		Content: "what is two plus two",
	})
	if errStream != nil {
		t.Fatalf("stream: %v", errStream)
	}

	var text string
	var terminal *StreamEvent
	for event := range events {
		if event.Done {
			e := event
			terminal = &e
			continue
		}
		text += event.Delta
	}
	if text != "four, obviously" {
		t.Fatalf("unexpected streamed text %q", text)
	}
	if terminal == nil || terminal.Message == nil {
		t.Fatalf("expected terminal event with persisted message")
	}
	if terminal.Message.Content != "four, obviously" {
		t.Fatalf("unexpected persisted content %q", terminal.Message.Content)
	}
	if terminal.Message.Metadata != nil {
		t.Fatalf("complete stream must not be marked stopped_early")
	}
	if terminal.Message.TokensTotal != 14 {
		t.Fatalf("expected stream usage persisted, got %d", terminal.Message.TokensTotal)
	}
}

func TestStreamMessageCancelKeepsPartialText(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.client.streamFunc = func(streamCtx context.Context) <-chan providers.StreamChunk {
		out := make(chan providers.StreamChunk)
		go func() {
			defer close(out)
			out <- providers.StreamChunk{Delta: "partial "}
			out <- providers.StreamChunk{Delta: "answer"}
			<-streamCtx.Done()
		}()
		return out
	}

	events, errStream := env.service.StreamMessage(ctx, env.user.ID, env.thread.ID, SendInput{
		Content: "long question",
	})
	if errStream != nil {
		t.Fatalf("stream: %v", errStream)
	}

	received := 0
	for range events {
		received++
		if received == 2 {
			cancel()
		}
	}
	if received < 2 {
		t.Fatalf("expected both deltas before cancel, got %d", received)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var msg models.Message
		errFind := env.db.
			Where("thread_id = ? AND role = ?", env.thread.ID, models.RoleAssistant).
			First(&msg).Error
		if errFind == nil {
			if msg.Content != "partial answer" {
				t.Fatalf("expected partial text persisted, got %q", msg.Content)
			}
			var meta map[string]any
			if errDecode := json.Unmarshal(msg.Metadata, &meta); errDecode != nil {
				t.Fatalf("decode metadata: %v", errDecode)
			}
			if stopped, _ := meta["stopped_early"].(bool); !stopped {
				t.Fatalf("expected stopped_early metadata, got %v", meta)
			}
			if msg.TokensCompletion <= 0 {
				t.Fatalf("expected estimated completion tokens, got %d", msg.TokensCompletion)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("partial assistant message never persisted")
}

func TestStreamMessageProviderErrorIsOnlyTerminal(t *testing.T) {
	env := newTestEnv(t)
	env.client.streamFunc = func(ctx context.Context) <-chan providers.StreamChunk {
		out := make(chan providers.StreamChunk, 2)
		out <- providers.StreamChunk{Delta: "partial "}
		out <- providers.StreamChunk{Err: &providers.ClientError{Type: providers.ErrorRateLimit, Message: "slow down"}}
		close(out)
		return out
	}

	events, errStream := env.service.StreamMessage(context.Background(), env.user.ID, env.thread.ID, SendInput{
		Content: "hi there",
	})
	if errStream != nil {
		t.Fatalf("stream: %v", errStream)
	}

	var text string
	terminals := 0
	var terminalErr *providers.ClientError
	for event := range events {
		if event.Done {
			terminals++
			terminalErr = event.Err
			continue
		}
		text += event.Delta
	}
	if terminals != 1 {
		t.Fatalf("terminal events = %d, want exactly 1", terminals)
	}
	if terminalErr == nil || terminalErr.Type != providers.ErrorRateLimit {
		t.Fatalf("expected rate_limit terminal error, got %+v", terminalErr)
	}
	if text != "partial " {
		t.Fatalf("unexpected streamed text %q", text)
	}

	// The channel closes only after the goroutine finished, so the
	// partial is already persisted and no usage write is pending.
	var msg models.Message
	errFind := env.db.
		Where("thread_id = ? AND role = ?", env.thread.ID, models.RoleAssistant).
		First(&msg).Error
	if errFind != nil {
		t.Fatalf("partial assistant message not persisted: %v", errFind)
	}
	if msg.Content != "partial " {
		t.Fatalf("expected partial text persisted, got %q", msg.Content)
	}
	if msg.Cost != 0 {
		t.Fatalf("failed turn must not carry cost, got %v", msg.Cost)
	}
	var meta map[string]any
	if errDecode := json.Unmarshal(msg.Metadata, &meta); errDecode != nil {
		t.Fatalf("decode metadata: %v", errDecode)
	}
	if stopped, _ := meta["stopped_early"].(bool); !stopped {
		t.Fatalf("expected stopped_early metadata, got %v", meta)
	}
	if meta["error_type"] != "rate_limit" {
		t.Fatalf("expected error_type in metadata, got %v", meta)
	}

	var usageRows int64
	env.db.Model(&models.UsageStatistic{}).Count(&usageRows)
	if usageRows != 0 {
		t.Fatalf("failed turn recorded usage: %d rows", usageRows)
	}
}

func TestStreamMessageProviderErrorWithoutTextKeepsNothing(t *testing.T) {
	env := newTestEnv(t)
	env.client.streamFunc = func(ctx context.Context) <-chan providers.StreamChunk {
		out := make(chan providers.StreamChunk, 1)
		out <- providers.StreamChunk{Err: &providers.ClientError{Type: providers.ErrorAPI, Message: "upstream down"}}
		close(out)
		return out
	}

	events, errStream := env.service.StreamMessage(context.Background(), env.user.ID, env.thread.ID, SendInput{
		Content: "hi there",
	})
	if errStream != nil {
		t.Fatalf("stream: %v", errStream)
	}
	terminals := 0
	for event := range events {
		if event.Done {
			terminals++
		}
	}
	if terminals != 1 {
		t.Fatalf("terminal events = %d, want exactly 1", terminals)
	}

	var assistants int64
	env.db.Model(&models.Message{}).
		Where("thread_id = ? AND role = ?", env.thread.ID, models.RoleAssistant).
		Count(&assistants)
	if assistants != 0 {
		t.Fatalf("empty failed turn persisted %d assistant rows", assistants)
	}
}

func TestCountTokensViaResolvedClient(t *testing.T) {
	env := newTestEnv(t)

	count, errCount := env.service.CountTokens(env.user.ID, "openai", "gpt-3.5-turbo", "some text to count here")
	if errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count.Count <= 0 {
		t.Fatalf("expected positive count, got %d", count.Count)
	}
}
