package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempbox/backend/internal/cache"
	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/middleware"
	"tempbox/backend/internal/provider"
	"tempbox/backend/internal/storage/memory"
)

const testJWTSecret = "test-secret"

// fakeProvider 固定返回成功结果的服务商桩
type fakeProvider struct {
	name domain.ProviderName
}

func (f *fakeProvider) Name() domain.ProviderName { return f.name }

func (f *fakeProvider) Generate(ctx context.Context, input provider.GenerateInput) (*domain.Mailbox, error) {
	now := time.Now().UTC()
	mailDomain := input.Domain
	if mailDomain == "" {
		mailDomain = "example.com"
	}
	return &domain.Mailbox{
		Address:   "generated@" + mailDomain,
		Domain:    mailDomain,
		Provider:  f.name,
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Minute),
	}, nil
}

func (f *fakeProvider) FetchMessages(ctx context.Context, mailbox *domain.Mailbox) ([]domain.Message, error) {
	return []domain.Message{{MessageID: "up-1", Subject: "hi"}}, nil
}

func (f *fakeProvider) IsHealthy(ctx context.Context) bool { return true }

func newTestRouter(t *testing.T) (*gin.Engine, *memory.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	cacheLayer := cache.NewLocalCache()
	t.Cleanup(func() { cacheLayer.Close() })

	log := zap.NewNop()
	tracker := provider.NewHealthTracker(cacheLayer, store, nil, time.Minute, log)
	manager := provider.NewManager(provider.ManagerOptions{
		Providers: []provider.Provider{&fakeProvider{name: domain.ProviderOneSecMail}},
		Tracker:   tracker,
		Store:     store,
		Cache:     cacheLayer,
		Logger:    log,
	})

	handler := NewMailboxHandler(manager, log)
	identityAuth := middleware.NewIdentityAuth(testJWTSecret, log)

	router := gin.New()
	v1 := router.Group("/v1")
	v1.Use(identityAuth.OptionalAuth())
	v1.POST("/mailboxes", handler.Generate)
	v1.GET("/mailboxes/messages", handler.GetMessages)
	return router, store
}

func signTestToken(t *testing.T, subject, plan string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"plan": plan,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func TestGenerateEndpoint(t *testing.T) {
	t.Run("空请求体生成成功", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/mailboxes", nil)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusCreated, w.Code)

		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, CodeCreated, resp.Code)

		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "generated@example.com", data["address"])
		assert.NotEmpty(t, data["sessionId"])
	})

	t.Run("游客指定自定义域名被拒绝", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/mailboxes",
			strings.NewReader(`{"domain":"mine.example.com"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("订阅账户可指定自定义域名", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/mailboxes",
			strings.NewReader(`{"domain":"mine.example.com"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+signTestToken(t, "user-1", "pro"))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("非法前缀返回参数错误", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/mailboxes",
			strings.NewReader(`{"prefix":"Bad Prefix!"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetMessagesEndpoint(t *testing.T) {
	t.Run("缺少 address 参数返回 400", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/mailboxes/messages", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("邮箱不存在返回 404", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/mailboxes/messages?address=ghost@example.com", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("正常取件返回邮件列表", func(t *testing.T) {
		router, store := newTestRouter(t)
		require.NoError(t, store.SaveMailbox(&domain.Mailbox{
			ID:        "mbx-1",
			Address:   "inbox@example.com",
			Provider:  domain.ProviderOneSecMail,
			CreatedAt: time.Now().UTC(),
			ExpiresAt: time.Now().UTC().Add(10 * time.Minute),
		}))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/mailboxes/messages?address=inbox@example.com", nil)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(1), data["count"])
	})
}
