package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/domain"
)

func newTempMailForTest(baseURL, apiKey string) *TempMailLol {
	return NewTempMailLol(&config.ProviderConfig{
		TempMailBaseURL: baseURL,
		TempMailAPIKey:  apiKey,
		RequestTimeout:  2 * time.Second,
	})
}

func TestTempMailGenerate(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/inbox/create", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"address": "xyz@tempmail.lol",
			"token":   "inbox-token-1",
		})
	}))
	defer server.Close()

	t.Run("免费档收件箱 1 小时过期", func(t *testing.T) {
		p := newTempMailForTest(server.URL, "")
		mailbox, err := p.Generate(context.Background(), GenerateInput{})
		require.NoError(t, err)

		assert.Equal(t, domain.ProviderTempMailLol, mailbox.Provider)
		assert.Equal(t, "inbox-token-1", mailbox.ProviderToken)
		assert.Empty(t, gotAuth)
		assert.WithinDuration(t, time.Now().Add(tempMailFreeExpiry), mailbox.ExpiresAt, 5*time.Second)
	})

	t.Run("携带 API Key 时收件箱 10 小时过期", func(t *testing.T) {
		p := newTempMailForTest(server.URL, "secret-key")
		mailbox, err := p.Generate(context.Background(), GenerateInput{})
		require.NoError(t, err)

		assert.Equal(t, "Bearer secret-key", gotAuth)
		assert.WithinDuration(t, time.Now().Add(tempMailPaidExpiry), mailbox.ExpiresAt, 5*time.Second)
	})
}

func TestTempMailFetchMessages(t *testing.T) {
	mode := "ok"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/inbox", r.URL.Path)
		require.Equal(t, "inbox-token-1", r.URL.Query().Get("token"))

		switch mode {
		case "ok":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"expired": false,
				"emails": []map[string]interface{}{
					{
						"from":    "sender@example.org",
						"to":      "xyz@tempmail.lol",
						"subject": "hello",
						"body":    "text body",
						"html":    "<p>text body</p>",
						"date":    1756375200,
					},
				},
			})
		case "expired":
			json.NewEncoder(w).Encode(map[string]interface{}{"expired": true})
		case "gone":
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	mailbox := &domain.Mailbox{
		Address:       "xyz@tempmail.lol",
		Provider:      domain.ProviderTempMailLol,
		ProviderToken: "inbox-token-1",
	}

	t.Run("正常取件并合成去重键", func(t *testing.T) {
		p := newTempMailForTest(server.URL, "")
		messages, err := p.FetchMessages(context.Background(), mailbox)
		require.NoError(t, err)
		require.Len(t, messages, 1)

		assert.Equal(t, "tempmail-1756375200-0", messages[0].MessageID)
		assert.Equal(t, "text body", messages[0].Text)
	})

	t.Run("收件箱过期丢弃令牌并返回空列表", func(t *testing.T) {
		mode = "expired"
		p := newTempMailForTest(server.URL, "")
		messages, err := p.FetchMessages(context.Background(), mailbox)
		require.NoError(t, err)
		assert.Empty(t, messages)

		_, stillCached := p.tokens.Load(mailbox.Address)
		assert.False(t, stillCached)
	})

	t.Run("上游 404 同样按收件箱回收处理", func(t *testing.T) {
		mode = "gone"
		p := newTempMailForTest(server.URL, "")
		messages, err := p.FetchMessages(context.Background(), mailbox)
		require.NoError(t, err)
		assert.Empty(t, messages)
	})

	t.Run("无令牌直接返回空列表", func(t *testing.T) {
		p := newTempMailForTest(server.URL, "")
		messages, err := p.FetchMessages(context.Background(), &domain.Mailbox{
			Address:  "nobody@tempmail.lol",
			Provider: domain.ProviderTempMailLol,
		})
		require.NoError(t, err)
		assert.Empty(t, messages)
	})
}

func TestTempMailIsHealthy(t *testing.T) {
	t.Run("限流响应视为健康", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		p := newTempMailForTest(server.URL, "")
		assert.True(t, p.IsHealthy(context.Background()))
	})

	t.Run("服务端错误视为不健康", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		p := newTempMailForTest(server.URL, "")
		assert.False(t, p.IsHealthy(context.Background()))
	})
}
