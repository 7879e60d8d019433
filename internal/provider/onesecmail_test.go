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

func newOneSecMailForTest(baseURL string) *OneSecMail {
	return NewOneSecMail(&config.ProviderConfig{
		OneSecMailBaseURL: baseURL,
		RequestTimeout:    2 * time.Second,
	})
}

func TestOneSecMailGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "getDomainList", r.URL.Query().Get("action"))
		json.NewEncoder(w).Encode([]string{"1secmail.com", "1secmail.org"})
	}))
	defer server.Close()

	p := newOneSecMailForTest(server.URL)

	t.Run("默认取第一个可用域名", func(t *testing.T) {
		mailbox, err := p.Generate(context.Background(), GenerateInput{})
		require.NoError(t, err)

		assert.Equal(t, domain.ProviderOneSecMail, mailbox.Provider)
		assert.Equal(t, "1secmail.com", mailbox.Domain)
		assert.Contains(t, mailbox.Address, "@1secmail.com")
		assert.WithinDuration(t, time.Now().Add(oneSecMailExpiry), mailbox.ExpiresAt, 5*time.Second)
	})

	t.Run("指定前缀生效", func(t *testing.T) {
		mailbox, err := p.Generate(context.Background(), GenerateInput{Prefix: "myprefix"})
		require.NoError(t, err)
		assert.Equal(t, "myprefix@1secmail.com", mailbox.Address)
	})

	t.Run("连续生成地址互不相同", func(t *testing.T) {
		first, err := p.Generate(context.Background(), GenerateInput{})
		require.NoError(t, err)
		second, err := p.Generate(context.Background(), GenerateInput{})
		require.NoError(t, err)
		assert.NotEqual(t, first.Address, second.Address)
	})
}

func TestOneSecMailGenerateUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	p := newOneSecMailForTest(server.URL)

	_, err := p.Generate(context.Background(), GenerateInput{})
	require.Error(t, err)

	providerErr, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ProviderOneSecMail, providerErr.Provider)
	assert.Equal(t, http.StatusBadGateway, providerErr.StatusCode)
}

func TestOneSecMailFetchMessages(t *testing.T) {
	detailFails := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("action") {
		case "getMessages":
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": 101, "from": "sender@example.org", "subject": "hi", "date": "2026-08-28 10:00:00"},
			})
		case "readMessage":
			if detailFails {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"textBody": "plain body",
				"htmlBody": "<p>plain body</p>",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	p := newOneSecMailForTest(server.URL)
	mailbox := &domain.Mailbox{Address: "abc@1secmail.com", Provider: domain.ProviderOneSecMail}

	t.Run("拉取列表并补全正文", func(t *testing.T) {
		messages, err := p.FetchMessages(context.Background(), mailbox)
		require.NoError(t, err)
		require.Len(t, messages, 1)

		assert.Equal(t, "101", messages[0].MessageID)
		assert.Equal(t, "sender@example.org", messages[0].From)
		assert.Equal(t, "abc@1secmail.com", messages[0].To)
		assert.Equal(t, "plain body", messages[0].Text)
		assert.Equal(t, "<p>plain body</p>", messages[0].HTML)
	})

	t.Run("正文拉取失败时保留列表条目", func(t *testing.T) {
		detailFails = true
		messages, err := p.FetchMessages(context.Background(), mailbox)
		require.NoError(t, err)
		require.Len(t, messages, 1)

		assert.Equal(t, "hi", messages[0].Subject)
		assert.Empty(t, messages[0].Text)
	})
}
