package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/domain"
)

func newMailTmServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/domains":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"hydra:member": []map[string]string{{"domain": "indigobook.com"}},
			})

		case r.URL.Path == "/accounts" && r.Method == http.MethodPost:
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Contains(t, body["address"], "@")
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"id": "acc-1", "address": body["address"]})

		case r.URL.Path == "/token" && r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(map[string]string{"token": "bearer-token-1"})

		case r.URL.Path == "/messages":
			if r.Header.Get("Authorization") != "Bearer bearer-token-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"hydra:member": []map[string]interface{}{
					{
						"id":        "mtm-1",
						"from":      map[string]string{"address": "sender@example.org"},
						"to":        []map[string]string{{"address": "me@indigobook.com"}},
						"subject":   "verify",
						"text":      "code 123456",
						"createdAt": time.Now().UTC().Format(time.RFC3339),
					},
				},
			})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newMailTmForTest(baseURL string) *MailTm {
	return NewMailTm(&config.ProviderConfig{
		MailTmBaseURL:  baseURL,
		RequestTimeout: 2 * time.Second,
	})
}

func TestMailTmGenerate(t *testing.T) {
	server := newMailTmServer(t)
	defer server.Close()

	p := newMailTmForTest(server.URL)

	mailbox, err := p.Generate(context.Background(), GenerateInput{})
	require.NoError(t, err)

	assert.Equal(t, domain.ProviderMailTm, mailbox.Provider)
	assert.Equal(t, "indigobook.com", mailbox.Domain)
	assert.True(t, strings.HasSuffix(mailbox.Address, "@indigobook.com"))
	assert.Equal(t, "bearer-token-1", mailbox.ProviderToken)
}

func TestMailTmGenerateDomainFallback(t *testing.T) {
	// 域名接口故障不阻断生成
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/domains":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/accounts":
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"id": "acc-1"})
		case "/token":
			json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
		}
	}))
	defer server.Close()

	p := newMailTmForTest(server.URL)

	mailbox, err := p.Generate(context.Background(), GenerateInput{})
	require.NoError(t, err)
	assert.Equal(t, "mail.tm", mailbox.Domain)
}

func TestMailTmFetchMessages(t *testing.T) {
	server := newMailTmServer(t)
	defer server.Close()

	p := newMailTmForTest(server.URL)

	t.Run("携带邮箱记录里的令牌取件", func(t *testing.T) {
		mailbox := &domain.Mailbox{
			Address:       "me@indigobook.com",
			Provider:      domain.ProviderMailTm,
			ProviderToken: "bearer-token-1",
		}

		messages, err := p.FetchMessages(context.Background(), mailbox)
		require.NoError(t, err)
		require.Len(t, messages, 1)

		assert.Equal(t, "mtm-1", messages[0].MessageID)
		assert.Equal(t, "sender@example.org", messages[0].From)
		assert.Equal(t, "me@indigobook.com", messages[0].To)
		assert.Equal(t, "code 123456", messages[0].Text)
	})

	t.Run("无令牌视为收件箱已过期返回空列表", func(t *testing.T) {
		fresh := newMailTmForTest(server.URL)
		mailbox := &domain.Mailbox{
			Address:  "unknown@indigobook.com",
			Provider: domain.ProviderMailTm,
		}

		messages, err := fresh.FetchMessages(context.Background(), mailbox)
		require.NoError(t, err)
		assert.Empty(t, messages)
	})
}

func TestDecodeMailTmMessages(t *testing.T) {
	t.Run("裸数组形态", func(t *testing.T) {
		items, err := decodeMailTmMessages(strings.NewReader(`[{"id":"a"},{"id":"b"}]`))
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})

	t.Run("hydra 分页形态", func(t *testing.T) {
		items, err := decodeMailTmMessages(strings.NewReader(`{"hydra:member":[{"id":"a"}]}`))
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "a", items[0].ID)
	})
}
