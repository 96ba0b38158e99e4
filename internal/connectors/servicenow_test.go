package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(baseURL string) *ServiceNowClient {
	return NewServiceNowClient(infra.ServiceNowConfig{
		BaseURL:  baseURL,
		Username: "sync-bot",
		Password: "secret",
		Timeout:  5 * time.Second,
	}, zap.NewNop())
}

func TestExecute_ExtractsSysID(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"sys_id": "abc123", "name": "ACME"},
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	result, err := client.Execute(context.Background(), http.MethodPost,
		"/api/now/table/core_company", nil, map[string]any{"name": "ACME"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, result.Status)
	assert.Equal(t, "abc123", result.SysID)
	assert.True(t, result.Succeeded())

	// Относительный URL дополнился адресом инстанса, Basic Auth на месте
	assert.Equal(t, "/api/now/table/core_company", gotPath)
	assert.NotEmpty(t, gotAuth)
	assert.Equal(t, "ACME", gotBody["name"])
}

func TestExecute_HTTPErrorIsResultNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"insufficient rights"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	result, err := client.Execute(context.Background(), http.MethodPost,
		"/api/now/table/core_company", nil, map[string]any{"name": "ACME"})

	// Код не 2xx — это данные, а не error: классифицирует движок
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, result.Status)
	assert.Empty(t, result.SysID)
	assert.False(t, result.Succeeded())
}

func TestExecute_TransportErrorIsError(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1") // Тут никто не слушает

	_, err := client.Execute(context.Background(), http.MethodPost,
		"/api/now/table/core_company", nil, map[string]any{"name": "ACME"})
	require.Error(t, err)
}

func TestExecute_CustomHeadersPassedThrough(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Sync-Session")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"result":{}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Execute(context.Background(), http.MethodPost, "/api/now/table/core_company",
		map[string]string{"X-Sync-Session": "sess-1"}, map[string]any{"name": "ACME"})

	require.NoError(t, err)
	assert.Equal(t, "sess-1", got)
}

func TestPing_RecoversAfterTransientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "oops", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"result":[]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	require.NoError(t, client.Ping(context.Background()))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestPing_Throttled429UsesRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"result":[]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	start := time.Now()
	require.NoError(t, client.Ping(context.Background()))
	// Пробник подождал заявленный инстансом интервал
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 7*time.Second, parseRetryAfter("7"))
	assert.Equal(t, 2*time.Second, parseRetryAfter(""))
	assert.Equal(t, 2*time.Second, parseRetryAfter("not-a-number"))
}
