package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/infra"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"
)

// tableAPIResponse — конверт Table API. Единственное место в сервисе,
// где мы заглядываем в data.result.sys_id: ядро движка дальше работает
// только с типизированным ExternalResult.
type tableAPIResponse struct {
	Result struct {
		SysID string `json:"sys_id"`
	} `json:"result"`
}

// ServiceNowClient выполняет вызовы Table API с Basic Auth.
// Реализует контракт engine.Client.
type ServiceNowClient struct {
	http     *http.Client
	baseURL  string
	username string
	password string
	logger   *zap.Logger
}

func NewServiceNowClient(cfg infra.ServiceNowConfig, logger *zap.Logger) *ServiceNowClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ServiceNowClient{
		http:     &http.Client{Timeout: timeout},
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		logger:   logger.With(zap.String("mod", "servicenow")),
	}
}

// Execute выполняет одну мутацию записи. Транспортная ошибка возвращается
// как error; HTTP-ошибка (не 2xx) — как ExternalResult с кодом, движок
// классифицирует оба случая одинаково.
func (c *ServiceNowClient) Execute(ctx context.Context, method, url string, headers map[string]string, body map[string]any) (*domain.ExternalResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal body: %w", err)
	}

	// В телах запросов URL хранится относительным (/api/now/table/...)
	if !strings.HasPrefix(url, "http") {
		url = c.baseURL + url
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.username, c.password)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("servicenow call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	result := &domain.ExternalResult{
		Status:     resp.StatusCode,
		StatusText: resp.Status,
		Raw:        raw,
		Headers:    map[string]string{"Content-Type": resp.Header.Get("Content-Type")},
	}

	// Извлечение идентификатора — ровно здесь и больше нигде
	var envelope tableAPIResponse
	if err := json.Unmarshal(raw, &envelope); err == nil {
		result.SysID = envelope.Result.SysID
	}

	return result, nil
}

// Ping — идемпотентный пробник доступности инстанса (старт сервиса и
// ручной test-connection из консоли). Единственное место с транспортными
// ретраями: 429 повторяем через Retry-After, остальное — экспоненциальный
// бэкофф.
func (c *ServiceNowClient) Ping(ctx context.Context) error {
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(3),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			var tErr *ThrottleError
			if errors.As(err, &tErr) {
				return tErr.RetryAfter
			}
			return retry.BackOffDelay(n, err, config)
		}),
	)

	return r.Do(func() error {
		url := c.baseURL + "/api/now/table/sys_user?sysparm_limit=1"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.SetBasicAuth(c.username, c.password)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode == http.StatusTooManyRequests {
			return &ThrottleError{
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				Cause:      fmt.Errorf("instance throttled the probe"),
			}
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("instance probe returned %s", resp.Status)
		}
		return nil
	})
}

func parseRetryAfter(header string) time.Duration {
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 2 * time.Second // Разумный дефолт, если заголовка нет
}
