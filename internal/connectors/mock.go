package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"

	"github.com/google/uuid"
)

// MockTableAPI имитирует инстанс ServiceNow для локальной разработки:
// каждой мутации выдается свежий sys_id, сетевые задержки правдоподобны.
type MockTableAPI struct{}

func (c *MockTableAPI) Execute(ctx context.Context, method, url string, headers map[string]string, body map[string]any) (*domain.ExternalResult, error) {
	// Имитируем задержку 50-300мс
	latency := time.Duration(50+rand.Intn(250)) * time.Millisecond

	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Удобный рычаг для ручной проверки сценариев отказа
	if strings.Contains(url, "unstable") {
		return nil, fmt.Errorf("instance internal error")
	}

	sysID := strings.ReplaceAll(uuid.New().String(), "-", "")
	raw, _ := json.Marshal(map[string]any{
		"result": map[string]any{"sys_id": sysID},
	})

	return &domain.ExternalResult{
		Status:     201,
		StatusText: "201 Created",
		SysID:      sysID,
		Raw:        raw,
	}, nil
}

// Ping всегда успешен: локальный мок живет в том же процессе
func (c *MockTableAPI) Ping(ctx context.Context) error {
	return nil
}
