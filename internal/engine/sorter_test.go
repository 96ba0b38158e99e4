package engine

import (
	"testing"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeReq(id, entityType string, dependsOn ...string) *domain.Request {
	return &domain.Request{
		ID:         id,
		SessionID:  "sess-1",
		EntityType: entityType,
		Method:     "POST",
		URL:        "/api/now/table/" + entityType,
		Body:       map[string]any{"name": id},
		DependsOn:  dependsOn,
		Status:     domain.StatusApproved,
	}
}

// indexOf позиция запроса в отсортированном слайсе
func indexOf(t *testing.T, ordered []*domain.Request, id string) int {
	t.Helper()
	for i, r := range ordered {
		if r.ID == id {
			return i
		}
	}
	t.Fatalf("request %s not found in ordered batch", id)
	return -1
}

func TestSortByDependency_EmptyBatch(t *testing.T) {
	ordered, err := SortByDependency(nil)
	require.NoError(t, err)
	assert.NotNil(t, ordered)
	assert.Empty(t, ordered)
}

func TestSortByDependency_ShuffledDocument(t *testing.T) {
	// Документ пришел в перемешанном порядке
	batch := []*domain.Request{
		makeReq("po-line", domain.EntityPurchaseOrderLine, domain.EntityPurchaseOrder),
		makeReq("contract", domain.EntityContract, domain.EntitySupplier),
		makeReq("vendor", domain.EntityVendor),
		makeReq("supplier", domain.EntitySupplier, domain.EntityVendor),
		makeReq("expense", domain.EntityExpenseLine, domain.EntityContract),
		makeReq("po", domain.EntityPurchaseOrder, domain.EntitySupplier),
	}

	ordered, err := SortByDependency(batch)
	require.NoError(t, err)
	require.Len(t, ordered, len(batch))

	assert.Less(t, indexOf(t, ordered, "vendor"), indexOf(t, ordered, "supplier"))
	assert.Less(t, indexOf(t, ordered, "supplier"), indexOf(t, ordered, "contract"))
	assert.Less(t, indexOf(t, ordered, "contract"), indexOf(t, ordered, "expense"))
	assert.Less(t, indexOf(t, ordered, "supplier"), indexOf(t, ordered, "po"))
	assert.Less(t, indexOf(t, ordered, "po"), indexOf(t, ordered, "po-line"))
}

func TestSortByDependency_DependentWaitsForAllOfType(t *testing.T) {
	// Запрос с зависимостью на тип должен встать после ВСЕХ запросов этого типа
	batch := []*domain.Request{
		makeReq("contract", domain.EntityContract, domain.EntitySupplier),
		makeReq("supplier-1", domain.EntitySupplier),
		makeReq("supplier-2", domain.EntitySupplier),
	}

	ordered, err := SortByDependency(batch)
	require.NoError(t, err)

	contractIdx := indexOf(t, ordered, "contract")
	assert.Greater(t, contractIdx, indexOf(t, ordered, "supplier-1"))
	assert.Greater(t, contractIdx, indexOf(t, ordered, "supplier-2"))
}

func TestSortByDependency_StableForPeers(t *testing.T) {
	// Строки расходов не зависят друг от друга: исходный порядок сохраняется
	batch := []*domain.Request{
		makeReq("expense-1", domain.EntityExpenseLine),
		makeReq("expense-2", domain.EntityExpenseLine),
		makeReq("expense-3", domain.EntityExpenseLine),
	}

	ordered, err := SortByDependency(batch)
	require.NoError(t, err)
	assert.Equal(t, "expense-1", ordered[0].ID)
	assert.Equal(t, "expense-2", ordered[1].ID)
	assert.Equal(t, "expense-3", ordered[2].ID)
}

func TestSortByDependency_AbsentTypeIsSatisfied(t *testing.T) {
	// Vendor уже создан в прошлый раз и в батче отсутствует — ждать нечего
	batch := []*domain.Request{
		makeReq("supplier", domain.EntitySupplier, domain.EntityVendor),
		makeReq("contract", domain.EntityContract, domain.EntitySupplier),
	}

	ordered, err := SortByDependency(batch)
	require.NoError(t, err)
	assert.Equal(t, "supplier", ordered[0].ID)
	assert.Equal(t, "contract", ordered[1].ID)
}

func TestSortByDependency_InputSliceUntouched(t *testing.T) {
	batch := []*domain.Request{
		makeReq("supplier", domain.EntitySupplier, domain.EntityVendor),
		makeReq("vendor", domain.EntityVendor),
	}

	_, err := SortByDependency(batch)
	require.NoError(t, err)
	assert.Equal(t, "supplier", batch[0].ID)
	assert.Equal(t, "vendor", batch[1].ID)
}

func TestSortByDependency_CycleDetected(t *testing.T) {
	batch := []*domain.Request{
		makeReq("a", "alpha", "beta"),
		makeReq("b", "beta", "alpha"),
		makeReq("solo", domain.EntityVendor),
	}

	_, err := SortByDependency(batch)
	require.Error(t, err)

	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
	assert.ElementsMatch(t, []string{"a(alpha)", "b(beta)"}, cerr.Stuck)
	assert.Contains(t, err.Error(), "dependency cycle")
}

func TestSortByDependency_SelfDependencyIsCycle(t *testing.T) {
	batch := []*domain.Request{
		makeReq("loop", domain.EntityVendor, domain.EntityVendor),
	}

	_, err := SortByDependency(batch)
	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{"loop(vendor)"}, cerr.Stuck)
}
