package service

import (
	"testing"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullDocument() *domain.ExtractedDocument {
	return &domain.ExtractedDocument{
		DocumentName:  "invoice-2026-001.pdf",
		Vendor:        map[string]any{"name": "ACME Corp"},
		Supplier:      map[string]any{"name": "ACME Supplies"},
		Contract:      map[string]any{"short_description": "Annual supply"},
		ExpenseLines:  []map[string]any{{"amount": 100}, {"amount": 250}},
		PurchaseOrder: map[string]any{"description": "Q3 restock"},
		PurchaseLines: []map[string]any{{"quantity": 5}},
	}
}

func byType(requests []*domain.Request, entityType string) *domain.Request {
	for _, r := range requests {
		if r.EntityType == entityType {
			return r
		}
	}
	return nil
}

func TestBuildRequests_FullDocument(t *testing.T) {
	requests := BuildRequests("sess-1", fullDocument())
	require.Len(t, requests, 7) // vendor, supplier, contract, 2 expense, po, po line

	for _, r := range requests {
		assert.Equal(t, "sess-1", r.SessionID)
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, domain.StatusPending, r.Status)
		assert.NotEmpty(t, r.ID)
	}

	assert.Equal(t, "/api/now/table/core_company", byType(requests, domain.EntityVendor).URL)
	assert.Equal(t, "/api/now/table/u_supplier", byType(requests, domain.EntitySupplier).URL)
	assert.Equal(t, "/api/now/table/ast_contract", byType(requests, domain.EntityContract).URL)
	assert.Equal(t, "/api/now/table/proc_po", byType(requests, domain.EntityPurchaseOrder).URL)
}

func TestBuildRequests_DependencyWiring(t *testing.T) {
	requests := BuildRequests("sess-1", fullDocument())

	supplier := byType(requests, domain.EntitySupplier)
	require.NotNil(t, supplier)
	assert.Equal(t, []string{domain.EntityVendor}, supplier.DependsOn)
	assert.Equal(t, "{{vendor.sys_id}}", supplier.Body["u_vendor"])

	contract := byType(requests, domain.EntityContract)
	assert.Equal(t, []string{domain.EntitySupplier}, contract.DependsOn)
	assert.Equal(t, "{{supplier.sys_id}}", contract.Body["vendor"])

	poLine := byType(requests, domain.EntityPurchaseOrderLine)
	assert.Equal(t, []string{domain.EntityPurchaseOrder}, poLine.DependsOn)
	assert.Equal(t, "{{purchase_order.sys_id}}", poLine.Body["purchase_order"])

	vendor := byType(requests, domain.EntityVendor)
	assert.Empty(t, vendor.DependsOn)
}

func TestBuildRequests_ExtractorRefNotOverwritten(t *testing.T) {
	doc := fullDocument()
	// Экстрактор уже знает конкретный sys_id вендора
	doc.Supplier["u_vendor"] = "известный-sys-id"

	requests := BuildRequests("sess-1", doc)
	supplier := byType(requests, domain.EntitySupplier)
	assert.Equal(t, "известный-sys-id", supplier.Body["u_vendor"])
}

func TestBuildRequests_EmptySectionsSkipped(t *testing.T) {
	doc := &domain.ExtractedDocument{
		DocumentName: "vendor-only.pdf",
		Vendor:       map[string]any{"name": "ACME Corp"},
	}

	requests := BuildRequests("sess-1", doc)
	require.Len(t, requests, 1)
	assert.Equal(t, domain.EntityVendor, requests[0].EntityType)
}

func TestBuildRequests_OrderIsExecutable(t *testing.T) {
	requests := BuildRequests("sess-1", fullDocument())

	// Построенный набор обязан сортироваться без циклов
	ordered, err := engine.SortByDependency(requests)
	require.NoError(t, err)
	assert.Len(t, ordered, len(requests))
	assert.Equal(t, domain.EntityVendor, ordered[0].EntityType)
}
