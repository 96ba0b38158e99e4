package service

/*
Файл builder.go превращает результат внешнего пайплайна извлечения
(OCR/AI по закупочному документу) в набор запросов-мутаций Table API.

Здесь же зашита каноническая схема зависимостей закупочного документа:

	vendor
	  └── supplier            (u_vendor = {{vendor.sys_id}})
	        ├── contract      (vendor = {{supplier.sys_id}})
	        │     └── expense_line
	        └── purchase_order
	              └── purchase_order_line

Несколько строк (expense_line, po_line) зависят только от родителя,
не друг от друга — сортировка сохранит их исходный порядок.
*/

import (
	"time"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"

	"github.com/google/uuid"
)

// Таблицы Table API по типам сущностей
var entityTables = map[string]string{
	domain.EntityVendor:            "core_company",
	domain.EntitySupplier:          "u_supplier",
	domain.EntityContract:          "ast_contract",
	domain.EntityExpenseLine:       "fm_expense_line",
	domain.EntityPurchaseOrder:     "proc_po",
	domain.EntityPurchaseOrderLine: "proc_po_item",
}

// dependency wiring: тип -> (типы-зависимости, поле-ссылка на родителя)
var entityDeps = map[string]struct {
	dependsOn []string
	refField  string
	refToken  string
}{
	domain.EntityVendor:            {},
	domain.EntitySupplier:          {[]string{domain.EntityVendor}, "u_vendor", "{{vendor.sys_id}}"},
	domain.EntityContract:          {[]string{domain.EntitySupplier}, "vendor", "{{supplier.sys_id}}"},
	domain.EntityExpenseLine:       {[]string{domain.EntityContract}, "contract", "{{contract.sys_id}}"},
	domain.EntityPurchaseOrder:     {[]string{domain.EntitySupplier}, "vendor", "{{supplier.sys_id}}"},
	domain.EntityPurchaseOrderLine: {[]string{domain.EntityPurchaseOrder}, "purchase_order", "{{purchase_order.sys_id}}"},
}

// BuildRequests формирует запросы сессии из извлеченных сущностей.
// Каждому запросу проставляются зависимости и плейсхолдер на sys_id
// родителя; порядок создания соответствует порядку в документе.
func BuildRequests(sessionID string, doc *domain.ExtractedDocument) []*domain.Request {
	now := time.Now()
	var requests []*domain.Request

	add := func(entityType string, fields map[string]any) {
		if len(fields) == 0 {
			return
		}
		wiring := entityDeps[entityType]

		body := domain.CloneBody(fields)
		if wiring.refField != "" {
			// Ссылку на родителя не перетираем, если экстрактор уже
			// заполнил поле конкретным значением
			if _, exists := body[wiring.refField]; !exists {
				body[wiring.refField] = wiring.refToken
			}
		}

		requests = append(requests, &domain.Request{
			ID:         uuid.New().String(),
			SessionID:  sessionID,
			EntityType: entityType,
			Method:     "POST",
			URL:        "/api/now/table/" + entityTables[entityType],
			Body:       body,
			DependsOn:  append([]string{}, wiring.dependsOn...),
			Status:     domain.StatusPending,
			CreatedAt:  now,
		})
	}

	add(domain.EntityVendor, doc.Vendor)
	add(domain.EntitySupplier, doc.Supplier)
	add(domain.EntityContract, doc.Contract)
	for _, line := range doc.ExpenseLines {
		add(domain.EntityExpenseLine, line)
	}
	add(domain.EntityPurchaseOrder, doc.PurchaseOrder)
	for _, line := range doc.PurchaseLines {
		add(domain.EntityPurchaseOrderLine, line)
	}

	return requests
}
