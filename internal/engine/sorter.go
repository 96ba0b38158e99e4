package engine

import (
	"fmt"
	"strings"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"
)

// CycleError — структурная ошибка батча: циклическая (или ссылающаяся сама
// на себя) зависимость. Должна всплыть ДО любого сетевого вызова.
type CycleError struct {
	// ID запросов, которые невозможно поставить в очередь
	Stuck []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected, %d request(s) cannot be ordered: %s",
		len(e.Stuck), strings.Join(e.Stuck, ", "))
}

// SortByDependency строит безопасный порядок выполнения: каждый запрос R
// с зависимостью на тип T встает после ВСЕХ запросов типа T из батча.
//
// Правила:
//   - Зависимость на тип, которого в батче нет вовсе, считается
//     удовлетворенной — ждать нечего.
//   - При равной готовности сохраняется исходный порядок (stability).
//   - Цикл или самозависимость — CycleError, запросы не теряются молча.
//
// Входной слайс не изменяется.
func SortByDependency(requests []*domain.Request) ([]*domain.Request, error) {
	if len(requests) == 0 {
		return []*domain.Request{}, nil
	}

	// Сколько запросов каждого типа присутствует в батче
	total := make(map[string]int, len(requests))
	for _, r := range requests {
		total[r.EntityType]++
	}

	emitted := make(map[string]int, len(total))
	done := make([]bool, len(requests))
	ordered := make([]*domain.Request, 0, len(requests))

	ready := func(r *domain.Request) bool {
		for _, dep := range r.DependsOn {
			if emitted[dep] < total[dep] {
				return false
			}
		}
		return true
	}

	// Стабильный проход: каждый раз берем ПЕРВЫЙ готовый запрос в исходном
	// порядке. Квадратично по числу запросов, но батчи здесь маленькие
	// (один закупочный документ).
	for len(ordered) < len(requests) {
		progressed := false
		for i, r := range requests {
			if done[i] || !ready(r) {
				continue
			}
			done[i] = true
			emitted[r.EntityType]++
			ordered = append(ordered, r)
			progressed = true
			break
		}
		if !progressed {
			stuck := make([]string, 0)
			for i, r := range requests {
				if !done[i] {
					stuck = append(stuck, fmt.Sprintf("%s(%s)", r.ID, r.EntityType))
				}
			}
			return nil, &CycleError{Stuck: stuck}
		}
	}

	return ordered, nil
}
