package engine

import (
	"fmt"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"
)

// DryRun прогоняет батч через резолвер и структурные проверки без единого
// сетевого вызова и без изменения статусов. Для каждого запроса возвращается
// pass/fail плюс человекочитаемые ошибки — оператор видит, что именно
// завернет ServiceNow, ДО запуска настоящего прогона.
//
// Пустой батч — пустой список, не ошибка.
func (e *Engine) DryRun(requests []*domain.Request) []domain.DryRunResult {
	results := make([]domain.DryRunResult, 0, len(requests))
	if len(requests) == 0 {
		return results
	}

	// Цикл зависимостей — структурная ошибка: помечаем застрявшие запросы,
	// остальные проверяем как обычно
	stuck := make(map[string]bool)
	if _, err := SortByDependency(requests); err != nil {
		if cerr, ok := err.(*CycleError); ok {
			for _, s := range cerr.Stuck {
				stuck[s] = true
			}
		}
	}

	// Снапшот результатов + типы, присутствующие в батче: плейсхолдер
	// разрешим, если источник либо уже success, либо появится в этом прогоне
	completed := e.snapshot()
	present := make(map[string]bool, len(requests))
	for _, r := range requests {
		present[r.EntityType] = true
	}

	for _, r := range requests {
		res := domain.DryRunResult{RequestID: r.ID, Valid: true, Errors: []string{}}

		if r.Method == "" {
			res.Errors = append(res.Errors, "method is empty")
		}
		if r.URL == "" {
			res.Errors = append(res.Errors, "target url is empty")
		}
		if len(r.Body) == 0 {
			res.Errors = append(res.Errors, "request body is empty")
		}
		if stuck[fmt.Sprintf("%s(%s)", r.ID, r.EntityType)] {
			res.Errors = append(res.Errors, "request is part of a dependency cycle")
		}

		// Решаем, насколько это возможно, по текущим success-результатам
		resolved := Resolve(r.Template(), completed)
		for _, field := range UnresolvedTokens(resolved) {
			ref, _ := ParseReference(resolved[field])
			switch {
			case ref.Field != "sys_id":
				// Разрешается только sys_id; другие поля уйдут литералом
				res.Errors = append(res.Errors,
					fmt.Sprintf("field %q references unsupported placeholder field %q", field, ref.Field))
			case !present[ref.EntityType] && completed[ref.EntityType] == nil:
				// Источника нет ни в батче, ни среди завершенных — токен
				// не разрешится никогда
				res.Errors = append(res.Errors,
					fmt.Sprintf("field %q references %q which is absent from the batch", field, ref.EntityType))
			case !present[ref.EntityType]:
				res.Errors = append(res.Errors,
					fmt.Sprintf("field %q still contains unresolved placeholder", field))
			}
			// Источник в батче: значение появится по ходу прогона, не ошибка
		}

		res.Valid = len(res.Errors) == 0
		results = append(results, res)
	}

	return results
}
