package engine

import (
	"regexp"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"
)

// placeholderPattern описывает токен вида {{vendor.sys_id}}.
// Компилируется один раз; сами токены разбираются в типизированную ссылку,
// чтобы не гонять строки через regexp на каждом разрешении.
var placeholderPattern = regexp.MustCompile(`^\{\{([\w-]+)\.([\w-]+)\}\}$`)

// Reference — распарсенный плейсхолдер: на какой тип сущности и какое поле
// ссылается значение в теле запроса.
type Reference struct {
	EntityType string
	Field      string
}

// ParseReference возвращает ссылку, если значение — плейсхолдер.
func ParseReference(value any) (Reference, bool) {
	s, ok := value.(string)
	if !ok {
		return Reference{}, false
	}
	m := placeholderPattern.FindStringSubmatch(s)
	if m == nil {
		return Reference{}, false
	}
	return Reference{EntityType: m[1], Field: m[2]}, true
}

// Resolve подставляет в тело значения из карты завершенных результатов.
//
// Правила (wire-совместимы с существующими телами):
//   - Разрешается только поле sys_id. Любое другое имя поля внутри скобок
//     остается как есть.
//   - Если для типа еще нет успешного результата (или результат пришел без
//     идентификатора) — токен остается видимым, UI покажет его оператору.
//   - Шаблон не изменяется: возвращается новая мапа. Благодаря этому Retry
//     всегда перерешает исходный шаблон с актуальными данными.
//
// Идемпотентность: тело без плейсхолдеров возвращается как есть (копией).
func Resolve(body map[string]any, completed map[string]*domain.ExternalResult) map[string]any {
	out := domain.CloneBody(body)
	for field, value := range out {
		ref, ok := ParseReference(value)
		if !ok || ref.Field != "sys_id" {
			continue
		}
		result, ok := completed[ref.EntityType]
		if !ok || result.SysID == "" {
			continue
		}
		out[field] = result.SysID
	}
	return out
}

// UnresolvedTokens возвращает имена полей, в которых остался плейсхолдер.
// Используется валидатором dry-run и для предупреждений перед живым вызовом.
func UnresolvedTokens(body map[string]any) []string {
	var fields []string
	for field, value := range body {
		if _, ok := ParseReference(value); ok {
			fields = append(fields, field)
		}
	}
	return fields
}
