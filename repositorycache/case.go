package repositorycache

import (
	"reflect"
	"strings"
	"unicode"
)

// EntityName derives the entity type name of T from its Go type name in
// snake_case: OrderItem becomes "order_item". Pointer types use their element.
func EntityName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return toSnake(t.Name())
}

// displayName renders an entity name for user facing messages: "order_item"
// becomes "Order item".
func displayName(entity string) string {
	words := strings.Fields(strings.ReplaceAll(toSnake(entity), "_", " "))
	if len(words) == 0 {
		return entity
	}
	name := strings.Join(words, " ")
	runes := []rune(name)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// toSnake lowercases s and separates words with single underscores. A word
// starts at an upper-case rune that follows a lower-case rune or digit, at
// the last upper-case rune of an acronym ("HTTPServer" is "http_server"), and
// at the first digit of a number. Any other rune is a separator, so reflected
// generic names like "Page[main.User]" stay usable inside cache keys.
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	sep := false
	emit := func(r rune) {
		if sep && b.Len() > 0 {
			b.WriteByte('_')
		}
		sep = false
		b.WriteRune(r)
	}

	for i, r := range runes {
		var prev rune
		if i > 0 {
			prev = runes[i-1]
		}
		switch {
		case unicode.IsUpper(r):
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				sep = true
			}
			emit(unicode.ToLower(r))
		case unicode.IsDigit(r):
			if unicode.IsLetter(prev) {
				sep = true
			}
			emit(r)
		case unicode.IsLetter(r):
			emit(r)
		default:
			sep = true
		}
	}
	return b.String()
}
