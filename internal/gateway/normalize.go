package gateway

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/harleysmodernlife/VERN/internal/domain"
)

// Normalize сводит любую форму результата к JSON-безопасному значению.
// Функция тотальна: паника или ошибка внутри результата превращается
// в строку, наружу ничего не пробрасывается.
func Normalize(ctx context.Context, res domain.Result) (out any) {
	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprint(r)
		}
	}()

	return normalize(ctx, res, 0)
}

// Страховка от Deferred, который бесконечно возвращает Deferred.
const maxDeferredDepth = 8

func normalize(ctx context.Context, res domain.Result, depth int) any {
	switch v := res.(type) {
	case nil:
		return ""

	case domain.Immediate:
		return normalizeValue(v.Value)

	case domain.Stream:
		if v.Seq == nil {
			return ""
		}
		var b strings.Builder
		for item := range v.Seq {
			b.WriteString(stringify(normalizeValue(item)))
		}
		return b.String()

	case domain.AsyncStream:
		if v.Ch == nil {
			return ""
		}
		var b strings.Builder
		for {
			select {
			case item, ok := <-v.Ch:
				if !ok {
					return b.String()
				}
				b.WriteString(stringify(normalizeValue(item)))
			case <-ctx.Done():
				return b.String()
			}
		}

	case domain.Deferred:
		if v.Await == nil || depth >= maxDeferredDepth {
			return ""
		}
		inner, err := v.Await(ctx)
		if err != nil {
			return err.Error()
		}
		return normalize(ctx, inner, depth+1)

	default:
		return fmt.Sprint(res)
	}
}

// normalizeValue чинит одиночное значение: простые типы и контейнеры
// проходят как есть, байты становятся строкой, всё прочее — fmt.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return t
	case []byte:
		return string(t)
	case error:
		return t.Error()
	}

	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
