// Package validate はデコード済みの型なしの値（encoding/json の any）が
// ドメインレコードの形を満たしているかを判定する述語を提供する。
//
// ストレージやAIの応答から読み出した値は、ここでの検証を通過するまで信用しない。
// 述語はすべて副作用を持たず、どのような入力に対してもpanicしない。
package validate

import (
	"math"
	"time"
)

// Check は値が条件を満たすかを判定する。
type Check func(v any) bool

// Field はオブジェクトの1フィールドに対する規則。
type Field struct {
	Name     string
	Check    Check
	Optional bool // 欠落またはnullを許容する
}

// Required は必須フィールドを表す。
func Required(name string, check Check) Field {
	return Field{Name: name, Check: check}
}

// Optional は省略可能なフィールドを表す。
func Optional(name string, check Check) Field {
	return Field{Name: name, Check: check, Optional: true}
}

// Object はJSONオブジェクトであり、すべてのフィールド規則を満たすことを判定する。
// 規則に無いキーは無視する。
func Object(fields ...Field) Check {
	return func(v any) bool {
		m, ok := v.(map[string]any)
		if !ok {
			return false
		}
		for _, f := range fields {
			fv, present := m[f.Name]
			if !present || fv == nil {
				if f.Optional {
					continue
				}
				return false
			}
			if !f.Check(fv) {
				return false
			}
		}
		return true
	}
}

// ArrayOf はJSON配列であり、要素数がminLen以上で、すべての要素がelemを満たすことを判定する。
func ArrayOf(elem Check, minLen int) Check {
	return func(v any) bool {
		arr, ok := v.([]any)
		if !ok || len(arr) < minLen {
			return false
		}
		for _, e := range arr {
			if !elem(e) {
				return false
			}
		}
		return true
	}
}

// String は文字列であることを判定する。空文字列も許容する。
func String() Check {
	return func(v any) bool {
		_, ok := v.(string)
		return ok
	}
}

// NonEmptyString は空でない文字列であることを判定する。
func NonEmptyString() Check {
	return func(v any) bool {
		s, ok := v.(string)
		return ok && s != ""
	}
}

// OneOf は文字列であり、allowedのいずれかに一致することを判定する。
func OneOf(allowed ...string) Check {
	return func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, a := range allowed {
			if s == a {
				return true
			}
		}
		return false
	}
}

// NumberBetween は数値であり、[min, max] の範囲内にあることを判定する。
func NumberBetween(min, max float64) Check {
	return func(v any) bool {
		n, ok := v.(float64)
		if !ok || math.IsNaN(n) {
			return false
		}
		return n >= min && n <= max
	}
}

// IntegerBetween は整数値の数値であり、[min, max] の範囲内にあることを判定する。
func IntegerBetween(min, max float64) Check {
	return func(v any) bool {
		n, ok := v.(float64)
		if !ok || math.IsNaN(n) {
			return false
		}
		return n == math.Trunc(n) && n >= min && n <= max
	}
}

// IntegerAtLeast は整数値の数値であり、min以上であることを判定する。
func IntegerAtLeast(min float64) Check {
	return func(v any) bool {
		n, ok := v.(float64)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			return false
		}
		return n == math.Trunc(n) && n >= min
	}
}

// Timestamp はRFC 3339形式の時刻文字列であることを判定する。
func Timestamp() Check {
	return func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, err := time.Parse(time.RFC3339Nano, s)
		return err == nil
	}
}
