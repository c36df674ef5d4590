package xcond

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// Kind 值类型
type Kind uint8

const (
	// KindInvalid 零值
	KindInvalid Kind = iota
	// KindBool 布尔
	KindBool
	// KindInt 64 位整数
	KindInt
	// KindFloat 64 位浮点
	KindFloat
	// KindString 字符串
	KindString
)

// String 返回类型名
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return "invalid"
	}
}

// ParseKind 解析类型名，空串视为 string
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bool", "boolean":
		return KindBool, nil
	case "int", "integer", "long":
		return KindInt, nil
	case "float", "double", "number":
		return KindFloat, nil
	case "", "string":
		return KindString, nil
	default:
		return KindInvalid, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Value 带类型标签的值
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
}

// Bool 构造布尔值
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int 构造整数值
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float 构造浮点值
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String 构造字符串值
func String(s string) Value { return Value{kind: KindString, s: s} }

// Parse 按指定类型解析字符串
func Parse(kind Kind, s string) (Value, error) {
	switch kind {
	case KindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return Value{}, fmt.Errorf("xcond: parse bool %q: %w", s, err)
		}
		return Bool(b), nil
	case KindInt:
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("xcond: parse int %q: %w", s, err)
		}
		return Int(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Value{}, fmt.Errorf("xcond: parse float %q: %w", s, err)
		}
		return Float(f), nil
	case KindString:
		return String(s), nil
	default:
		return Value{}, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
}

// Kind 返回值类型
func (v Value) Kind() Kind { return v.kind }

// String 返回值的文本形式
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	default:
		return "<invalid>"
	}
}

// number 数值类型的浮点表示
func (v Value) number() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Compare 比较两个值，返回 -1、0、1
func Compare(a, b Value) (int, error) {
	switch {
	case a.kind == KindInvalid || b.kind == KindInvalid:
		return 0, fmt.Errorf("%w: %s vs %s", ErrIncomparable, a.kind, b.kind)
	case a.kind == KindBool || b.kind == KindBool:
		if a.kind != b.kind {
			return 0, fmt.Errorf("%w: %s vs %s", ErrIncomparable, a.kind, b.kind)
		}
		return cmp.Compare(boolRank(a.b), boolRank(b.b)), nil
	case a.kind == KindString && b.kind == KindString:
		return cmp.Compare(a.s, b.s), nil
	case a.kind == KindInt && b.kind == KindInt:
		return cmp.Compare(a.i, b.i), nil
	}

	x, okA := a.number()
	y, okB := b.number()
	if !okA || !okB {
		return 0, fmt.Errorf("%w: %q vs %q", ErrIncomparable, a.String(), b.String())
	}
	return cmp.Compare(x, y), nil
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}
