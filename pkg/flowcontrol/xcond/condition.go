package xcond

import (
	"fmt"
	"strings"
)

// Op 比较运算符
type Op string

// 支持的运算符
const (
	OpEq Op = "eq"
	OpNe Op = "ne"
	OpGt Op = "gt"
	OpGe Op = "ge"
	OpLt Op = "lt"
	OpLe Op = "le"
)

// ParseOp 解析运算符，同时接受符号形式（==、!=、>、>=、<、<=）
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eq", "==", "=":
		return OpEq, nil
	case "ne", "!=":
		return OpNe, nil
	case "gt", ">":
		return OpGt, nil
	case "ge", ">=":
		return OpGe, nil
	case "lt", "<":
		return OpLt, nil
	case "le", "<=":
		return OpLe, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOp, s)
	}
}

func (op Op) holds(c int) (bool, error) {
	switch op {
	case OpEq:
		return c == 0, nil
	case OpNe:
		return c != 0, nil
	case OpGt:
		return c > 0, nil
	case OpGe:
		return c >= 0, nil
	case OpLt:
		return c < 0, nil
	case OpLe:
		return c <= 0, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOp, string(op))
	}
}

// Condition 单个条件
type Condition struct {
	Field string
	Op    Op
	Value Value
}

// Evaluate 在 attrs 上求值
func (c Condition) Evaluate(attrs map[string]Value) (bool, error) {
	v, ok := attrs[c.Field]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingField, c.Field)
	}
	r, err := Compare(v, c.Value)
	if err != nil {
		return false, err
	}
	return c.Op.holds(r)
}

// String 返回条件的文本形式
func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s(%s)", c.Field, c.Op, c.Value.Kind(), c.Value)
}

// All 所有条件都成立时返回 true；任一条件求值出错视为不成立
func All(conds []Condition, attrs map[string]Value) bool {
	if len(conds) == 0 {
		return false
	}
	for _, c := range conds {
		ok, err := c.Evaluate(attrs)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// Config 条件的配置形式
type Config struct {
	Field string `json:"field" koanf:"field"`
	Op    string `json:"op" koanf:"op"`
	Value string `json:"value" koanf:"value"`
	// Kind 值类型，默认 string
	Kind string `json:"kind,omitempty" koanf:"kind"`
}

// Condition 将配置转换为条件
func (s Config) Condition() (Condition, error) {
	if s.Field == "" {
		return Condition{}, fmt.Errorf("%w: empty field", ErrMissingField)
	}
	op, err := ParseOp(s.Op)
	if err != nil {
		return Condition{}, err
	}
	kind, err := ParseKind(s.Kind)
	if err != nil {
		return Condition{}, err
	}
	v, err := Parse(kind, s.Value)
	if err != nil {
		return Condition{}, err
	}
	return Condition{Field: s.Field, Op: op, Value: v}, nil
}
