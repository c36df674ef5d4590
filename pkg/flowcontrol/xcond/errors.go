package xcond

import "errors"

var (
	// ErrIncomparable 两个值的类型组合不支持比较
	ErrIncomparable = errors.New("xcond: incomparable values")

	// ErrUnknownOp 未知运算符
	ErrUnknownOp = errors.New("xcond: unknown operator")

	// ErrUnknownKind 未知值类型
	ErrUnknownKind = errors.New("xcond: unknown kind")

	// ErrMissingField 属性中没有条件引用的字段
	ErrMissingField = errors.New("xcond: missing field")
)
