// Package xcond 提供带类型标签的条件值与比较规则。
//
// 值只有四种类型：Bool、Int、Float、String。比较规则是显式的：
//
//   - Bool 只能与 Bool 比较，false < true
//   - Int 与 Float 之间按浮点数比较
//   - String 与 String 按字典序比较
//   - String 与数值比较时，字符串按数值解析，解析失败返回 ErrIncomparable
//
// 条件由 字段、运算符、值 组成，在一组属性上求值：
//
//	cond := xcond.Condition{Field: "method", Op: xcond.OpEq, Value: xcond.String("OPTIONS")}
//	ok, err := cond.Evaluate(map[string]xcond.Value{"method": xcond.String(r.Method)})
package xcond
