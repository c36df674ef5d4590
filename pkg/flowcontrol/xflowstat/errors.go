package xflowstat

import "errors"

var (
	// ErrInvalidRange 开始时间为负、结束时间不晚于开始时间，或步长非正、溢出。
	ErrInvalidRange = errors.New("xflowstat: invalid time range")

	// ErrInvalidRingSize 环长度小于 MinRingSeconds。
	ErrInvalidRingSize = errors.New("xflowstat: ring size too small")
)
