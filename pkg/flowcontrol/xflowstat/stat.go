package xflowstat

// TimeWindowStat 一个时间窗口内的聚合统计
//
// 时间戳单位为毫秒，窗口为 [StartTime, EndTime)。
type TimeWindowStat struct {
	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime"`

	// Total 通过准入的请求数
	Total int64 `json:"total"`
	// Blocked 被拦截的请求数
	Blocked int64 `json:"blocked"`
	// Completed 上报了 RT 的请求数
	Completed int64 `json:"completed"`
	// Errors 失败的请求数
	Errors int64 `json:"errors"`

	RTSum int64   `json:"rtSum"`
	AvgRT float64 `json:"avgRt"`
	MinRT int64   `json:"minRt"`
	MaxRT int64   `json:"maxRt"`

	// PeakConcurrency 窗口内观测到的最大并发
	PeakConcurrency int64 `json:"peakConcurrency"`
	// RPS 窗口内平均每秒通过请求数
	RPS float64 `json:"rps"`
}

// ErrorRatio 失败请求占通过请求的比例，无请求时为 0
func (s TimeWindowStat) ErrorRatio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Total)
}

// ResourceTimeWindowStats 单个资源的一组窗口统计
type ResourceTimeWindowStats struct {
	ResourceID string           `json:"resourceId"`
	Windows    []TimeWindowStat `json:"windows"`
}

// aggregator 累加若干槽位
type aggregator struct {
	st    TimeWindowStat
	rtMin int64
}

func newAggregator(startMs, endMs int64) *aggregator {
	return &aggregator{
		st:    TimeWindowStat{StartTime: startMs, EndTime: endMs},
		rtMin: noSample,
	}
}

func (a *aggregator) add(s *slot) {
	a.st.Total += s.total.Load()
	a.st.Blocked += s.blocked.Load()
	a.st.Completed += s.completed.Load()
	a.st.Errors += s.errors.Load()
	a.st.RTSum += s.rtSum.Load()
	a.rtMin = min(a.rtMin, s.rtMin.Load())
	a.st.MaxRT = max(a.st.MaxRT, s.rtMax.Load())
	a.st.PeakConcurrency = max(a.st.PeakConcurrency, s.peak.Load())
}

func (a *aggregator) result() TimeWindowStat {
	st := a.st
	if a.rtMin != noSample {
		st.MinRT = a.rtMin
	}
	if st.Completed > 0 {
		st.AvgRT = float64(st.RTSum) / float64(st.Completed)
	}
	if seconds := secondsBetween(st.StartTime, st.EndTime); seconds > 0 {
		st.RPS = float64(st.Total) / float64(seconds)
	}
	return st
}

// secondsBetween 毫秒区间 [startMs, endMs) 覆盖的秒数，不足一秒按一秒计
func secondsBetween(startMs, endMs int64) int64 {
	if endMs <= startMs {
		return 0
	}
	first := floorDiv(startMs, 1000)
	last := floorDiv(endMs-1, 1000)
	return last - first + 1
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
