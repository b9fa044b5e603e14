package monitor

import (
	"fmt"
	"time"
)

// 一次定时执行前的日历裁决
type tickDecision int

const (
	decisionRun  tickDecision = iota // 正常执行
	decisionSkip                     // 午间休市，跳过本次
	decisionStop                     // 非交易时段，停止任务
)

// TradingPolicy A股交易日历：周末与 15:00 收盘后停止盯盘，
// 午间休市（11:30-13:00）跳过执行。只看钟表时间，不处理法定节假日。
type TradingPolicy struct {
	loc *time.Location
}

func NewTradingPolicy(timezone string) (*TradingPolicy, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("加载时区失败: %w", err)
	}
	return &TradingPolicy{loc: loc}, nil
}

func (p *TradingPolicy) decide(t time.Time) tickDecision {
	local := t.In(p.loc)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return decisionStop
	}

	minutes := local.Hour()*60 + local.Minute()
	if minutes >= 15*60 {
		return decisionStop
	}
	if minutes >= 11*60+30 && minutes < 13*60 {
		return decisionSkip
	}
	return decisionRun
}

// StartOfDay 当天零点（市场时区）
func (p *TradingPolicy) StartOfDay(t time.Time) time.Time {
	local := t.In(p.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.loc)
}

// Location 市场时区，供定时清理等协作方使用
func (p *TradingPolicy) Location() *time.Location {
	return p.loc
}
