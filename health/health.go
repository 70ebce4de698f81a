// Package health keeps the latest result of periodic backend probes.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	checkTimeout = 10 * time.Second
)

// CheckFunc 单项探测，返回 nil 表示健康
type CheckFunc func(ctx context.Context) error

// CheckStatus 单项探测的最近一次结果
type CheckStatus struct {
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Report GET /health 的响应体
type Report struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
}

// Healthy 所有探测都通过
func (r Report) Healthy() bool {
	return r.Status == StatusHealthy
}

type Monitor struct {
	logger   zerolog.Logger
	schedule string
	cron     *cron.Cron

	mu     sync.RWMutex
	checks map[string]CheckFunc
	status map[string]CheckStatus
}

func NewMonitor(schedule string, logger zerolog.Logger) *Monitor {
	return &Monitor{
		logger:   logger.With().Str("component", "health").Logger(),
		schedule: schedule,
		cron:     cron.New(),
		checks:   make(map[string]CheckFunc),
		status:   make(map[string]CheckStatus),
	}
}

// Register 注册探测项，同名覆盖
func (m *Monitor) Register(name string, check CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Start 立即执行一轮探测，然后按 cron 表达式周期执行
func (m *Monitor) Start(ctx context.Context) error {
	if _, err := m.cron.AddFunc(m.schedule, func() { m.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid health schedule %q: %w", m.schedule, err)
	}

	m.RunOnce(ctx)
	m.cron.Start()
	m.logger.Info().Str("schedule", m.schedule).Msg("health monitor started")
	return nil
}

// Stop 停止调度并等待正在执行的探测结束
func (m *Monitor) Stop() {
	<-m.cron.Stop().Done()
}

// RunOnce 执行所有探测并更新状态
func (m *Monitor) RunOnce(ctx context.Context) {
	m.mu.RLock()
	checks := make(map[string]CheckFunc, len(m.checks))
	for name, check := range m.checks {
		checks[name] = check
	}
	m.mu.RUnlock()

	for name, check := range checks {
		st := m.runCheck(ctx, name, check)

		m.mu.Lock()
		m.status[name] = st
		m.mu.Unlock()
	}
}

func (m *Monitor) runCheck(ctx context.Context, name string, check CheckFunc) (st CheckStatus) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	st = CheckStatus{Status: StatusHealthy}
	defer func() {
		if r := recover(); r != nil {
			st = CheckStatus{Status: StatusUnhealthy, Error: fmt.Sprintf("panic: %v", r)}
		}
		st.CheckedAt = time.Now().UTC()
		if st.Status != StatusHealthy {
			m.logger.Warn().Str("check", name).Str("error", st.Error).Msg("health check failed")
		}
	}()

	if err := check(ctx); err != nil {
		st = CheckStatus{Status: StatusUnhealthy, Error: err.Error()}
	}
	return st
}

// Report 汇总最近一次探测结果；尚未执行过的探测项视为不健康
func (m *Monitor) Report() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := Report{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]CheckStatus, len(m.checks)),
	}

	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st, ok := m.status[name]
		if !ok {
			st = CheckStatus{Status: StatusUnhealthy, Error: "not checked yet"}
		}
		if st.Status != StatusHealthy {
			report.Status = StatusUnhealthy
		}
		report.Checks[name] = st
	}
	return report
}
