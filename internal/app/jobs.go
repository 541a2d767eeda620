package app

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"
	"go.uber.org/zap"

	"github.com/wappzakelijk/console/internal/delivery"
	"github.com/wappzakelijk/console/internal/domain"
	"github.com/wappzakelijk/console/pkg/metrics"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	var err error
	_, err = a.sched.AddFunc("@every 30s", func() {
		go a.SchedSystemMonitorTask()
		go a.SchedProcessMonitorTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@daily", func() {
		days := a.configManager.GetInt64(ConfigMessaging, "retention_days")
		if days <= 0 {
			days = 365
		}
		a.gormDB.
			Where("status = ? and updated_at < ?", domain.BroadcastSent,
				time.Now().Add(-time.Hour*24*time.Duration(days))).
			Delete(&domain.Broadcast{})
	})

	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	a.sched.Start()
}

// ScheduleDeliveryRetry registers the gateway retry job once the delivery
// client exists.
func (a *Application) ScheduleDeliveryRetry(ctx context.Context, client *delivery.Client, journal *delivery.Journal) {
	_, err := a.sched.AddFunc("@every 1m", func() {
		client.RetryPending(ctx)
		if journal != nil {
			if depth, err := journal.Len(); err == nil {
				metrics.SetGauge("delivery_retry_depth", int64(depth))
			}
		}
	})
	if err != nil {
		zap.S().Errorf("init delivery retry job error %s", err.Error())
	}
}

// ScheduleSyncRefresh periodically reconciles open views against the store
// so a missed change event cannot drift the inbox for long.
func (a *Application) ScheduleSyncRefresh(ctx context.Context, refresh func(context.Context) error) {
	_, err := a.sched.AddFunc("@every 5m", func() {
		if err := refresh(ctx); err != nil {
			zap.S().Warnf("sync refresh error %s", err.Error())
		}
	})
	if err != nil {
		zap.S().Errorf("init sync refresh job error %s", err.Error())
	}
}

// SchedSystemMonitorTask system monitor
func (a *Application) SchedSystemMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	// Collect CPU usage
	_cpuuse, err := cpu.Percent(0, false)
	if err == nil && len(_cpuuse) > 0 {
		metrics.SetGauge("system_cpuuse", int64(_cpuuse[0]*100)) // Store as percentage * 100
	}

	// Collect memory usage
	_meminfo, err := mem.VirtualMemory()
	if err == nil {
		metrics.SetGauge("system_memuse", int64(_meminfo.Used/1024/1024))
	}
}

// SchedProcessMonitorTask app process monitor
func (a *Application) SchedProcessMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}

	if cpuPercent, err := p.CPUPercent(); err == nil {
		metrics.SetGauge("process_cpuuse", int64(cpuPercent*100))
	}
	if memInfo, err := p.MemoryInfo(); err == nil {
		metrics.SetGauge("process_memuse", int64(memInfo.RSS/1024/1024))
	}
}
