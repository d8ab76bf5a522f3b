package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type originStat struct {
	assets     int64
	activities int64
}

var (
	providerErrors int64
	providerWarns  int64
	priceLookups   int64
	pricedTickers  int64
	retryWaits     int64
	origins        sync.Map // map[string]*originStat
)

func recordWarn(component string) {
	if strings.HasPrefix(component, "provider") || strings.Contains(component, "_provider") {
		atomic.AddInt64(&providerWarns, 1)
	}
}

func recordError(component string) {
	if strings.HasPrefix(component, "provider") || strings.Contains(component, "_provider") {
		atomic.AddInt64(&providerErrors, 1)
	}
}

// IncrementPriceLookup records one batched spot-price call covering n tickers.
func IncrementPriceLookup(tickers int) {
	atomic.AddInt64(&priceLookups, 1)
	atomic.AddInt64(&pricedTickers, int64(tickers))
}

// IncrementRetryWait records one retry backoff sleep.
func IncrementRetryWait() {
	atomic.AddInt64(&retryWaits, 1)
}

// RecordOriginResult tracks how many records an origin contributed.
func RecordOriginResult(origin string, assets, activities int) {
	v, _ := origins.LoadOrStore(origin, &originStat{})
	st := v.(*originStat)
	atomic.AddInt64(&st.assets, int64(assets))
	atomic.AddInt64(&st.activities, int64(activities))
}

// StartReport begins periodic logging of system and aggregation statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()

	originData := map[string]map[string]int64{}
	origins.Range(func(k, v any) bool {
		name := k.(string)
		st := v.(*originStat)
		originData[name] = map[string]int64{
			"assets":     atomic.LoadInt64(&st.assets),
			"activities": atomic.LoadInt64(&st.activities),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	memMB := int64(0)
	if memStats != nil {
		memMB = int64(memStats.Used) / 1024 / 1024
	}

	fields := Fields{
		"provider_errors": atomic.LoadInt64(&providerErrors),
		"provider_warns":  atomic.LoadInt64(&providerWarns),
		"price_lookups":   atomic.LoadInt64(&priceLookups),
		"priced_tickers":  atomic.LoadInt64(&pricedTickers),
		"retry_waits":     atomic.LoadInt64(&retryWaits),
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuPct,
		"memory_mb":       memMB,
		"origins":         originData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memMB))},
		{MetricName: aws.String("ProviderErrors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&providerErrors)))},
		{MetricName: aws.String("ProviderWarns"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&providerWarns)))},
		{MetricName: aws.String("PriceLookups"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&priceLookups)))},
		{MetricName: aws.String("PricedTickers"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&pricedTickers)))},
		{MetricName: aws.String("RetryWaits"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&retryWaits)))},
	}

	for name, stats := range originData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("OriginAssets"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Origin"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["assets"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("OriginActivities"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Origin"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["activities"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
