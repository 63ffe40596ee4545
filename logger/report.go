package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type flowStat struct {
	messages int64
	bytes    int64
}

var (
	errorsExchange int64
	errorsTrading  int64
	warnsExchange  int64
	warnsTrading   int64
	ordersPlaced   int64
	ordersCanceled int64
	refreshes      int64
	signedRequests int64
	publicRequests int64
	flows          sync.Map // map[string]*flowStat
)

func isExchangeComponent(component string) bool {
	switch component {
	case "binance_client", "cloudwatch":
		return true
	default:
		return false
	}
}

func recordWarn(component string) {
	if isExchangeComponent(component) {
		atomic.AddInt64(&warnsExchange, 1)
	} else {
		atomic.AddInt64(&warnsTrading, 1)
	}
}

func recordError(component string) {
	if isExchangeComponent(component) {
		atomic.AddInt64(&errorsExchange, 1)
	} else {
		atomic.AddInt64(&errorsTrading, 1)
	}
}

// IncrementOrderPlaced counts one accepted order placement.
func IncrementOrderPlaced() {
	atomic.AddInt64(&ordersPlaced, 1)
}

// IncrementOrderCanceled counts one accepted order cancellation.
func IncrementOrderCanceled() {
	atomic.AddInt64(&ordersCanceled, 1)
}

// IncrementRefresh counts one snapshot replacement and the number of open
// orders it carried.
func IncrementRefresh(orders int) {
	atomic.AddInt64(&refreshes, 1)
	recordFlow("order_snapshot", orders)
}

// IncrementRequest counts one REST exchange round trip and its response
// size.
func IncrementRequest(signed bool, size int) {
	if signed {
		atomic.AddInt64(&signedRequests, 1)
		recordFlow("signed_rest", size)
	} else {
		atomic.AddInt64(&publicRequests, 1)
		recordFlow("public_rest", size)
	}
}

// RecordFlowMessage counts one message of size bytes on a named flow.
func RecordFlowMessage(name string, size int) {
	recordFlow(name, size)
}

func recordFlow(name string, size int) {
	v, _ := flows.LoadOrStore(name, &flowStat{})
	fs := v.(*flowStat)
	atomic.AddInt64(&fs.messages, 1)
	atomic.AddInt64(&fs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
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

// StartReport begins periodic logging of system and operation statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	flowData := map[string]map[string]int64{}
	flows.Range(func(k, v any) bool {
		name := k.(string)
		fs := v.(*flowStat)
		flowData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&fs.messages),
			"bytes":    atomic.LoadInt64(&fs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_exchange": atomic.LoadInt64(&errorsExchange),
		"errors_trading":  atomic.LoadInt64(&errorsTrading),
		"warns_exchange":  atomic.LoadInt64(&warnsExchange),
		"warns_trading":   atomic.LoadInt64(&warnsTrading),
		"orders_placed":   atomic.LoadInt64(&ordersPlaced),
		"orders_canceled": atomic.LoadInt64(&ordersCanceled),
		"refreshes":       atomic.LoadInt64(&refreshes),
		"signed_requests": atomic.LoadInt64(&signedRequests),
		"public_requests": atomic.LoadInt64(&publicRequests),
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuPct,
		"memory_mb":       int64(memStats.Used) / 1024 / 1024,
		"disk_mb":         int64(diskStats.Used) / 1024 / 1024,
		"flows":           flowData,
		"net_bytes_sent":  int64(bytesSent),
		"net_bytes_recv":  int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("TradeFlow-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("TradeFlow-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("TradeFlow-DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("TradeFlow-ErrorsExchange"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_exchange"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("TradeFlow-ErrorsTrading"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_trading"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("TradeFlow-WarnsExchange"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_exchange"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("TradeFlow-WarnsTrading"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_trading"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("TradeFlow-OrdersPlaced"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["orders_placed"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("TradeFlow-OrdersCanceled"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["orders_canceled"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("TradeFlow-Refreshes"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["refreshes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("TradeFlow-SignedRequests"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["signed_requests"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("TradeFlow-PublicRequests"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["public_requests"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("TradeFlow-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("TradeFlow-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range flowData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("TradeFlow-FlowMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Flow"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("TradeFlow-FlowBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Flow"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
