package logger

import (
	"context"
	"runtime"
	"strings"
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

type exchangeStat struct {
	markets int64
	records int64
	bytes   int64
}

// ExchangeStats aggregates the per-exchange crawl counters.
type ExchangeStats struct {
	Markets int64 `json:"markets"`
	Records int64 `json:"records"`
	Bytes   int64 `json:"bytes"`
}

// CrawlStats is a point-in-time view of the run counters. Snapshots are
// consumed by the periodic report, the CloudWatch publisher and the dashboard.
type CrawlStats struct {
	MarketsTotal  int64                    `json:"markets_total"`
	MarketsDone   int64                    `json:"markets_done"`
	MarketsFailed int64                    `json:"markets_failed"`
	Retries       int64                    `json:"retries"`
	PagesFetched  int64                    `json:"pages_fetched"`
	RecordsMerged int64                    `json:"records_merged"`
	ReaderErrors  int64                    `json:"reader_errors"`
	StoreErrors   int64                    `json:"store_errors"`
	ReaderWarns   int64                    `json:"reader_warns"`
	StoreWarns    int64                    `json:"store_warns"`
	Exchanges     map[string]ExchangeStats `json:"exchanges"`
}

var (
	readerErrors  int64
	storeErrors   int64
	readerWarns   int64
	storeWarns    int64
	marketsTotal  int64
	marketsDone   int64
	marketsFailed int64
	crawlRetries  int64
	pagesFetched  int64
	recordsMerged int64
	exchanges     sync.Map // map[string]*exchangeStat
)

func recordWarn(component string) {
	if strings.Contains(component, "reader") {
		atomic.AddInt64(&readerWarns, 1)
	} else if strings.Contains(component, "store") || strings.Contains(component, "writer") {
		atomic.AddInt64(&storeWarns, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "reader") {
		atomic.AddInt64(&readerErrors, 1)
	} else if strings.Contains(component, "store") || strings.Contains(component, "writer") {
		atomic.AddInt64(&storeErrors, 1)
	}
}

// AddMarkets records markets discovered for an exchange at the start of a run.
func AddMarkets(exchange string, n int) {
	atomic.AddInt64(&marketsTotal, int64(n))
	stat := statFor(exchange)
	atomic.AddInt64(&stat.markets, int64(n))
}

// IncrementMarketDone records one market reaching its terminal success state.
func IncrementMarketDone(exchange string) {
	atomic.AddInt64(&marketsDone, 1)
}

// IncrementMarketFailed records one market aborted on a precondition failure.
func IncrementMarketFailed(exchange string) {
	atomic.AddInt64(&marketsFailed, 1)
}

// IncrementRetry records one supervisor retry cycle.
func IncrementRetry(exchange string) {
	atomic.AddInt64(&crawlRetries, 1)
}

// IncrementPage records one page fetched from an exchange endpoint.
func IncrementPage(exchange string) {
	atomic.AddInt64(&pagesFetched, 1)
}

// AddRecordsPersisted records the size of one successfully persisted sequence.
func AddRecordsPersisted(exchange string, records int, bytes int) {
	atomic.AddInt64(&recordsMerged, int64(records))
	stat := statFor(exchange)
	atomic.AddInt64(&stat.records, int64(records))
	atomic.AddInt64(&stat.bytes, int64(bytes))
}

func statFor(name string) *exchangeStat {
	v, _ := exchanges.LoadOrStore(name, &exchangeStat{})
	return v.(*exchangeStat)
}

// Snapshot returns the current values of all crawl counters.
func Snapshot() CrawlStats {
	stats := CrawlStats{
		MarketsTotal:  atomic.LoadInt64(&marketsTotal),
		MarketsDone:   atomic.LoadInt64(&marketsDone),
		MarketsFailed: atomic.LoadInt64(&marketsFailed),
		Retries:       atomic.LoadInt64(&crawlRetries),
		PagesFetched:  atomic.LoadInt64(&pagesFetched),
		RecordsMerged: atomic.LoadInt64(&recordsMerged),
		ReaderErrors:  atomic.LoadInt64(&readerErrors),
		StoreErrors:   atomic.LoadInt64(&storeErrors),
		ReaderWarns:   atomic.LoadInt64(&readerWarns),
		StoreWarns:    atomic.LoadInt64(&storeWarns),
		Exchanges:     map[string]ExchangeStats{},
	}
	exchanges.Range(func(k, v any) bool {
		stat := v.(*exchangeStat)
		stats.Exchanges[k.(string)] = ExchangeStats{
			Markets: atomic.LoadInt64(&stat.markets),
			Records: atomic.LoadInt64(&stat.records),
			Bytes:   atomic.LoadInt64(&stat.bytes),
		}
		return true
	})
	return stats
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

// StartReport begins periodic logging of crawl and system statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	stats := Snapshot()

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
		"markets_total":  stats.MarketsTotal,
		"markets_done":   stats.MarketsDone,
		"markets_failed": stats.MarketsFailed,
		"retries":        stats.Retries,
		"pages_fetched":  stats.PagesFetched,
		"records_merged": stats.RecordsMerged,
		"reader_errors":  stats.ReaderErrors,
		"store_errors":   stats.StoreErrors,
		"reader_warns":   stats.ReaderWarns,
		"store_warns":    stats.StoreWarns,
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuPct,
		"memory_mb":      int64(memStats.Used) / 1024 / 1024,
		"disk_mb":        int64(diskStats.Used) / 1024 / 1024,
		"exchanges":      stats.Exchanges,
		"net_bytes_sent": int64(bytesSent),
		"net_bytes_recv": int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("crawl report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("FF-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("FF-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("FF-DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("FF-MarketsTotal"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(stats.MarketsTotal))},
		cwtypes.MetricDatum{MetricName: aws.String("FF-MarketsDone"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(stats.MarketsDone))},
		cwtypes.MetricDatum{MetricName: aws.String("FF-MarketsFailed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(stats.MarketsFailed))},
		cwtypes.MetricDatum{MetricName: aws.String("FF-Retries"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(stats.Retries))},
		cwtypes.MetricDatum{MetricName: aws.String("FF-PagesFetched"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(stats.PagesFetched))},
		cwtypes.MetricDatum{MetricName: aws.String("FF-RecordsMerged"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(stats.RecordsMerged))},
		cwtypes.MetricDatum{MetricName: aws.String("FF-ReaderErrors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(stats.ReaderErrors))},
		cwtypes.MetricDatum{MetricName: aws.String("FF-StoreErrors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(stats.StoreErrors))},
		cwtypes.MetricDatum{MetricName: aws.String("FF-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("FF-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, ex := range stats.Exchanges {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("FF-ExchangeRecords"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Exchange"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(ex.Records)),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("FF-ExchangeBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Exchange"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(ex.Bytes)),
			},
		)
	}

	publishMetrics(ctx, data)
}
