package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the admin metrics endpoint: a small
// dashboard-shaped digest of the Prometheus registry.
type Summary struct {
	HTTP    httpSummary   `json:"http"`
	Reports reportSummary `json:"reports"`
	Ingest  ingestInfo    `json:"ingest"`
	Sweep   sweepInfo     `json:"sweep"`
	DB      dbInfo        `json:"db"`
	Server  serverInfo    `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
	RateLimited   float64 `json:"rateLimited"`
}

type reportSummary struct {
	TotalBuilt  float64 `json:"totalBuilt"`
	P95Duration float64 `json:"p95Duration"`
	CacheHits   float64 `json:"cacheHits"`
	CacheMisses float64 `json:"cacheMisses"`
}

type ingestInfo struct {
	Deltas   float64 `json:"deltas"`
	Rejected float64 `json:"rejected"`
}

type sweepInfo struct {
	Sweeps     float64 `json:"sweeps"`
	Businesses float64 `json:"businesses"`
	Warnings   float64 `json:"warnings"`
	Exceeded   float64 `json:"exceeded"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// Handler returns an http.HandlerFunc that serves the JSON summary.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.handleSummary(w)
	}
}

func (m *Metrics) handleSummary(w http.ResponseWriter) {
	families, err := m.registry.Gather()
	if err != nil {
		http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
		return
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	startTime := gaugeValue(fam["gabelle_server_start_time_seconds"])

	summary := Summary{
		HTTP: httpSummary{
			TotalRequests: sumCounter(fam["gabelle_http_requests_total"]),
			ErrorRate:     computeErrorRate(fam["gabelle_http_requests_total"]),
			P50Latency:    histogramPercentile(fam["gabelle_http_request_duration_seconds"], 0.50),
			P95Latency:    histogramPercentile(fam["gabelle_http_request_duration_seconds"], 0.95),
			P99Latency:    histogramPercentile(fam["gabelle_http_request_duration_seconds"], 0.99),
			RateLimited:   sumCounter(fam["gabelle_ratelimit_rejections_total"]),
		},
		Reports: reportSummary{
			TotalBuilt:  sumCounter(fam["gabelle_reports_built_total"]),
			P95Duration: histogramPercentile(fam["gabelle_report_build_duration_seconds"], 0.95),
			CacheHits:   sumCounter(fam["gabelle_report_cache_hits_total"]),
			CacheMisses: sumCounter(fam["gabelle_report_cache_misses_total"]),
		},
		Ingest: ingestInfo{
			Deltas:   sumCounter(fam["gabelle_ingest_deltas_total"]),
			Rejected: sumCounter(fam["gabelle_ingest_rejected_total"]),
		},
		Sweep: sweepInfo{
			Sweeps:     sumCounter(fam["gabelle_budget_sweeps_total"]),
			Businesses: gaugeValue(fam["gabelle_budget_sweep_businesses"]),
			Warnings:   gaugeValue(fam["gabelle_budget_sweep_warnings"]),
			Exceeded:   gaugeValue(fam["gabelle_budget_sweep_exceeded"]),
		},
		DB: dbInfo{
			TotalConns:    gaugeValue(fam["gabelle_db_pool_total_conns"]),
			IdleConns:     gaugeValue(fam["gabelle_db_pool_idle_conns"]),
			AcquiredConns: gaugeValue(fam["gabelle_db_pool_acquired_conns"]),
		},
		Server: serverInfo{
			StartTime:     startTime,
			UptimeSeconds: float64(time.Now().Unix()) - startTime,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetGauge() != nil {
		return ms[0].GetGauge().GetValue()
	}
	return 0
}

func computeErrorRate(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total, errors float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" {
				code := lp.GetValue()
				if len(code) > 0 && code[0] >= '4' {
					errors += v
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errors / total
}

// histogramPercentile computes a percentile from aggregated histogram buckets
// using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			// Linear interpolation within this bucket.
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	// If we didn't find it, return the last finite bucket upper bound.
	for i := len(buckets) - 1; i >= 0; i-- {
		if !math.IsInf(buckets[i].upperBound, 1) {
			return buckets[i].upperBound
		}
	}
	return 0
}
