package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Payloads    [][]byte
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

// rerankPayload mirrors the service request wire format.
type rerankPayload struct {
	QTokens  [][]float32   `json:"q_tokens"`
	QWeights []float32     `json:"q_weights,omitempty"`
	DTokens  [][][]float32 `json:"d_tokens"`
	DWeights [][]float32   `json:"d_weights,omitempty"`
	TopK     int           `json:"topk"`
	Prune    prunePayload  `json:"prune"`
}

type prunePayload struct {
	QMax   int    `json:"q_max"`
	DMax   int    `json:"d_max"`
	Method string `json:"method"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8088", "base URL of the rerank service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	nDocs := flag.Int("docs", 50, "documents per rerank request")
	tokens := flag.Int("tokens", 32, "tokens per matrix")
	dim := flag.Int("dim", 128, "embedding dimension")
	flag.Parse()

	payloads, err := buildPayloads(*nDocs, *tokens, *dim)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building payloads: %v\n", err)
		os.Exit(1)
	}

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		Payloads:    payloads,
	}

	fmt.Println("=== Rerank Service Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Shape:       %d docs x %d tokens x %d dims\n", *nDocs, *tokens, *dim)
	fmt.Printf("Payloads:    %d unique\n", len(cfg.Payloads))
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

// buildPayloads pre-marshals a handful of request variants so workers spend
// their time on the wire, not on JSON encoding.
func buildPayloads(nDocs, tokens, dim int) ([][]byte, error) {
	variants := []struct {
		seed  int64
		prune prunePayload
		topk  int
	}{
		{seed: 1, prune: prunePayload{Method: "none"}, topk: 10},
		{seed: 2, prune: prunePayload{QMax: 16, DMax: 64, Method: "idf_norm"}, topk: 10},
		{seed: 3, prune: prunePayload{QMax: 8, DMax: 32, Method: "idf_norm"}, topk: 0},
		{seed: 4, prune: prunePayload{Method: "none"}, topk: nDocs},
	}

	payloads := make([][]byte, 0, len(variants))
	for _, v := range variants {
		rng := rand.New(rand.NewSource(v.seed))
		salience := v.prune.Method == "idf_norm"

		p := rerankPayload{
			QTokens: randomMatrix(rng, tokens, dim),
			DTokens: make([][][]float32, nDocs),
			TopK:    v.topk,
			Prune:   v.prune,
		}
		if salience {
			p.QWeights = randomWeights(rng, tokens)
			p.DWeights = make([][]float32, nDocs)
		}
		for i := range p.DTokens {
			p.DTokens[i] = randomMatrix(rng, tokens, dim)
			if salience {
				p.DWeights[i] = randomWeights(rng, tokens)
			}
		}

		data, err := sonic.Marshal(p)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, data)
	}
	return payloads, nil
}

func randomMatrix(rng *rand.Rand, rows, dim int) [][]float32 {
	m := make([][]float32, rows)
	for i := range m {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		m[i] = v
	}
	return m
}

func randomWeights(rng *rand.Rand, n int) []float32 {
	w := make([]float32, n)
	for i := range w {
		w[i] = rng.Float32()
	}
	return w
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	rerankURL := cfg.BaseURL + "/api/v1/rerank"

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			payloadIdx := workerID

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				payload := cfg.Payloads[payloadIdx%len(cfg.Payloads)]
				payloadIdx++

				req, err := http.NewRequestWithContext(ctx, http.MethodPost, rerankURL, bytes.NewReader(payload))
				if err != nil {
					stats.RecordRequest(0, 0, err)
					continue
				}
				req.Header.Set("Content-Type", "application/json")

				start := time.Now()
				resp, err := client.Do(req)
				duration := time.Since(start)

				if err != nil {
					stats.RecordRequest(duration, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				stats.RecordRequest(duration, resp.StatusCode, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := stats.statusCodes[code].Load()
		fmt.Printf("  %d: %d\n", code, count)
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
