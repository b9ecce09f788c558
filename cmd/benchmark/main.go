// Benchmark tool for load-testing the Kestrel dashboard endpoints.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -requests 1000
//
// This tool:
//   1. Clears the cache, then issues one cold request per endpoint
//   2. Hammers the endpoints with concurrent warm requests
//   3. Reports latency percentiles and the cold/warm speedup
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// endpoints exercised by the benchmark, weighted evenly.
var endpoints = []string{
	"/dashboard/kpis",
	"/dashboard/kpis?timeFilter=last_7_days",
	"/dashboard/branch-performance",
	"/users?role=credit_officer",
	"/users/all",
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalRequests int64
	TotalErrors   int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) record(d time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

func (m *Metrics) percentile(p float64) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	requests := flag.Int("requests", 1000, "Total warm requests to issue")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each request result")
	flag.Parse()

	fmt.Println("+---------------------------------------------+")
	fmt.Println("|     KESTREL BENCHMARK - Dashboard Load      |")
	fmt.Println("+---------------------------------------------+")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Requests:    %d\n", *requests)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	client := &http.Client{Timeout: 30 * time.Second}

	// Cold pass: clear the cache, then time the first request per
	// endpoint so every fetch goes to the backend.
	fmt.Println("\nCold pass (cache cleared)...")
	if err := clearCache(client, *baseURL); err != nil {
		fmt.Printf("WARNING: failed to clear cache: %v\n", err)
	}

	coldByEndpoint := make(map[string]time.Duration, len(endpoints))
	for _, ep := range endpoints {
		start := time.Now()
		if err := get(client, *baseURL+ep); err != nil {
			fmt.Printf("ERROR: cold request %s failed: %v\n", ep, err)
			os.Exit(1)
		}
		coldByEndpoint[ep] = time.Since(start)
		fmt.Printf("  %-45s %v\n", ep, coldByEndpoint[ep].Round(time.Millisecond))
	}

	// Warm pass: concurrent requests against the now-populated cache.
	fmt.Printf("\nWarm pass with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(*baseURL, *requests, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, coldByEndpoint, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func clearCache(client *http.Client, baseURL string) error {
	req, err := http.NewRequest(http.MethodDelete, baseURL+"/cache", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func get(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func runBenchmark(baseURL string, requests, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan string, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 30 * time.Second}

			for ep := range work {
				start := time.Now()
				err := get(client, baseURL+ep)
				elapsed := time.Since(start)

				atomic.AddInt64(&metrics.TotalRequests, 1)
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", ep, err)
					}
					continue
				}

				metrics.record(elapsed)
				if verbose {
					fmt.Printf("  %-45s %v\n", ep, elapsed.Round(time.Microsecond))
				}
			}
		}()
	}

	for i := 0; i < requests; i++ {
		work <- endpoints[i%len(endpoints)]
	}
	close(work)

	wg.Wait()
	return metrics
}

func printResults(m *Metrics, cold map[string]time.Duration, duration time.Duration) {
	fmt.Println("\n+---------------------------------------------+")
	fmt.Println("|              BENCHMARK RESULTS              |")
	fmt.Println("+---------------------------------------------+")

	fmt.Printf("\nREQUESTS\n")
	fmt.Printf("   Total:      %d\n", m.TotalRequests)
	fmt.Printf("   Errors:     %d\n", m.TotalErrors)
	fmt.Printf("   Duration:   %v\n", duration.Round(time.Millisecond))
	if duration.Seconds() > 0 {
		fmt.Printf("   Throughput: %.2f req/sec\n", float64(m.TotalRequests)/duration.Seconds())
	}

	p50 := m.percentile(0.50)
	p95 := m.percentile(0.95)
	p99 := m.percentile(0.99)

	fmt.Printf("\nWARM LATENCY\n")
	fmt.Printf("   p50:  %v\n", p50.Round(time.Microsecond))
	fmt.Printf("   p95:  %v\n", p95.Round(time.Microsecond))
	fmt.Printf("   p99:  %v\n", p99.Round(time.Microsecond))

	fmt.Printf("\nCOLD vs WARM\n")
	for _, ep := range endpoints {
		coldMs, ok := cold[ep]
		if !ok || p50 == 0 {
			continue
		}
		fmt.Printf("   %-45s cold %v, speedup %.1fx\n",
			ep,
			coldMs.Round(time.Millisecond),
			float64(coldMs)/float64(p50),
		)
	}

	fmt.Println()
}
