// Package main provides a load generator for the taskhub API. It creates
// tasks over HTTP from concurrent clients and reports throughput and latency.
//
// Usage:
//
//	go run ./benchmark -url http://localhost:3000 -tasks 10000 -workers 20
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "Base URL of the taskhub server")
	numTasks := flag.Int("tasks", 10000, "Number of tasks to create")
	numWorkers := flag.Int("workers", 10, "Number of concurrent clients")
	apiKey := flag.String("api-key", os.Getenv("TASKHUB_SERVER_API_KEY"), "Value for the X-API-Key header")
	flag.Parse()

	if err := validate(*numTasks, *numWorkers); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	fmt.Printf("taskhub Benchmark\n")
	fmt.Printf("=================\n")
	fmt.Printf("Tasks to create: %d\n", *numTasks)
	fmt.Printf("Concurrent clients: %d\n\n", *numWorkers)

	client := &http.Client{Timeout: 10 * time.Second}
	shares := split(*numTasks, *numWorkers)

	var (
		created   atomic.Int64
		failed    atomic.Int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, *numTasks)
	)

	start := time.Now()
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < *numWorkers; i++ {
		workerID, count := i, shares[i]
		g.Go(func() error {
			local := make([]time.Duration, 0, count)
			for j := 0; j < count; j++ {
				title := fmt.Sprintf("benchmark %d-%d", workerID, j)
				t0 := time.Now()
				if err := createTask(ctx, client, *baseURL, *apiKey, title); err != nil {
					if failed.Add(1) == 1 {
						fmt.Printf("First error: %v\n", err)
					}
					continue
				}
				local = append(local, time.Since(t0))
				created.Add(1)
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	elapsed := time.Since(start)

	fmt.Printf("✓ Created %d tasks in %s (%d failed)\n", created.Load(), elapsed, failed.Load())
	fmt.Printf("  Throughput: %.2f tasks/sec\n", float64(created.Load())/elapsed.Seconds())

	if len(latencies) > 0 {
		slices.Sort(latencies)
		fmt.Printf("  Latency P50: %s  P95: %s  P99: %s\n",
			percentile(latencies, 0.50), percentile(latencies, 0.95), percentile(latencies, 0.99))
	}
}

func validate(tasks, workers int) error {
	if workers <= 0 {
		return fmt.Errorf("-workers must be positive, got %d", workers)
	}
	if tasks < 0 {
		return fmt.Errorf("-tasks must not be negative, got %d", tasks)
	}
	return nil
}

// split divides total tasks across workers; the last worker takes the remainder.
func split(total, workers int) []int {
	shares := make([]int, workers)
	for i := range shares {
		shares[i] = total / workers
	}
	shares[workers-1] += total % workers
	return shares
}

func createTask(ctx context.Context, client *http.Client, baseURL, apiKey, title string) error {
	body, err := json.Marshal(map[string]string{"title": title})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/tasks", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}
