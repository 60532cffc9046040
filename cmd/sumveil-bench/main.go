// sumveil-bench submits jobs to a running gateway and reports end-to-end
// latency percentiles, polling each job until it reaches a terminal state.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sort"
	"time"
)

func main() {
	baseURL := flag.String("url", "http://127.0.0.1:8080", "gateway base URL")
	n := flag.Int("n", 50, "number of jobs")
	query := flag.String("query", "Please summarize the quarterly report that Alice sent to bob@example.com last week.", "query text to submit")
	pollInterval := flag.Duration("poll", 50*time.Millisecond, "poll interval")
	timeout := flag.Duration("timeout", 2*time.Minute, "per-job timeout")
	flag.Parse()

	if *n <= 0 {
		*n = 1
	}

	client := &http.Client{Timeout: 10 * time.Second}

	// Warmup
	for i := 0; i < 3; i++ {
		if _, err := runJob(client, *baseURL, *query, *pollInterval, *timeout); err != nil {
			log.Fatalf("warmup job failed: %v", err)
		}
	}

	durations := make([]time.Duration, 0, *n)
	failed := 0
	for i := 0; i < *n; i++ {
		d, err := runJob(client, *baseURL, *query, *pollInterval, *timeout)
		if err != nil {
			log.Printf("job %d failed: %v", i, err)
			failed++
			continue
		}
		durations = append(durations, d)
	}
	if len(durations) == 0 {
		log.Fatalf("all %d jobs failed", *n)
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var total time.Duration
	for _, d := range durations {
		total += d
	}

	avg := float64(total.Microseconds()) / 1000.0 / float64(len(durations))
	p50 := float64(durations[len(durations)/2].Microseconds()) / 1000.0
	p95 := float64(durations[int(float64(len(durations))*0.95)].Microseconds()) / 1000.0

	fmt.Printf("bench: n=%d failed=%d avg_ms=%.2f p50_ms=%.2f p95_ms=%.2f url=%s\n",
		len(durations), failed, avg, p50, p95, *baseURL)
}

func runJob(client *http.Client, baseURL, query string, pollInterval, timeout time.Duration) (time.Duration, error) {
	start := time.Now()

	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return 0, err
	}
	resp, err := client.Post(baseURL+"/v1/summaries", "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("submit: %w", err)
	}
	var accepted struct {
		JobID string `json:"job_id"`
	}
	err = json.NewDecoder(resp.Body).Decode(&accepted)
	resp.Body.Close()
	if err != nil {
		return 0, fmt.Errorf("decode submit response: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted || accepted.JobID == "" {
		return 0, fmt.Errorf("submit status %d job_id=%q", resp.StatusCode, accepted.JobID)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status, errMsg, err := pollJob(client, baseURL, accepted.JobID)
		if err != nil {
			return 0, err
		}
		switch status {
		case "succeeded":
			return time.Since(start), nil
		case "failed":
			return 0, fmt.Errorf("job failed: %s", errMsg)
		}
		time.Sleep(pollInterval)
	}
	return 0, fmt.Errorf("job %s timed out after %s", accepted.JobID, timeout)
}

func pollJob(client *http.Client, baseURL, id string) (status, errMsg string, err error) {
	resp, err := client.Get(baseURL + "/v1/summaries/" + id)
	if err != nil {
		return "", "", fmt.Errorf("poll: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("poll status %d", resp.StatusCode)
	}

	var polled struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&polled); err != nil {
		return "", "", fmt.Errorf("decode poll response: %w", err)
	}
	return polled.Status, polled.Error, nil
}
