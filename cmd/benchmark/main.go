package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	userToken   string
	adminToken  string
)

// Metrics
var (
	totalRequests uint64
	created201    uint64 // Cashouts created
	reviewed200   uint64 // Reviews completed
	noFunds422    uint64 // Users with nothing to cash out
	conflict409   uint64 // Double-review losers
	gateway502    uint64 // Payout failures
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&userToken, "user-token", "", "Bearer token of the requesting user")
	flag.StringVar(&adminToken, "admin-token", "", "Bearer token of the reviewing admin")
}

func main() {
	flag.Parse()
	if userToken == "" || adminToken == "" {
		log.Fatal("both -user-token and -admin-token are required")
	}
	log.Printf("Starting Benchmark | Workers: %d | Duration: %s", concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

type createResponse struct {
	Cashout struct {
		ID int64 `json:"id"`
	} `json:"cashout"`
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 10 * time.Second}

	for time.Since(start) < duration {
		id, status := createCashout(client)
		count(status)
		if status != http.StatusCreated {
			continue
		}
		// Race two reviewers against the same request: exactly one may
		// win, the other must see a conflict.
		var inner sync.WaitGroup
		inner.Add(2)
		for r := 0; r < 2; r++ {
			go func() {
				defer inner.Done()
				count(reviewCashout(client, id))
			}()
		}
		inner.Wait()
	}
}

func createCashout(client *http.Client) (int64, int) {
	payload := map[string]string{
		"payout_bank_name":      "GTBank",
		"payout_bank_code":      "058",
		"payout_account_number": "0123456789",
		"payout_account_name":   "Benchmark User",
	}
	body, _ := json.Marshal(payload)

	req, _ := http.NewRequest("POST", targetURL+"/api/v1/cashouts", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+userToken)

	resp, err := client.Do(req)
	if err != nil {
		return 0, 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return 0, resp.StatusCode
	}
	var out createResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, 0
	}
	return out.Cashout.ID, resp.StatusCode
}

func reviewCashout(client *http.Client, id int64) int {
	body := []byte(`{"action":"approve"}`)
	url := fmt.Sprintf("%s/api/v1/admin/cashouts/%d/review", targetURL, id)

	req, _ := http.NewRequest("POST", url, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)

	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	resp.Body.Close()
	return resp.StatusCode
}

func count(status int) {
	atomic.AddUint64(&totalRequests, 1)
	switch status {
	case http.StatusCreated:
		atomic.AddUint64(&created201, 1)
	case http.StatusOK:
		atomic.AddUint64(&reviewed200, 1)
	case http.StatusUnprocessableEntity:
		atomic.AddUint64(&noFunds422, 1)
	case http.StatusConflict:
		atomic.AddUint64(&conflict409, 1)
	case http.StatusBadGateway:
		atomic.AddUint64(&gateway502, 1)
	default:
		atomic.AddUint64(&failOther, 1)
	}
}

func printResults(elapsed time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	fmt.Println("\n--- Benchmark Results ---")
	fmt.Printf("Duration:        %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Total Requests:  %d (%.1f req/s)\n", total, float64(total)/elapsed.Seconds())
	fmt.Printf("Created (201):   %d\n", atomic.LoadUint64(&created201))
	fmt.Printf("Reviewed (200):  %d\n", atomic.LoadUint64(&reviewed200))
	fmt.Printf("No Funds (422):  %d\n", atomic.LoadUint64(&noFunds422))
	fmt.Printf("Conflicts (409): %d\n", atomic.LoadUint64(&conflict409))
	fmt.Printf("Gateway (502):   %d\n", atomic.LoadUint64(&gateway502))
	fmt.Printf("Other/Errors:    %d\n", atomic.LoadUint64(&failOther))
}
