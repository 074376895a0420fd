package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Result is one request's outcome.
type Result struct {
	Status int
	Body   string
	Err    error
}

type checkoutItem struct {
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

type checkoutReq struct {
	CustomerID string `json:"customer_id"`
	Customer   struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Document string `json:"document"`
	} `json:"customer"`
	Items         []checkoutItem `json:"items"`
	PaymentMethod string         `json:"payment_method"`
	Provider      string         `json:"provider"`
	Address       struct {
		Line       string `json:"line"`
		City       string `json:"city"`
		State      string `json:"state"`
		PostalCode string `json:"postal_code"`
	} `json:"address"`
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	productID := flag.Int("product", 1, "product id")
	stock := flag.Int64("stock", 5, "stock to set before the run, negative skips")
	adminToken := flag.String("admin-token", "", "admin token for the stock reset")
	provider := flag.String("provider", "mercadopago", "payment provider")
	method := flag.String("method", "redirect", "payment method")
	postal := flag.String("postal", "01310-100", "delivery postal code")

	// oversell probe: many customers race for a handful of units
	nUsers := flag.Int("users", 200, "distinct customers")
	concurrency := flag.Int("c", 50, "max concurrency")
	flag.Parse()

	client := &http.Client{Timeout: 15 * time.Second}

	if *stock >= 0 {
		url := fmt.Sprintf("%s/api/admin/products/%d/stock", *baseURL, *productID)
		if err := doRequest(client, http.MethodPut, url, map[string]int64{"stock": *stock}, map[string]string{
			"X-Admin-Token": *adminToken,
		}); err != nil {
			panic(fmt.Sprintf("stock reset failed: %v", err))
		}
		fmt.Println("stock reset to", *stock)
	}

	newReq := func(customerID string) checkoutReq {
		var r checkoutReq
		r.CustomerID = customerID
		r.Customer.Name = "Load " + customerID
		r.Customer.Email = customerID + "@load.test"
		r.Customer.Document = "12345678901"
		r.Items = []checkoutItem{{ProductID: *productID, Quantity: 1}}
		r.PaymentMethod = *method
		r.Provider = *provider
		r.Address.Line = "Rua de Teste, 1"
		r.Address.City = "São Paulo"
		r.Address.State = "SP"
		r.Address.PostalCode = *postal
		return r
	}

	fmt.Printf("start oversell test: product=%d users=%d concurrency=%d\n", *productID, *nUsers, *concurrency)
	results := run(*nUsers, *concurrency, func(i int) Result {
		return checkoutOnce(client, *baseURL, newReq(fmt.Sprintf("load-%d", i+1)), "")
	})
	printSummary("oversell", results)

	if left, err := getStock(client, *baseURL, *productID); err != nil {
		fmt.Println("stock check err:", err)
	} else {
		fmt.Println("final stock:", left)
		if created := countStatus(results, http.StatusCreated); *stock >= 0 && int64(created)+left != *stock {
			fmt.Printf("MISMATCH: %d orders created, %d left, started with %d\n", created, left, *stock)
		}
	}

	// one customer hammering checkout trips the per-customer limit
	fmt.Println("\nstart rate limit test: same customer, 50 requests, concurrency 50")
	same := newReq("load-hot")
	results2 := run(50, 50, func(i int) Result {
		return checkoutOnce(client, *baseURL, same, "")
	})
	printSummary("rate_limit", results2)

	// a retried request with the same key must not place a second order
	fmt.Println("\nstart idempotency test: same key, 20 requests, concurrency 20")
	idem := newReq("load-idem")
	results3 := run(20, 20, func(i int) Result {
		return checkoutOnce(client, *baseURL, idem, "load-idem-key")
	})
	printSummary("idempotency", results3)
}

func run(total, concurrency int, fn func(i int) Result) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = fn(idx)
		}(i)
	}

	wg.Wait()
	return results
}

func checkoutOnce(client *http.Client, baseURL string, req checkoutReq, idemKey string) Result {
	b, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest(http.MethodPost, baseURL+"/api/checkout", bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-User-ID", req.CustomerID)
	if idemKey != "" {
		httpReq.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(body)}
}

func countStatus(results []Result, status int) int {
	n := 0
	for _, r := range results {
		if r.Err == nil && r.Status == status {
			n++
		}
	}
	return n
}

func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	codes := make([]int, 0, len(count))
	for code := range count {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range codes {
		fmt.Printf("  %d -> %d\n", code, count[code])
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

func doRequest(client *http.Client, method, url string, body any, headers map[string]string) error {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, url, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

// getStock reads the product's stock so the run can check for oversell.
func getStock(client *http.Client, baseURL string, productID int) (int64, error) {
	url := fmt.Sprintf("%s/api/products/%d", baseURL, productID)
	resp, err := client.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}

	var out struct {
		Code int `json:"code"`
		Data struct {
			Stock int64 `json:"stock"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return 0, err
	}
	return out.Data.Stock, nil
}
