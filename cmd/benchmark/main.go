// Benchmark tool for testing Harrier against PaySim fraud data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/paysim.csv -url http://localhost:8080
//
// This tool:
//   1. Reads PaySim transaction data (with fraud labels)
//   2. Groups rows into per-originator transaction histories
//   3. Sends each history to Harrier's /analyze endpoint
//   4. Compares Harrier's verdict with the entity's fraud labels
//   5. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// PaySimTransaction represents a row from the PaySim dataset
type PaySimTransaction struct {
	Step           int
	Type           string
	Amount         float64
	NameOrig       string
	OldBalanceOrg  float64
	NewBalanceOrig float64
	NameDest       string
	OldBalanceDest float64
	NewBalanceDest float64
	IsFraud        bool
	IsFlaggedFraud bool
}

// EntityHistory is one originator's outgoing transactions in step order.
type EntityHistory struct {
	Name        string
	Txs         []PaySimTransaction
	IsFraud     bool // any transaction in the history is labeled fraud
	TotalVolume float64
}

// wireTransaction matches the Harrier transaction JSON format
type wireTransaction struct {
	ID        string  `json:"id"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Amount    float64 `json:"amount"`
	Timestamp int64   `json:"timestamp"`
	Type      string  `json:"type,omitempty"`
	Currency  string  `json:"currency,omitempty"`
}

// AnalyzeRequest is the Harrier API request format
type AnalyzeRequest struct {
	Transactions     []wireTransaction `json:"transactions"`
	ReferenceInstant int64             `json:"referenceInstant"`
}

// AnalyzeResponse is the Harrier API response format
type AnalyzeResponse struct {
	Analysis struct {
		RiskLevel    string `json:"riskLevel"`
		HasAnomalies bool   `json:"hasAnomalies"`
	} `json:"analysis"`
	Hawala struct {
		Flagged     bool `json:"flagged"`
		HawalaScore int  `json:"hawalaScore"`
	} `json:"hawala"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Fraud entity flagged
	FalsePositives int64 // Clean entity flagged
	TrueNegatives  int64 // Clean entity passed
	FalseNegatives int64 // Fraud entity passed (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to PaySim CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Harrier base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 100000, "Maximum CSV rows to read (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only test entities with fraud transactions")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for clean entities (0.0-1.0)")
	minHistory := flag.Int("min-history", 2, "Minimum transactions per entity history")
	verbose := flag.Bool("verbose", false, "Print each entity result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/paysim.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║         HARRIER BENCHMARK - PaySim History Screening          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("Harrier URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:    %s\n", *tenantID)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Row Limit:    %d\n", *limit)
	fmt.Printf("Min History:  %d\n", *minHistory)
	fmt.Printf("Fraud Only:   %v\n", *fraudOnly)
	fmt.Printf("Sample Rate:  %.2f\n", *sampleRate)
	fmt.Println()

	// Check Harrier is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Harrier not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Harrier is running:")
		fmt.Println("  cd harrier && go run cmd/harrier/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Harrier is healthy")

	// Read PaySim data
	fmt.Printf("\nReading PaySim data from %s...\n", *csvPath)
	transactions, maxStep, err := readPaySimCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d transactions\n", len(transactions))

	// Group rows into per-originator histories
	entities, skipped := groupByOriginator(transactions, *minHistory, *fraudOnly, *sampleRate)
	fmt.Printf("✓ Grouped into %d entity histories (%d entities skipped)\n", len(entities), skipped)

	// Count fraud vs clean entities
	fraudCount := 0
	for _, e := range entities {
		if e.IsFraud {
			fraudCount++
		}
	}
	if len(entities) == 0 {
		fmt.Println("ERROR: no entity histories to test")
		os.Exit(1)
	}
	fmt.Printf("  - Fraud: %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(entities)))
	fmt.Printf("  - Clean: %d (%.2f%%)\n", len(entities)-fraudCount, 100*float64(len(entities)-fraudCount)/float64(len(entities)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(entities, maxStep, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
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

func readPaySimCSV(path string, limit int) ([]PaySimTransaction, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(col)] = i
	}

	var transactions []PaySimTransaction
	maxStep := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		step, _ := strconv.Atoi(record[colIndex["step"]])
		amount, _ := strconv.ParseFloat(record[colIndex["amount"]], 64)
		oldBalanceOrg, _ := strconv.ParseFloat(record[colIndex["oldbalanceorg"]], 64)
		newBalanceOrig, _ := strconv.ParseFloat(record[colIndex["newbalanceorig"]], 64)
		oldBalanceDest, _ := strconv.ParseFloat(record[colIndex["oldbalancedest"]], 64)
		newBalanceDest, _ := strconv.ParseFloat(record[colIndex["newbalancedest"]], 64)
		isFraud := record[colIndex["isfraud"]] == "1"
		isFlaggedFraud := record[colIndex["isflaggedfraud"]] == "1"

		tx := PaySimTransaction{
			Step:           step,
			Type:           record[colIndex["type"]],
			Amount:         amount,
			NameOrig:       record[colIndex["nameorig"]],
			OldBalanceOrg:  oldBalanceOrg,
			NewBalanceOrig: newBalanceOrig,
			NameDest:       record[colIndex["namedest"]],
			OldBalanceDest: oldBalanceDest,
			NewBalanceDest: newBalanceDest,
			IsFraud:        isFraud,
			IsFlaggedFraud: isFlaggedFraud,
		}

		if step > maxStep {
			maxStep = step
		}
		transactions = append(transactions, tx)

		if limit > 0 && len(transactions) >= limit {
			break
		}
	}

	return transactions, maxStep, nil
}

// groupByOriginator builds one history per sending entity. Fraud filtering
// and sampling happen at the entity level so a fraud entity keeps its clean
// transactions; dropping them would destroy the very history being screened.
func groupByOriginator(transactions []PaySimTransaction, minHistory int, fraudOnly bool, sampleRate float64) ([]EntityHistory, int) {
	byName := make(map[string]*EntityHistory)
	var order []string

	for _, tx := range transactions {
		e, ok := byName[tx.NameOrig]
		if !ok {
			e = &EntityHistory{Name: tx.NameOrig}
			byName[tx.NameOrig] = e
			order = append(order, tx.NameOrig)
		}
		e.Txs = append(e.Txs, tx)
		e.TotalVolume += tx.Amount
		if tx.IsFraud {
			e.IsFraud = true
		}
	}

	var entities []EntityHistory
	skipped := 0
	sampleCounter := 0

	for _, name := range order {
		e := byName[name]

		if len(e.Txs) < minHistory {
			skipped++
			continue
		}
		if fraudOnly && !e.IsFraud {
			skipped++
			continue
		}

		// Sample clean entities
		if !e.IsFraud && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				skipped++
				continue
			}
		}

		entities = append(entities, *e)
	}

	return entities, skipped
}

func runBenchmark(entities []EntityHistory, maxStep int, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// PaySim steps are simulation hours. Anchor the last step to the top of
	// the current hour and pin the analysis reference to the same instant so
	// velocity windows line up with the data instead of the wall clock.
	reference := time.Now().UTC().Truncate(time.Hour)
	base := reference.Add(-time.Duration(maxStep) * time.Hour)

	// Create work channel
	work := make(chan EntityHistory, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 30 * time.Second}

			for entity := range work {
				start := time.Now()
				result, err := analyzeHistory(client, baseURL, tenantID, entity, base, reference)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", entity.Name, err)
					}
					continue
				}

				// Track actual labels
				if entity.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNonFraud, 1)
				}

				// Calculate confusion matrix
				predicted := result.Hawala.Flagged ||
					result.Analysis.RiskLevel == "HIGH" ||
					result.Analysis.RiskLevel == "CRITICAL"
				actual := entity.IsFraud

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					name := entity.Name
					if len(name) > 10 {
						name = name[:10]
					}
					fmt.Printf("%s %-10s | Txs: %4d | Volume: $%14.2f | Fraud: %-5v | Harrier: %-8s | Hawala: %3d | Anomalies: %v\n",
						status,
						name,
						len(entity.Txs),
						entity.TotalVolume,
						entity.IsFraud,
						result.Analysis.RiskLevel,
						result.Hawala.HawalaScore,
						result.Analysis.HasAnomalies,
					)
				}
			}
		}()
	}

	// Send work
	for _, entity := range entities {
		work <- entity
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func analyzeHistory(client *http.Client, baseURL, tenantID string, entity EntityHistory, base, reference time.Time) (*AnalyzeResponse, error) {
	// Build request matching Harrier's expected format
	req := AnalyzeRequest{
		Transactions:     make([]wireTransaction, 0, len(entity.Txs)),
		ReferenceInstant: reference.UnixMilli(),
	}

	for i, tx := range entity.Txs {
		req.Transactions = append(req.Transactions, wireTransaction{
			ID:        fmt.Sprintf("%s-%d", entity.Name, i),
			From:      tx.NameOrig,
			To:        tx.NameDest,
			Amount:    tx.Amount,
			Timestamp: base.Add(time.Duration(tx.Step) * time.Hour).UnixMilli(),
			Type:      tx.Type,
			Currency:  "USD",
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Entities Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Fraud Entities:      %d\n", m.TotalFraud)
	fmt.Printf("   Clean Entities:      %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:              %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                 Flagged      Passed")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          NF  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged entities, how many had actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud entities, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalFraud > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFraud) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, detectionRate)
		fmt.Printf("   Fraud Missed:      %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalFraud, missRate)
	}
	if m.TotalNonFraud > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalNonFraud) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalNonFraud, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		eps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f entities/sec\n", eps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most fraud")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some fraud")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant fraud being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most fraud is being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - alerts are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
