// Command benchmark load-tests the gateway in-process against a mock
// upstream and reports how requests were adapted and routed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nulzo/model-helpers/internal/analytics"
	"github.com/nulzo/model-helpers/internal/capability"
	"github.com/nulzo/model-helpers/internal/config"
	"github.com/nulzo/model-helpers/internal/gateway"
	"github.com/nulzo/model-helpers/internal/platform/logger"
	"github.com/nulzo/model-helpers/internal/server"
	"github.com/nulzo/model-helpers/internal/store/sqlite"
	vegeta "github.com/tsenart/vegeta/v12/lib"
)

const benchKey = "bench-key-12345"

type scenario struct {
	name string
	path string
	body string
}

var scenarios = []scenario{
	{
		name: "reasoning-drops",
		path: "/v1/chat/completions",
		body: `{"model":"o3-mini","max_tokens":64,"temperature":0.7,"top_p":0.9,"messages":[{"role":"user","content":"Hello"}]}`,
	},
	{
		name: "token-swap",
		path: "/v1/chat/completions",
		body: `{"model":"gpt-4o","max_tokens":64,"messages":[{"role":"user","content":"Hello"}]}`,
	},
	{
		name: "structured",
		path: "/v1/chat/completions",
		body: `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"Answer"}],"response_format":{"type":"json_schema","json_schema":{"name":"answer","strict":true,"schema":{"type":"object","properties":{"answer":{"type":"string"}}}}}}`,
	},
	{
		name: "json-mode",
		path: "/v1/chat/completions",
		body: `{"model":"gpt-3.5-turbo","messages":[{"role":"user","content":"Hello"}],"response_format":{"type":"json_object"}}`,
	},
	{
		name: "adapt-dry-run",
		path: "/v1/adapt",
		body: `{"model":"o1","parameters":{"max_tokens":32,"temperature":0.2,"parallel_tool_calls":true},"response_format":{"type":"json_schema","json_schema":{"name":"bench","strict":true,"schema":{"type":"object"}}}}`,
	},
}

// routed is the slice of a response body the report cares about.
type routed struct {
	CallPath          string   `json:"call_path"`
	DroppedParameters []string `json:"dropped_parameters"`
}

type report struct {
	metrics vegeta.Metrics
	paths   map[string]int
	dropped map[string]int
}

func main() {
	duration := flag.Duration("duration", 5*time.Second, "Duration per scenario")
	rate := flag.Int("rate", 50, "Requests per second")
	only := flag.String("scenario", "", "Run a single scenario by name")
	latency := flag.Duration("upstream-latency", 10*time.Millisecond, "Mock upstream latency")
	flag.Parse()

	mock := newUpstream(*latency)
	up := httptest.NewServer(mock)
	defer up.Close()

	app, stop, err := startGateway(up.URL + "/v1")
	if err != nil {
		log.Fatalf("Failed to start gateway: %v", err)
	}
	defer app.Close()

	reports := make(map[string]*report)
	var ran []string
	for _, sc := range scenarios {
		if *only != "" && sc.name != *only {
			continue
		}
		fmt.Printf("Running %-16s %s at %d req/s\n", sc.name, *duration, *rate)
		reports[sc.name] = attack(app.URL, sc, *rate, *duration)
		ran = append(ran, sc.name)
	}
	if len(ran) == 0 {
		log.Fatalf("Unknown scenario %q", *only)
	}

	usage := stop()

	printReports(ran, reports)
	fmt.Println("--------------------------------------------------")
	fmt.Printf("Upstream calls:        %d\n", mock.calls.Load())
	fmt.Printf("Token rejections:      %d\n", mock.tokenRejects.Load())
	fmt.Printf("Schema breaks served:  %d\n", mock.schemaBreaks.Load())
	fmt.Printf("Leaked parameters:     %d\n", mock.leakedParams.Load())
	if usage != nil {
		fmt.Println("Ledger call paths:")
		for _, p := range usage.Paths {
			fmt.Printf("  %-14s %d\n", p.CallPath, p.Requests)
		}
	}
}

func attack(baseURL string, sc scenario, rate int, duration time.Duration) *report {
	targeter := vegeta.NewStaticTargeter(vegeta.Target{
		Method: http.MethodPost,
		URL:    baseURL + sc.path,
		Body:   []byte(sc.body),
		Header: http.Header{
			"Content-Type":  []string{"application/json"},
			"Authorization": []string{"Bearer " + benchKey},
			"X-App-Name":    []string{"benchmark"},
		},
	})

	r := &report{paths: map[string]int{}, dropped: map[string]int{}}
	attacker := vegeta.NewAttacker(vegeta.KeepAlive(true))
	for res := range attacker.Attack(targeter, vegeta.Rate{Freq: rate, Per: time.Second}, duration, sc.name) {
		r.metrics.Add(res)

		var body routed
		if res.Code != http.StatusOK || json.Unmarshal(res.Body, &body) != nil {
			r.paths[fmt.Sprintf("http_%d", res.Code)]++
			continue
		}
		r.paths[body.CallPath]++
		for _, p := range body.DroppedParameters {
			r.dropped[p]++
		}
	}
	r.metrics.Close()
	return r
}

// startGateway wires the service the way cmd/server does, with a throwaway
// database and a config pointing at the mock upstream. stop drains the
// ledger and returns its call-path summary.
func startGateway(upstreamURL string) (*httptest.Server, func() *analytics.UsageReport, error) {
	dir, err := os.MkdirTemp("", "model-helpers-bench")
	if err != nil {
		return nil, nil, err
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(fmt.Sprintf(benchConfig, benchKey, filepath.Join(dir, "bench.db"), upstreamURL)), 0o600); err != nil {
		return nil, nil, err
	}
	if err := os.Setenv("CONFIG_FILE", cfgPath); err != nil {
		return nil, nil, err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	zl, _, err := logger.New(logger.FromSettings(cfg.Log.Level, cfg.Log.Format))
	if err != nil {
		return nil, nil, err
	}

	table, err := capability.NewTable(cfg.Models...)
	if err != nil {
		return nil, nil, err
	}
	resolver := capability.NewResolver(table, zl)

	repo, err := sqlite.NewSQLiteStorage(cfg.Database.DSN, zl)
	if err != nil {
		return nil, nil, err
	}

	ingestor := analytics.NewIngestor(zl, repo, analytics.WithFlushInterval(time.Second))
	ingestor.Start(context.Background())

	service := gateway.NewService(zl, resolver, ingestor)
	if gateway.BootstrapInvokers(service, cfg, resolver, zl) == 0 {
		return nil, nil, fmt.Errorf("no invokers registered")
	}

	stats := analytics.NewService(repo)
	app := httptest.NewServer(server.New(cfg, zl, service, stats).Handler())

	stop := func() *analytics.UsageReport {
		ingestor.Stop()
		usage, err := stats.GetUsageOverview(context.Background(), 1)
		if err != nil {
			log.Printf("Ledger query failed: %v", err)
		}
		_ = repo.Close()
		_ = os.RemoveAll(dir)
		return usage
	}
	return app, stop, nil
}

func printReports(order []string, reports map[string]*report) {
	fmt.Println("--------------------------------------------------")
	fmt.Printf("%-16s %8s %8s %10s %10s  %s\n", "scenario", "requests", "success", "mean", "p99", "call paths")
	for _, name := range order {
		r := reports[name]
		fmt.Printf("%-16s %8d %7.1f%% %10s %10s  %s\n",
			name,
			r.metrics.Requests,
			r.metrics.Success*100,
			r.metrics.Latencies.Mean.Round(time.Microsecond),
			r.metrics.Latencies.P99.Round(time.Microsecond),
			counts(r.paths),
		)
		if len(r.dropped) > 0 {
			fmt.Printf("%-16s dropped: %s\n", "", counts(r.dropped))
		}
		if len(r.metrics.Errors) > 0 {
			fmt.Printf("%-16s first error: %s\n", "", r.metrics.Errors[0])
		}
	}
}

func counts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}

const benchConfig = `
server:
  env: production
  api_keys: [%q]
rate_limit:
  requests_per_second: 100000
  burst: 100000
log:
  level: error
database:
  dsn: "file:%s?cache=shared&mode=rwc&_journal_mode=WAL&_busy_timeout=5000"
openai:
  api_key: "mock-key"
  base_url: %q
anthropic:
  api_key: ""
retry:
  max_retries: 0
`
