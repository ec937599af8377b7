package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
)

type loadMode string

const (
	modeCheckout       loadMode = "checkout"
	modeCheckoutReplay loadMode = "checkout-replay"
	modeQuote          loadMode = "quote"
)

// Товары демо-каталога без учёта остатка: нагрузка не упирается в склад.
const defaultProducts = "prod-bookshelf,prod-desk-lamp,prod-floor-lamp,prod-curtains,prod-cushion"

type config struct {
	addr         string
	total        int
	totalSet     bool
	duration     time.Duration
	concurrency  int
	timeout      time.Duration
	mode         loadMode
	products     []string
	organization string
	buyerTag     string
	seller       string
	outputPath   string
}

func parseConfig(args []string) (config, error) {
	var (
		cfg           config
		modeValue     string
		productsValue string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "http://localhost:8080", "marketplace HTTP API base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCheckout), "load mode: checkout | checkout-replay | quote")
	fs.StringVar(&productsValue, "products", defaultProducts, "comma-separated product ids to put into carts and quotes")
	fs.StringVar(&cfg.organization, "organization", "load-org", "organization id for all actors")
	fs.StringVar(&cfg.buyerTag, "buyer-tag", "load", "buyer id prefix")
	fs.StringVar(&cfg.seller, "seller", "load-seller", "seller user id for quote mode")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.addr = strings.TrimRight(strings.TrimSpace(cfg.addr), "/")

	for _, p := range strings.Split(productsValue, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.products = append(cfg.products, p)
		}
	}

	switch {
	case cfg.addr == "":
		return cfg, errors.New("addr is required")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case len(cfg.products) == 0:
		return cfg, errors.New("at least one product is required")
	case strings.TrimSpace(cfg.organization) == "":
		return cfg, errors.New("organization is required")
	case strings.TrimSpace(cfg.buyerTag) == "":
		return cfg, errors.New("buyer-tag is required")
	case cfg.mode == modeQuote && strings.TrimSpace(cfg.seller) == "":
		return cfg, errors.New("seller is required in quote mode")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCheckout:
		return modeCheckout, nil
	case modeCheckoutReplay:
		return modeCheckoutReplay, nil
	case modeQuote:
		return modeQuote, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

// execute прогоняет нагрузку и возвращает отчёт.
func execute(ctx context.Context, cfg config, httpClient *http.Client) report {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	client := &apiClient{baseURL: cfg.addr, http: httpClient, timeout: cfg.timeout, col: newCollector()}

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				_ = runScenario(ctx, client, cfg, id, runID)
			}
		}()
	}

	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()

	return client.col.buildReport(startedAt, time.Since(startedAt))
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.concurrency
	result := execute(ctx, cfg, &http.Client{Transport: transport})

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || len(result.DuplicateNumbers) > 0 {
		os.Exit(1)
	}
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for i := 0; ; i++ {
		if (cfg.duration <= 0 || cfg.totalSet) && i >= cfg.total {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}
