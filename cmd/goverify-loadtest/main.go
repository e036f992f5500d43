package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goVerify "github.com/MrEthical07/goVerify"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// codeBook captures delivered codes so the verify phase can answer them.
type codeBook struct {
	codes sync.Map
}

func (c *codeBook) Deliver(_ context.Context, msg goVerify.DeliveryMessage) error {
	c.codes.Store(msg.Destination, msg.Body)
	return nil
}

func (c *codeBook) code(phone string) string {
	v, _ := c.codes.Load(phone)
	s, _ := v.(string)
	return s
}

func main() {
	var (
		sessions    = flag.Int("sessions", 50000, "number of phone numbers to initiate")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		wrongRatio  = flag.Float64("wrong", 0.2, "fraction of sessions that submit one wrong code first")
		rateLimit   = flag.Bool("rate-limit", true, "enable redis fixed-window limits")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "sessions and concurrency must be > 0")
		os.Exit(2)
	}

	cfg := goVerify.DefaultConfig()
	cfg.Delivery.MessageTemplate = "{{.Code}}"
	cfg.Session.SuccessGrace = 0
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.RateLimit.Enabled = *rateLimit
	cfg.RateLimit.InitiatePerPhone = 2
	cfg.RateLimit.InitiatePerIP = 0

	gw := &codeBook{}
	builder := goVerify.New().
		WithConfig(cfg).
		WithGateway(gw).
		WithLogger(zerolog.New(os.Stderr).Level(zerolog.WarnLevel))

	if *rateLimit {
		client, cleanup, err := redisClient(*redisAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		builder = builder.WithRedis(client)
	}

	engine, err := builder.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	phones := make([]string, *sessions)
	tokens := make([]string, *sessions)
	for i := range phones {
		phones[i] = fmt.Sprintf("+1415%07d", i)
	}

	initiateStats := runPhase(*sessions, *concurrency, func(i int, _ *rand.Rand) error {
		res, err := engine.Initiate(ctx, phones[i], goVerify.MethodSMS)
		tokens[i] = res.Token
		return err
	})
	fmt.Printf("active sessions after initiate: %d\n", engine.ActiveSessions())

	verifyStats := runPhase(*sessions, *concurrency, func(i int, r *rand.Rand) error {
		if tokens[i] == "" {
			return goVerify.ErrSessionNotFound
		}
		if r.Float64() < *wrongRatio {
			if _, err := engine.Verify(ctx, tokens[i], "wrong"); err != nil {
				return err
			}
		}
		res, err := engine.Verify(ctx, tokens[i], gw.code(phones[i]))
		if err == nil && !res.Verified {
			return fmt.Errorf("code rejected for %s", phones[i])
		}
		return err
	})

	fmt.Println("---- results ----")
	printStats("initiate", initiateStats)
	printStats("verify", verifyStats)
	snap := engine.MetricsSnapshot()
	fmt.Printf("delivery attempts=%d verify success=%d mismatches=%d rate limited=%d remaining sessions=%d\n",
		snap.Counters[goVerify.MetricDeliveryAttempt],
		snap.Counters[goVerify.MetricVerifySuccess],
		snap.Counters[goVerify.MetricVerifyMismatch],
		snap.Counters[goVerify.MetricRateLimited],
		engine.ActiveSessions(),
	)
}

func redisClient(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func runPhase(ops, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i, r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
