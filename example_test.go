package goVerify_test

import (
	"context"
	"errors"
	"fmt"
	"os"

	goVerify "github.com/MrEthical07/goVerify"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ExampleNew demonstrates engine construction with production-style dependencies.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	cfg := goVerify.DefaultConfig()
	cfg.RateLimit.Enabled = true

	engine, err := goVerify.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithGateway(goVerify.MethodRouter{
			goVerify.MethodSMS:      goVerify.NewLogGateway(zerolog.New(os.Stdout)),
			goVerify.MethodWhatsApp: goVerify.NewLogGateway(zerolog.New(os.Stdout)),
		}).
		Build()
	if err != nil {
		return
	}
	defer engine.Close()
}

// ExampleEngine_Verify shows the wrong-code and success paths of Verify.
func ExampleEngine_Verify() {
	var engine *goVerify.Engine
	res, err := engine.Verify(context.Background(), "pv_...", "123456")
	switch {
	case errors.Is(err, goVerify.ErrAttemptsExhausted), errors.Is(err, goVerify.ErrSessionExpired):
		// start over with Initiate
	case err != nil:
		// unknown or already verified session
	case !res.Verified:
		fmt.Println("attempts left:", res.AttemptsRemaining)
	}
}

// ExampleEngine_MetricsSnapshot shows how to read in-process metrics counters.
func ExampleEngine_MetricsSnapshot() {
	var engine *goVerify.Engine
	snapshot := engine.MetricsSnapshot()
	_ = snapshot.Counters[goVerify.MetricVerifySuccess]
}
