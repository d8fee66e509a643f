// Command ratelimiter-demo runs an HTTP server that rate-limits /ping with a
// single pkg/ratelimiter Limiter shared by all callers (plus, when REDIS_ADDR
// is set, a distributed check keyed by remote address), demonstrating
// Acquire, events, and metrics end-to-end. It mirrors the teacher's cmd/example-server: an
// env-configured Redis address, a /ping handler, a Retry-After header on
// refusal — generalized to the lock-free limiter and enriched with
// structured logging, Prometheus metrics, and an optional distributed
// mirror.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/manenim/ratelimiter/pkg/ratelimiter"
	"github.com/manenim/ratelimiter/pkg/ratelimiter/distributed"
	"github.com/manenim/ratelimiter/pkg/ratelimiter/promsink"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	sink := promsink.NewSink(reg)

	cfg, err := ratelimiter.NewConfig(
		ratelimiter.WithRefreshPeriod(time.Second),
		ratelimiter.WithLimitForPeriod(5),
		ratelimiter.WithAcquireTimeout(100*time.Millisecond),
	)
	if err != nil {
		log.Fatalf("invalid rate limiter config: %v", err)
	}

	limiter := ratelimiter.New("ping", cfg, map[string]string{"route": "/ping"}, ratelimiter.WithEventSink(sink))

	var backend *distributed.RedisBackend
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		b, err := distributed.NewRedisBackend(ctx, client, "demo:")
		cancel()
		if err != nil {
			logger.Warn("distributed backend unavailable, continuing with in-process limiting only", zap.Error(err))
		} else {
			backend = b
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", pingHandler(limiter, backend, sink, logger))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	handler := withRequestLogger(logger)(mux)

	addr := ":8080"
	logger.Info("server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func pingHandler(limiter *ratelimiter.Limiter, backend *distributed.RedisBackend, sink *promsink.Sink, fallback *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := loggerFromContext(r.Context(), fallback)

		if backend != nil {
			res, err := backend.Allow(r.Context(), r.RemoteAddr, 5, time.Second, 1)
			if err != nil {
				logger.Warn("distributed backend check failed, falling back to local limiter only", zap.Error(err))
			} else if !res.Allowed {
				logger.Info("refused by distributed backend", zap.String("remote_addr", r.RemoteAddr))
				w.Header().Set("Retry-After", fmt.Sprintf("%.2f", res.RetryAfter.Seconds()))
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte("Rate limit exceeded\n"))
				return
			}
		}

		granted := limiter.Acquire(r.Context(), 1)
		metrics := limiter.Metrics()
		sink.SetWaitingThreads(limiter.Name(), metrics.WaitingThreads)

		if !granted {
			logger.Info("refused by local limiter",
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int64("waiting_threads", metrics.WaitingThreads),
			)
			w.Header().Set("Retry-After", fmt.Sprintf("%.2f", time.Duration(metrics.NanosToWaitEstimate).Seconds()))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("Rate limit exceeded\n"))
			return
		}

		w.Write([]byte("Pong!\n"))
	}
}
