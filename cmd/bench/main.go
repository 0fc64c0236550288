// Command bench runs a synthetic workload against the cache and exposes
// optional pprof/Prometheus endpoints. Configuration comes from the
// environment (optionally a .env file), see the config struct for the knobs.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/rescache/blobstore"
	"github.com/IvanBrykalov/rescache/cache"
	"github.com/IvanBrykalov/rescache/metrics/prom"
)

type config struct {
	CapacityBytes int64         `env:"BENCH_CAPACITY_BYTES" envDefault:"67108864"` // 64 MiB
	Workers       int           `env:"BENCH_WORKERS"`                              // 0 = 2*GOMAXPROCS
	Duration      time.Duration `env:"BENCH_DURATION" envDefault:"10s"`
	ReadPct       int           `env:"BENCH_READ_PCT" envDefault:"80"`
	Keys          int           `env:"BENCH_KEYS" envDefault:"100000"`
	ValueBytes    int           `env:"BENCH_VALUE_BYTES" envDefault:"4096"`
	ZipfS         float64       `env:"BENCH_ZIPF_S" envDefault:"1.1"`
	ZipfV         float64       `env:"BENCH_ZIPF_V" envDefault:"1.0"`
	Seed          int64         `env:"BENCH_SEED"`

	BlobDir     string `env:"BENCH_BLOB_DIR"` // empty = in-memory blob store
	PprofAddr   string `env:"BENCH_PPROF_ADDR"`
	MetricsAddr string `env:"BENCH_HTTP_ADDR" envDefault:":8080"`
}

// benchFetcher synthesizes a deterministic payload per key, simulating the
// origin a production deployment would fetch from.
type benchFetcher struct {
	valueBytes int
}

func (f benchFetcher) Fetch(_ context.Context, key string, dst io.Writer) error {
	payload := make([]byte, f.valueBytes)
	for i := range payload {
		payload[i] = key[i%len(key)]
	}
	_, err := dst.Write(payload)
	return err
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	_ = godotenv.Load() // a missing .env file is fine
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Error("parse config", "error", err)
		os.Exit(1)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2 * runtime.GOMAXPROCS(0)
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	// ---- pprof server (on DefaultServeMux) ----
	if cfg.PprofAddr != "" {
		go func() {
			log.Info("pprof: serving", "addr", cfg.PprofAddr)
			log.Error("pprof server exited", "error", http.ListenAndServe(cfg.PprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := prom.New(nil, "rescache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Info("metrics: serving", "addr", cfg.MetricsAddr)
		log.Error("metrics server exited", "error", http.ListenAndServe(cfg.MetricsAddr, nil))
	}()

	// ---- Blob store ----
	var blobs blobstore.Store
	if cfg.BlobDir != "" {
		local, err := blobstore.NewLocalStore(cfg.BlobDir, blobstore.WithCompression())
		if err != nil {
			log.Error("open blob store", "error", err)
			os.Exit(1)
		}
		blobs = local
	} else {
		blobs = blobstore.NewMemoryStore()
	}

	// ---- Build cache ----
	c, err := cache.New(cache.Options{
		CapacityBytes: cfg.CapacityBytes,
		Blobs:         blobs,
		Fetcher:       benchFetcher{valueBytes: cfg.ValueBytes},
		Metrics:       metrics,
		Logger:        log,
	})
	if err != nil {
		log.Error("build cache", "error", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	// ---- Preload to half capacity for a realistic hit-rate ----
	preload := int(cfg.CapacityBytes / int64(cfg.ValueBytes) / 2)
	if preload > cfg.Keys {
		preload = cfg.Keys
	}
	value := make([]byte, cfg.ValueBytes)
	for i := 0; i < preload; i++ {
		_ = c.Put("k:"+strconv.Itoa(i), value, false)
	}

	// ---- Load generation ----
	var reads, writes, hits, misses, loads, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	start := time.Now()
	var g errgroup.Group
	for w := 0; w < cfg.Workers; w++ {
		w := w
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(cfg.Seed + int64(w)*9973))
			localZipf := rand.NewZipf(localR, cfg.ZipfS, cfg.ZipfV, uint64(cfg.Keys-1))

			keyByZipf := func() string {
				return "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
			}

			sub := &loadCounter{loads: &loads}
			for {
				select {
				case <-ctx.Done():
					return nil
				default:
				}

				atomic.AddUint64(&total, 1)
				switch {
				case int(localR.Int31n(100)) < cfg.ReadPct:
					atomic.AddUint64(&reads, 1)
					if _, ok := c.GetCached(keyByZipf()); ok {
						atomic.AddUint64(&hits, 1)
					} else {
						atomic.AddUint64(&misses, 1)
						if err := c.GetOrLoad(keyByZipf(), sub); err != nil {
							return err
						}
					}
				default:
					atomic.AddUint64(&writes, 1)
					if err := c.Put(keyByZipf(), value, false); err != nil {
						return err
					}
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("worker failed", "error", err)
		os.Exit(1)
	}
	elapsed := time.Since(start)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	hitsN := atomic.LoadUint64(&hits)

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	fmt.Printf("cap=%dB workers=%d keys=%d value=%dB dur=%v seed=%d\n",
		cfg.CapacityBytes, cfg.Workers, cfg.Keys, cfg.ValueBytes, elapsed, cfg.Seed)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, atomic.LoadUint64(&writes))
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%  loads=%d\n",
		hitsN, atomic.LoadUint64(&misses), hitRate, atomic.LoadUint64(&loads))
	fmt.Printf("entries=%d  bytes=%d\n", c.EntryCount(), c.CacheSize())
}

// loadCounter counts completed load notifications across all keys.
type loadCounter struct {
	loads *uint64
}

func (s *loadCounter) OnResolve(*cache.Ref, error) { atomic.AddUint64(s.loads, 1) }
