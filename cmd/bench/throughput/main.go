// cmd/bench/throughput/main.go
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DeltaLaboratory/kvdb/internal/client"
)

type config struct {
	addr        string
	db          string
	numOps      int
	concurrency int
	valueSize   int
	writeRatio  float64
	duration    time.Duration
}

type metrics struct {
	totalOps     int64
	successOps   int64
	failedOps    int64
	writeLatency int64 // microseconds, summed
	readLatency  int64
	writeOps     int64
	readOps      int64
	duration     time.Duration
}

func main() {
	cfg := parseFlags()

	c, err := client.Dial(cfg.addr)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer c.Close()

	if err := c.Use(cfg.db); err != nil {
		log.Fatalf("failed to select database %q: %v", cfg.db, err)
	}

	keys := generateKeys(cfg.numOps)
	values := generateValues(cfg.numOps, cfg.valueSize)

	m := runBenchmark(cfg, keys, values)
	printResults(m, cfg)
}

func parseFlags() *config {
	cfg := &config{}

	flag.StringVar(&cfg.addr, "addr", "localhost:7078", "kvdbd service address")
	flag.StringVar(&cfg.db, "db", "default", "database to benchmark against")
	flag.IntVar(&cfg.numOps, "n", 100000, "number of keys to generate")
	flag.IntVar(&cfg.concurrency, "c", 100, "number of concurrent connections")
	flag.IntVar(&cfg.valueSize, "size", 1024, "value size in bytes")
	flag.Float64Var(&cfg.writeRatio, "write-ratio", 0.2, "fraction of operations that are PUTs")
	flag.DurationVar(&cfg.duration, "duration", 1*time.Minute, "benchmark duration")

	flag.Parse()
	return cfg
}

func generateKeys(n int) [][]byte {
	keys := make([][]byte, n)
	for i := 0; i < n; i++ {
		keys[i] = []byte(fmt.Sprintf("key-%07d", i))
	}
	return keys
}

func generateValues(n, size int) [][]byte {
	values := make([][]byte, n)
	for i := 0; i < n; i++ {
		v := make([]byte, size)
		rand.Read(v)
		values[i] = v
	}
	return values
}

func runBenchmark(cfg *config, keys, values [][]byte) *metrics {
	m := &metrics{}
	stop := time.After(cfg.duration)
	done := make(chan struct{})

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < cfg.concurrency; i++ {
		wg.Add(1)
		go worker(cfg, keys, values, m, done, &wg)
	}

	go func() {
		<-stop
		close(done)
	}()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		var last int64
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				cur := atomic.LoadInt64(&m.totalOps)
				log.Printf("ops/sec: %d", cur-last)
				last = cur
			}
		}
	}()

	wg.Wait()
	m.duration = time.Since(start)
	return m
}

func worker(cfg *config, keys, values [][]byte, m *metrics, done chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	c, err := client.Dial(cfg.addr)
	if err != nil {
		log.Printf("worker failed to connect: %v", err)
		return
	}
	defer c.Close()

	if err := c.Use(cfg.db); err != nil {
		log.Printf("worker failed to select db: %v", err)
		return
	}

	for {
		select {
		case <-done:
			return
		default:
		}

		idx := rand.Intn(len(keys))
		isWrite := rand.Float64() < cfg.writeRatio

		start := time.Now()
		var opErr error

		if isWrite {
			opErr = c.Put(keys[idx], values[idx])
			if opErr == nil {
				atomic.AddInt64(&m.writeOps, 1)
				atomic.AddInt64(&m.writeLatency, time.Since(start).Microseconds())
			}
		} else {
			_, opErr = c.Get(keys[idx])
			if opErr == nil {
				atomic.AddInt64(&m.readOps, 1)
				atomic.AddInt64(&m.readLatency, time.Since(start).Microseconds())
			}
		}

		atomic.AddInt64(&m.totalOps, 1)
		if opErr != nil {
			atomic.AddInt64(&m.failedOps, 1)
		} else {
			atomic.AddInt64(&m.successOps, 1)
		}
	}
}

func printResults(m *metrics, cfg *config) {
	fmt.Println("\nBenchmark Results")
	fmt.Println("=================")
	fmt.Printf("Duration: %v\n", m.duration)
	fmt.Printf("Total Operations: %d\n", m.totalOps)
	fmt.Printf("Successful: %d\n", m.successOps)
	fmt.Printf("Failed: %d\n", m.failedOps)
	fmt.Printf("Ops/sec: %.2f\n", float64(m.totalOps)/m.duration.Seconds())

	if m.writeOps > 0 {
		fmt.Printf("Write ops: %d, avg latency: %.2fms\n", m.writeOps, float64(m.writeLatency)/float64(m.writeOps)/1000)
	}
	if m.readOps > 0 {
		fmt.Printf("Read ops: %d, avg latency: %.2fms\n", m.readOps, float64(m.readLatency)/float64(m.readOps)/1000)
	}
}
