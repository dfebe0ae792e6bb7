package main

import (
	"context"
	"flag"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gracefellowship/tidings/v1/changebus"
	"github.com/gracefellowship/tidings/v1/query"
)

var (
	observers = flag.Int("c", 200, "Number of observers sharing the key")
	rounds    = flag.Int("n", 1000, "Number of invalidation rounds")
	latency   = flag.Duration("l", time.Millisecond, "Simulated fetch latency")
)

func main() {
	flag.Parse()

	log.Printf("Starting benchmark: %d observers, %d invalidations, %v fetch latency", *observers, *rounds, *latency)

	bus := changebus.NewInMemory()
	client := query.NewClient(bus)
	defer client.Close()

	var fetches int64
	fetch := func(ctx context.Context) (int64, error) {
		n := atomic.AddInt64(&fetches, 1)
		select {
		case <-time.After(*latency):
			return n, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	key := query.MustKey("bench", "shared")
	obs := make([]*query.Observer[int64], 0, *observers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < *observers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := query.Observe(client, key, fetch)
			if err != nil {
				log.Fatalf("Observe failed: %v", err)
			}
			mu.Lock()
			obs = append(obs, o)
			mu.Unlock()
		}()
	}
	wg.Wait()

	var notified int64
	for _, o := range obs {
		o.Subscribe(func(query.State[int64]) { atomic.AddInt64(&notified, 1) })
	}

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < *rounds; i++ {
		bus.Publish(ctx, "bench")
		if _, err := obs[i%len(obs)].Refetch(ctx); err != nil {
			log.Fatalf("Refetch failed: %v", err)
		}
	}
	elapsed := time.Since(start)

	for _, o := range obs {
		o.Close()
	}

	log.Printf("Finished in %v", elapsed)
	log.Printf("Fetches: %d for %d invalidations across %d observers", atomic.LoadInt64(&fetches), *rounds, *observers)
	log.Printf("Notifications: %d", atomic.LoadInt64(&notified))
	log.Printf("Throughput: %.2f invalidations/s", float64(*rounds)/elapsed.Seconds())
	if left := client.Entries(); left != 0 {
		log.Printf("Entries left: %d", left)
	}
}
