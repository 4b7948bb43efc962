package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"
)

var defaultPlaces = []string{
	"Paris", "London", "Springfield", "Boston", "Alexandria",
	"Saint Petersburg", "Portland", "Córdoba", "Georgetown", "Victoria",
	"San José", "Kingston", "Richmond", "Santa Cruz", "Fairview",
}

type loadStats struct {
	total     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newLoadStats() *loadStats {
	return &loadStats{latencies: make([]time.Duration, 0, 100000), codes: make(map[int]int64)}
}

func (s *loadStats) record(d time.Duration, code int, err error) {
	s.total.Add(1)
	if err != nil {
		s.failed.Add(1)
		return
	}
	if code >= 200 && code < 300 {
		s.succeeded.Add(1)
	} else {
		s.failed.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	s.mu.Unlock()
}

func loadtestCommand(c *cli.Context) error {
	places := c.StringSlice("place")
	if len(places) == 0 {
		places = defaultPlaces
	}
	concurrency := c.Int("concurrency")
	if concurrency < 1 {
		return fmt.Errorf("--concurrency must be positive")
	}
	base := c.String("url")

	fmt.Fprintf(c.App.Writer, "target %s, %d workers for %s, %d places\n", base, concurrency, c.Duration("duration"), len(places))
	stats := runLoad(c.Context, base, concurrency, c.Duration("duration"), places, c.Int("rows"))
	return report(c.App.Writer, stats, c.Duration("duration"))
}

func runLoad(parent context.Context, base string, concurrency int, d time.Duration, places []string, rows int) *loadStats {
	stats := newLoadStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()

	var wg sync.WaitGroup
	for w := range concurrency {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for ctx.Err() == nil {
				v := url.Values{"q": {places[i%len(places)]}}
				if rows > 0 {
					v.Set("rows", strconv.Itoa(rows))
				}
				i++
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v1/lookup?"+v.Encode(), nil)
				if err != nil {
					stats.record(0, 0, err)
					return
				}
				start := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						stats.record(time.Since(start), 0, err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.record(time.Since(start), resp.StatusCode, nil)
			}
		}(w)
	}
	wg.Wait()
	return stats
}

func report(w io.Writer, s *loadStats, d time.Duration) error {
	total := s.total.Load()
	fmt.Fprintf(w, "requests %d, ok %d, failed %d\n", total, s.succeeded.Load(), s.failed.Load())
	if total == 0 {
		return fmt.Errorf("no requests completed; is the service running?")
	}
	fmt.Fprintf(w, "error rate %.2f%%, %.1f req/s\n", float64(s.failed.Load())/float64(total)*100, float64(total)/d.Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latencies) > 0 {
		lat := slices.Clone(s.latencies)
		slices.Sort(lat)
		var sum time.Duration
		for _, l := range lat {
			sum += l
		}
		fmt.Fprintf(w, "latency min %s avg %s p50 %s p95 %s p99 %s max %s\n",
			lat[0], sum/time.Duration(len(lat)),
			percentile(lat, 50), percentile(lat, 95), percentile(lat, 99), lat[len(lat)-1])
	}
	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, s.codes[code])
	}
	return nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
