package main

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/marketplace/config"
	"github.com/d60-Lab/marketplace/internal/cache"
	"github.com/d60-Lab/marketplace/internal/model"
	"github.com/d60-Lab/marketplace/internal/repository"
	"github.com/d60-Lab/marketplace/pkg/database"
)

// lister is the read path shared by the raw and cached category repositories.
type lister interface {
	List(ctx context.Context) ([]*model.Category, error)
}

func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))

	const (
		categoryCount = 200
		reads         = 20000
	)
	// one category write per writeEvery reads in the mixed scenario
	writeEvery := 500
	if s := os.Getenv("WRITE_EVERY"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			writeEvery = v
		}
	}

	fmt.Println("Setting up test data...")
	mustDo(db.Exec("TRUNCATE TABLE categories RESTART IDENTITY CASCADE").Error)
	cats := make([]model.Category, categoryCount)
	for i := range cats {
		cats[i] = model.Category{Title: fmt.Sprintf("category-%03d", i)}
	}
	mustDo(db.CreateInBatches(&cats, 100).Error)

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = cfg.Redis.Addr
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis at %s: %v", redisAddr, err))
	}

	raw := repository.NewCategoryRepository(db)

	noCache := runScenario(ctx, client, raw, reads, 0, nil)

	cached := cache.NewCategoryRepository(raw, client, cfg.Redis.CacheTTL)
	readOnly := runScenario(ctx, client, cached, reads, 0, nil)
	readOnlyLoads := cached.DBLoads()

	mixedRepo := cache.NewCategoryRepository(raw, client, cfg.Redis.CacheTTL)
	rnd := rand.New(rand.NewSource(42))
	mixed := runScenario(ctx, client, mixedRepo, reads, writeEvery, func() error {
		c := &model.Category{Title: fmt.Sprintf("extra-%d", rnd.Int63())}
		if err := mixedRepo.Create(ctx, c); err != nil {
			return err
		}
		return mixedRepo.Delete(ctx, c.ID)
	})

	fmt.Printf("\nCategory list latency (%d reads, %d categories)\n", reads, categoryCount)
	fmt.Printf("%-18s avg=%v p95=%v p99=%v db_loads=%d\n",
		"No cache", avg(noCache.durations), pct(noCache.durations, 0.95), pct(noCache.durations, 0.99), reads)
	fmt.Printf("%-18s avg=%v p95=%v p99=%v db_loads=%d cache_keys=%d mem=%s\n",
		"Cache-aside", avg(readOnly.durations), pct(readOnly.durations, 0.95), pct(readOnly.durations, 0.99),
		readOnlyLoads, readOnly.cacheKeys, formatBytes(readOnly.memoryBytes))
	fmt.Printf("%-18s avg=%v p95=%v p99=%v db_loads=%d cache_keys=%d mem=%s\n",
		"Cache + writes", avg(mixed.durations), pct(mixed.durations, 0.95), pct(mixed.durations, 0.99),
		mixedRepo.DBLoads(), mixed.cacheKeys, formatBytes(mixed.memoryBytes))
}

type scenarioResult struct {
	durations   []time.Duration
	cacheKeys   int
	memoryBytes int64
}

func runScenario(ctx context.Context, client *redis.Client, repo lister, reads, writeEvery int, write func() error) scenarioResult {
	client.FlushAll(ctx)

	fmt.Print("  Running benchmark...")
	out := make([]time.Duration, 0, reads)
	for i := 0; i < reads; i++ {
		if writeEvery > 0 && i > 0 && i%writeEvery == 0 {
			mustDo(write())
		}
		start := time.Now()
		if _, err := repo.List(ctx); err != nil {
			panic(err)
		}
		out = append(out, time.Since(start))
	}
	fmt.Println(" done")

	keys, _ := client.Keys(ctx, "*").Result()
	var memBytes int64
	if info, err := client.Info(ctx, "memory").Result(); err == nil {
		memBytes = parseRedisMemory(info)
	}
	return scenarioResult{durations: out, cacheKeys: len(keys), memoryBytes: memBytes}
}

// parseRedisMemory extracts used_memory from Redis INFO
func parseRedisMemory(info string) int64 {
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		if v, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
