// Command nickauth-loadtest drives the engine against Redis (or an embedded
// miniredis) and checks the concurrency guarantees of the credential store:
// no lost failure counts under a login storm and at most one winner per
// refresh token.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/nickauth"
	redisstore "github.com/MrEthical07/nickauth/store/redis"
)

const seedPassword = "loadtest-password"

type seededUser struct {
	id       string
	nickname string
	access   string
	refresh  string
}

type report struct {
	Store        string                `json:"store"`
	Users        int                   `json:"users"`
	Concurrency  int                   `json:"concurrency"`
	Phases       map[string]phaseStats `json:"phases"`
	StormChecks  stormResult           `json:"stormChecks"`
	RefreshRaces raceResult            `json:"refreshRaces"`
	OK           bool                  `json:"ok"`
}

func main() {
	var (
		users       = flag.Int("users", 200, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 5000, "operations per throughput phase")
		storms      = flag.Int("storms", 20, "accounts hit by a wrong-password storm")
		races       = flag.Int("races", 50, "refresh tokens raced concurrently")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "nickauth-loadtest", "redis key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}
	if *storms > *users || *races > *users {
		fmt.Fprintln(os.Stderr, "storms and races must not exceed users")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
		kind    = "redis"
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		kind = "miniredis"
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
	}
	defer cleanup()
	fmt.Fprintf(os.Stderr, "using %s at %s\n", kind, addr)

	engine, err := newEngine(redisstore.New(client, *prefix))
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Fprintf(os.Stderr, "seeding %d users...\n", *users)
	startSeed := time.Now()
	seeded, err := seed(ctx, engine, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	rep := report{
		Store:       kind,
		Users:       *users,
		Concurrency: *concurrency,
		Phases: map[string]phaseStats{
			"authenticate": runAuthenticatePhase(ctx, engine, seeded, *ops, *concurrency),
			"login":        runLoginPhase(ctx, engine, seeded, *ops, *concurrency),
		},
		StormChecks:  runStorms(ctx, engine, seeded[:*storms], *concurrency),
		RefreshRaces: runRefreshRaces(ctx, engine, seeded[len(seeded)-*races:], *concurrency),
	}
	rep.OK = rep.StormChecks.Violations == 0 && rep.RefreshRaces.Violations == 0

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rep)
	if !rep.OK {
		os.Exit(1)
	}
}

func newEngine(st *redisstore.Store) (*nickauth.Engine, error) {
	cfg := nickauth.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.BcryptCost = 4
	cfg.Metrics.Enabled = true
	// No WithRedis: the per-IP limiter would throttle a single-host storm.
	return nickauth.New().WithConfig(cfg).WithStore(st).Build()
}

func seed(ctx context.Context, engine *nickauth.Engine, n int) ([]seededUser, error) {
	out := make([]seededUser, n)
	for i := range out {
		nick := fmt.Sprintf("user_%06d", i)
		res, err := engine.Register(ctx, nickauth.RegisterInput{Nickname: nick, Password: seedPassword})
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", nick, err)
		}
		out[i] = seededUser{id: res.User.ID, nickname: nick, access: res.AccessToken, refresh: res.RefreshToken}
	}
	return out, nil
}

// runPhase runs op ops times across concurrency workers and collects the
// latency of each call.
func runPhase(ops, concurrency int, seedSalt int64, op func(r *rand.Rand, i int) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seedSalt))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
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

func runAuthenticatePhase(ctx context.Context, engine *nickauth.Engine, users []seededUser, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 7919, func(r *rand.Rand, _ int) error {
		_, err := engine.Authenticate(ctx, users[r.Intn(len(users))].access)
		return err
	})
}

func runLoginPhase(ctx context.Context, engine *nickauth.Engine, users []seededUser, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 6151, func(r *rand.Rand, _ int) error {
		res, err := engine.Login(ctx, users[r.Intn(len(users))].nickname, seedPassword)
		if err != nil {
			return err
		}
		// Keep the stored token list short for the refresh races.
		engine.Logout(ctx, res.User.ID, res.RefreshToken)
		return nil
	})
}

type stormResult struct {
	Accounts   int   `json:"accounts"`
	Attempts   int64 `json:"attempts"`
	Locked     int   `json:"locked"`
	Violations int   `json:"violations"`
}

// runStorms fires concurrent wrong-password logins at each account. Every
// account must end up locked: a lost increment would leave it open.
func runStorms(ctx context.Context, engine *nickauth.Engine, users []seededUser, concurrency int) stormResult {
	res := stormResult{Accounts: len(users)}
	workers := concurrency
	if threshold := engine.Config().Lockout.MaxAttempts; workers < threshold {
		workers = threshold
	}
	for _, u := range users {
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = engine.Login(ctx, u.nickname, "definitely-wrong")
				atomic.AddInt64(&res.Attempts, 1)
			}()
		}
		wg.Wait()

		_, err := engine.Login(ctx, u.nickname, seedPassword)
		if errors.Is(err, nickauth.ErrAccountLocked) {
			res.Locked++
		} else {
			res.Violations++
		}
		_, _ = engine.UnlockUser(ctx, u.id)
	}
	return res
}

type raceResult struct {
	Tokens          int `json:"tokens"`
	Winners         int `json:"winners"`
	DoubleAccepted  int `json:"doubleAccepted"`
	OversizedLists  int `json:"oversizedLists"`
	Violations      int `json:"violations"`
	ReuseRevocation int `json:"reuseRevocation"`
}

// runRefreshRaces presents the same refresh token from many goroutines. At
// most one may rotate it, and the stored list must stay within its cap.
func runRefreshRaces(ctx context.Context, engine *nickauth.Engine, users []seededUser, concurrency int) raceResult {
	res := raceResult{Tokens: len(users)}
	maxTokens := engine.Config().RefreshTokens.MaxPerUser
	for _, u := range users {
		var (
			wg      sync.WaitGroup
			winners int64
		)
		for w := 0; w < concurrency; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := engine.Refresh(ctx, u.refresh); err == nil {
					atomic.AddInt64(&winners, 1)
				}
			}()
		}
		wg.Wait()

		switch {
		case winners > 1:
			res.DoubleAccepted++
			res.Violations++
		case winners == 1:
			res.Winners++
		}

		stored, err := engine.Store().FindByID(ctx, u.id)
		if err != nil {
			res.Violations++
			continue
		}
		if len(stored.RefreshTokens) > maxTokens {
			res.OversizedLists++
			res.Violations++
		}
		if len(stored.RefreshTokens) == 0 {
			res.ReuseRevocation++
		}
	}
	return res
}

type phaseStats struct {
	Total    time.Duration `json:"totalNs"`
	Ops      int           `json:"ops"`
	Failures int64         `json:"failures"`
	P50      time.Duration `json:"p50Ns"`
	P95      time.Duration `json:"p95Ns"`
	P99      time.Duration `json:"p99Ns"`
	OpsPerS  float64       `json:"opsPerSec"`
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{Total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		Total:    total,
		Ops:      len(samples),
		Failures: failures,
		P50:      percentile(samples, 50),
		P95:      percentile(samples, 95),
		P99:      percentile(samples, 99),
		OpsPerS:  float64(len(samples)) / total.Seconds(),
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}
