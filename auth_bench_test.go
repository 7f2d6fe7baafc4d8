package nickauth

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	redisstore "github.com/MrEthical07/nickauth/store/redis"
)

func newBenchmarkEngine(b *testing.B) (*Engine, *AuthResult) {
	b.Helper()

	mr := miniredis.RunT(b)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	cfg.Audit.Enabled = false
	cfg.RateLimit.AuthMaxFailures = 0
	cfg.RefreshTokens.MaxPerUser = 5

	engine, err := New().
		WithConfig(cfg).
		WithStore(redisstore.New(rdb, "bench")).
		Build()
	if err != nil {
		b.Fatalf("build: %v", err)
	}
	b.Cleanup(engine.Close)

	res, err := engine.Register(context.Background(), RegisterInput{Nickname: "bench_user", Password: "longenough1"})
	if err != nil {
		b.Fatalf("register: %v", err)
	}
	return engine, res
}

func BenchmarkAuthenticate(b *testing.B) {
	engine, res := newBenchmarkEngine(b)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Authenticate(context.Background(), res.AccessToken); err != nil {
			b.Fatalf("authenticate: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	engine, res := newBenchmarkEngine(b)
	token := res.RefreshToken

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		next, err := engine.Refresh(context.Background(), token)
		if err != nil {
			b.Fatalf("refresh: %v", err)
		}
		token = next.RefreshToken
	}
}

func BenchmarkCheckUser(b *testing.B) {
	engine, _ := newBenchmarkEngine(b)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.CheckUser(context.Background(), "bench_user"); err != nil {
			b.Fatalf("check: %v", err)
		}
	}
}
