package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// testClient connects to BONDWIZARD_TEST_REDIS_ADDR or skips.
func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("BONDWIZARD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BONDWIZARD_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr, DB: 15})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Underlying().FlushDB(context.Background()).Err()
		_ = c.Close()
	})
	return c
}

func TestOptions(t *testing.T) {
	testcases := []struct {
		name     string
		cfg      ClientConfig
		wantAddr string
		wantDB   int
		wantTLS  bool
	}{
		{name: "host port", cfg: ClientConfig{Addr: "localhost:6379", DB: 2}, wantAddr: "localhost:6379", wantDB: 2},
		{name: "url", cfg: ClientConfig{Addr: "redis://:pw@cache:6380/3"}, wantAddr: "cache:6380", wantDB: 3},
		{name: "tls url", cfg: ClientConfig{Addr: "rediss://cache:6380/0"}, wantAddr: "cache:6380", wantTLS: true},
		{name: "tls flag", cfg: ClientConfig{Addr: "cache:6379", TLSEnabled: true}, wantAddr: "cache:6379", wantTLS: true},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			opts, err := options(tc.cfg)
			require.NoError(t, err)
			require.Equal(t, tc.wantAddr, opts.Addr)
			require.Equal(t, tc.wantDB, opts.DB)
			require.Equal(t, tc.wantTLS, opts.TLSConfig != nil)
		})
	}
}

func TestPriceCache(t *testing.T) {
	ctx := context.Background()
	pc := NewPriceCache(testClient(t), time.Minute)
	token := "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"

	_, _, err := pc.GetPrice(ctx, token)
	require.ErrorIs(t, err, domain.ErrNotFound)

	ts := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pc.SetPrice(ctx, token, decimal.RequireFromString("0.999912"), ts))

	price, got, err := pc.GetPrice(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "0.999912", price.String())
	require.Equal(t, ts, got)

	prices, err := pc.GetPrices(ctx, []string{token, "0xmissing"})
	require.NoError(t, err)
	require.Len(t, prices, 1)
}

func TestTokenAndOfferingCache(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)

	tc := NewTokenCache(c)
	meta := domain.TokenMeta{Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Symbol: "USDC", Decimals: 6}
	require.NoError(t, tc.Set(ctx, meta))
	got, err := tc.Get(ctx, meta.Address.Hex())
	require.NoError(t, err)
	require.Equal(t, meta, got)

	oc := NewOfferingCache(c, 0)
	_, _, err = oc.GetOfferings(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)
	offerings := []domain.Offering{{ID: "2", Issuer: "B"}, {ID: "1", Issuer: "A"}}
	require.NoError(t, oc.SetOfferings(ctx, offerings))
	list, ts, err := oc.GetOfferings(ctx)
	require.NoError(t, err)
	require.Equal(t, "2", list[0].ID)
	require.False(t, ts.IsZero())
}

func TestLockManager(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(testClient(t))
	key := "session:" + uuid.NewString()

	unlock, err := lm.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, key, time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	again, err := lm.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	again()
}

func TestLockManagerRenewsLease(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)
	lm := NewLockManager(c)
	key := "bond:" + uuid.NewString()

	unlock, err := lm.Acquire(ctx, key, 300*time.Millisecond)
	require.NoError(t, err)
	defer unlock()

	time.Sleep(700 * time.Millisecond)
	_, err = lm.Acquire(ctx, key, time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	n, err := c.Underlying().Exists(ctx, "lock:"+key).Result()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	rl := NewRateLimiter(testClient(t))
	key := "test:" + uuid.NewString()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}
	d, err := rl.Take(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 3, d.Count)
	require.Greater(t, d.RetryAfter, time.Duration(0))
	require.LessOrEqual(t, d.RetryAfter, time.Minute)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, rl.Wait(waitCtx, key, 3, time.Minute), context.DeadlineExceeded)

	other := "test:" + uuid.NewString()
	require.NoError(t, rl.Wait(ctx, other, 1, time.Minute))
}

func TestSignalBus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sb := NewSignalBus(testClient(t))

	msgs, err := sb.Subscribe(ctx, "ch:sequence:*")
	require.NoError(t, err)
	require.NoError(t, sb.Publish(ctx, "ch:sequence:abc", []byte(`{"state":"idle"}`)))

	msg := <-msgs
	require.Equal(t, "ch:sequence:abc", msg.Channel)
	require.JSONEq(t, `{"state":"idle"}`, string(msg.Payload))

	stream := "stream:sequence:" + uuid.NewString()
	require.NoError(t, sb.StreamAppend(ctx, stream, []byte("one")))
	require.NoError(t, sb.StreamAppend(ctx, stream, []byte("two")))
	history, err := sb.StreamRange(ctx, stream, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "two", string(history[1].Payload))
}
