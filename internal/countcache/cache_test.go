package countcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ernie/portal-repository/internal/testutil"
)

type filter struct {
	GameType string
}

type CacheSuite struct {
	suite.Suite
	cache *Cache
	ctx   context.Context
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupTest() {
	s.cache = New(NewMemory(16, time.Minute), testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *CacheSuite) TestMissThenHit() {
	calls := 0
	load := func(context.Context) (int64, error) {
		calls++
		return 42, nil
	}

	v, err := s.cache.Count(s.ctx, ScopePlayers, filter{GameType: "cod4"}, load)
	s.Require().NoError(err)
	s.Equal(int64(42), v)

	v, err = s.cache.Count(s.ctx, ScopePlayers, filter{GameType: "cod4"}, load)
	s.Require().NoError(err)
	s.Equal(int64(42), v)
	s.Equal(1, calls)
}

func (s *CacheSuite) TestDistinctParamsAreDistinctKeys() {
	load := func(v int64) Loader {
		return func(context.Context) (int64, error) { return v, nil }
	}

	a, err := s.cache.Count(s.ctx, ScopePlayers, filter{GameType: "cod4"}, load(1))
	s.Require().NoError(err)
	b, err := s.cache.Count(s.ctx, ScopePlayers, filter{GameType: "rust"}, load(2))
	s.Require().NoError(err)
	c, err := s.cache.Count(s.ctx, ScopeTags, filter{GameType: "cod4"}, load(3))
	s.Require().NoError(err)

	s.Equal([]int64{1, 2, 3}, []int64{a, b, c})
}

func (s *CacheSuite) TestLoadErrorIsNotCached() {
	_, err := s.cache.Count(s.ctx, ScopePlayers, filter{}, func(context.Context) (int64, error) {
		return 0, errors.New("boom")
	})
	s.Error(err)

	v, err := s.cache.Count(s.ctx, ScopePlayers, filter{}, func(context.Context) (int64, error) {
		return 7, nil
	})
	s.Require().NoError(err)
	s.Equal(int64(7), v)
}

func (s *CacheSuite) TestInvalidateScope() {
	var calls int
	load := func(context.Context) (int64, error) {
		calls++
		return int64(calls), nil
	}

	_, err := s.cache.Count(s.ctx, ScopePlayers, filter{}, load)
	s.Require().NoError(err)
	_, err = s.cache.Count(s.ctx, ScopeTags, filter{}, load)
	s.Require().NoError(err)

	s.cache.Invalidate(s.ctx, ScopePlayers)

	v, err := s.cache.Count(s.ctx, ScopePlayers, filter{}, load)
	s.Require().NoError(err)
	s.Equal(int64(3), v)

	v, err = s.cache.Count(s.ctx, ScopeTags, filter{}, load)
	s.Require().NoError(err)
	s.Equal(int64(2), v)
}

func (s *CacheSuite) TestConcurrentMissesShareOneLoad() {
	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (int64, error) {
		calls.Add(1)
		<-release
		return 9, nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.cache.Count(s.ctx, ScopePlayers, filter{}, load)
			if err == nil {
				results <- v
			}
		}()
	}

	s.Eventually(func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	s.Equal(int32(1), calls.Load())
	for v := range results {
		s.Equal(int64(9), v)
	}
}

func (s *CacheSuite) TestCallerCancellationDoesNotAbortSharedLoad() {
	release := make(chan struct{})
	var loadErr atomic.Value
	load := func(ctx context.Context) (int64, error) {
		<-release
		if err := ctx.Err(); err != nil {
			loadErr.Store(err)
		}
		return 5, nil
	}

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() {
		_, err := s.cache.Count(ctx, ScopePlayers, filter{}, load)
		done <- err
	}()
	cancel()
	s.ErrorIs(<-done, context.Canceled)
	close(release)

	s.Eventually(func() bool {
		v, ok, _ := s.cache.backend.Get(s.ctx, mustKey(ScopePlayers, filter{}))
		return ok && v == 5
	}, time.Second, time.Millisecond)
	s.Nil(loadErr.Load())
}

func (s *CacheSuite) TestMemoryEntriesExpire() {
	mem := NewMemory(4, 20*time.Millisecond)
	s.Require().NoError(mem.Set(s.ctx, "k", 1))
	_, ok, _ := mem.Get(s.ctx, "k")
	s.True(ok)

	s.Eventually(func() bool {
		_, ok, _ := mem.Get(s.ctx, "k")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func (s *CacheSuite) TestOpenRejectsUnknownBackend() {
	cfg := DefaultConfig()
	cfg.Backend = "memcached"
	_, err := Open(cfg, testutil.NopLogger())
	s.Error(err)

	c, err := Open(DefaultConfig(), testutil.NopLogger())
	s.Require().NoError(err)
	s.IsType(&Memory{}, c.backend)
}

func mustKey(scope string, params any) string {
	key, err := countKey(scope, params)
	if err != nil {
		panic(err)
	}
	return key
}
