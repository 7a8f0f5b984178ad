package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/AgriBot-NLU/pkg/errors"
)

type CacheTestSuite struct {
	suite.Suite
	mock  redismock.ClientMock
	cache Cache
}

func (s *CacheTestSuite) SetupTest() {
	db, mock := redismock.NewClientMock()
	s.mock = mock
	client := newClientWithUniversal(db, &RedisConfig{}, logging.NewNopLogger())
	s.cache = NewRedisCache(client, logging.NewNopLogger(), WithPrefix("test:"))
}

func (s *CacheTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

type testStruct struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func (s *CacheTestSuite) TestGet_CacheHit() {
	val := testStruct{Name: "cà chua", Age: 3}
	data, _ := json.Marshal(val)
	s.mock.ExpectGet("test:key1").SetVal(string(data))

	var dest testStruct
	err := s.cache.Get(context.Background(), "key1", &dest)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), val, dest)
}

func (s *CacheTestSuite) TestGet_CacheMiss() {
	s.mock.ExpectGet("test:key1").RedisNil()

	var dest testStruct
	err := s.cache.Get(context.Background(), "key1", &dest)
	assert.Equal(s.T(), ErrCacheMiss, err)
}

func (s *CacheTestSuite) TestGet_BackendError() {
	s.mock.ExpectGet("test:key1").SetErr(errors.New("READONLY"))

	var dest testStruct
	err := s.cache.Get(context.Background(), "key1", &dest)
	assert.True(s.T(), pkgerrors.IsCode(err, pkgerrors.ErrCodeCacheError))
}

func (s *CacheTestSuite) TestGet_CorruptValue() {
	s.mock.ExpectGet("test:key1").SetVal("{not json")

	var dest testStruct
	err := s.cache.Get(context.Background(), "key1", &dest)
	assert.True(s.T(), pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))
}

func (s *CacheTestSuite) TestDelete() {
	s.mock.ExpectDel("test:k1", "test:k2").SetVal(2)
	assert.NoError(s.T(), s.cache.Delete(context.Background(), "k1", "k2"))
	assert.NoError(s.T(), s.cache.Delete(context.Background()))
}

func (s *CacheTestSuite) TestLoad_HitSkipsLoader() {
	val := testStruct{Name: "lúa", Age: 1}
	data, _ := json.Marshal(val)
	s.mock.ExpectGet("test:key1").SetVal(string(data))

	var dest testStruct
	hit, err := s.cache.Load(context.Background(), "key1", &dest, time.Minute, func(ctx context.Context) (interface{}, bool, error) {
		s.T().Error("loader must not run on a hit")
		return nil, false, nil
	})
	assert.NoError(s.T(), err)
	assert.True(s.T(), hit)
	assert.Equal(s.T(), val, dest)
}

func (s *CacheTestSuite) TestPurge_ScanError() {
	s.mock.ExpectScan(0, "test:ner:*", purgeBatch).SetErr(errors.New("NOPERM"))

	_, err := s.cache.Purge(context.Background(), "ner:")
	assert.True(s.T(), pkgerrors.IsCode(err, pkgerrors.ErrCodeCacheError))
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func TestCache_SetUsesDefaultTTL(t *testing.T) {
	client, mr := newMiniClient(t)
	cache := NewRedisCache(client, nil)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", testStruct{Name: "a"}, time.Minute))
	assert.True(t, mr.Exists("agrinlu:a"))
	assert.InDelta(t, float64(time.Minute), float64(mr.TTL("agrinlu:a")), float64(7*time.Second))

	require.NoError(t, cache.Set(ctx, "b", testStruct{Name: "b"}, 0))
	assert.Greater(t, mr.TTL("agrinlu:b"), time.Duration(0))
}

func TestCache_LoadSharesConcurrentMisses(t *testing.T) {
	client, _ := newMiniClient(t)
	cache := NewRedisCache(client, nil)
	ctx := context.Background()

	var calls atomic.Int32
	load := func(ctx context.Context) (interface{}, bool, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return testStruct{Name: "loaded", Age: 7}, true, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var dest testStruct
			_, err := cache.Load(ctx, "b", &dest, 0, load)
			assert.NoError(t, err)
			assert.Equal(t, "loaded", dest.Name)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(2))

	var dest testStruct
	hit, err := cache.Load(ctx, "b", &dest, 0, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 7, dest.Age)
}

func TestCache_LoadSurvivesFirstCallerCancel(t *testing.T) {
	client, mr := newMiniClient(t)
	cache := NewRedisCache(client, nil, WithLoadTimeout(time.Second))

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	load := func(ctx context.Context) (interface{}, bool, error) {
		once.Do(func() { close(started) })
		select {
		case <-release:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
		return testStruct{Name: "shared"}, true, nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		var dest testStruct
		_, err := cache.Load(firstCtx, "e", &dest, time.Minute, load)
		firstErr <- err
	}()
	<-started

	secondErr := make(chan error, 1)
	var second testStruct
	go func() {
		_, err := cache.Load(context.Background(), "e", &second, time.Minute, load)
		secondErr <- err
	}()

	cancelFirst()
	err := <-firstErr
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ErrCodeTimeout, pkgerrors.GetCode(err))

	close(release)
	require.NoError(t, <-secondErr)
	assert.Equal(t, "shared", second.Name)
	assert.True(t, mr.Exists("agrinlu:e"))
}

func TestCache_LoadWithoutKeep(t *testing.T) {
	client, mr := newMiniClient(t)
	cache := NewRedisCache(client, nil)

	var dest testStruct
	hit, err := cache.Load(context.Background(), "degraded", &dest, time.Minute, func(ctx context.Context) (interface{}, bool, error) {
		return testStruct{Name: "rules only"}, false, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "rules only", dest.Name)
	assert.False(t, mr.Exists("agrinlu:degraded"))
}

func TestCache_LoadError(t *testing.T) {
	client, mr := newMiniClient(t)
	cache := NewRedisCache(client, nil)

	var dest testStruct
	_, err := cache.Load(context.Background(), "c", &dest, time.Minute, func(ctx context.Context) (interface{}, bool, error) {
		return nil, false, errors.New("model down")
	})
	assert.EqualError(t, err, "model down")
	assert.False(t, mr.Exists("agrinlu:c"))
}

func TestCache_LoadWhenRedisDown(t *testing.T) {
	client, mr := newMiniClient(t)
	cache := NewRedisCache(client, nil)
	mr.Close()

	var dest testStruct
	hit, err := cache.Load(context.Background(), "d", &dest, time.Minute, func(ctx context.Context) (interface{}, bool, error) {
		return testStruct{Name: "direct"}, true, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "direct", dest.Name)
}

func TestCache_Purge(t *testing.T) {
	client, mr := newMiniClient(t)
	cache := NewRedisCache(client, nil)
	ctx := context.Background()

	for _, k := range []string{"ner:1", "ner:2", "intent:1"} {
		require.NoError(t, cache.Set(ctx, k, 1, time.Minute))
	}
	n, err := cache.Purge(ctx, "ner:")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, mr.Exists("agrinlu:intent:1"))
	assert.NoError(t, cache.Ping(ctx))
}

//Personal.AI order the ending
