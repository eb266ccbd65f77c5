package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tiendafix/storeapi/cache"
	"github.com/tiendafix/storeapi/common"
	"github.com/tiendafix/storeapi/modules/api"
)

func newTestClient(baseURL string, store common.CacheRepository, opts ...api.Option) api.Client {
	hc := common.NewStoreHttpClient("storeapi-test", &http.Client{}, 5*time.Second)
	return api.NewClient(baseURL, hc, store, opts...)
}

func TestGetJSON_CoalescesConcurrentIdenticalRequests(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":["a","b"],"total":2}`))
	}))
	defer ts.Close()

	client := newTestClient(ts.URL, cache.NewMemory(8))

	type page struct {
		Items []string `json:"items"`
		Total int      `json:"total"`
	}

	var first, second page
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = client.GetJSON(context.Background(), "customers/", &first, nil, nil)
	}()
	go func() {
		defer wg.Done()
		errs[1] = client.GetJSON(context.Background(), "customers/", &second, nil, nil)
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.EqualValues(t, 1, calls.Load(), "concurrent identical GETs must share one network call")
	assert.Equal(t, first, second)

	// each caller decoded its own copy: mutating one result must not
	// leak into the other
	first.Items[0] = "mutated"
	assert.Equal(t, "a", second.Items[0])
}

func TestGetJSON_ServesFromCacheWithinTTL(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":7,"name":"Ana"}`))
	}))
	defer ts.Close()

	mem := cache.NewMemory(8)
	current := time.Now()
	mem.SetNowForTest(func() time.Time { return current })
	client := newTestClient(ts.URL, mem)

	var out map[string]interface{}
	require.NoError(t, client.GetJSON(context.Background(), "customers/7/", &out, nil, nil))
	require.NoError(t, client.GetJSON(context.Background(), "customers/7/", &out, nil, nil))
	assert.EqualValues(t, 1, calls.Load(), "second GET within the TTL must not hit the network")

	current = current.Add(api.DefaultCacheTTL + time.Second)
	require.NoError(t, client.GetJSON(context.Background(), "customers/7/", &out, nil, nil))
	assert.EqualValues(t, 2, calls.Load(), "GET after TTL expiry must refetch")
}

func TestGetJSON_NoCacheBypassesCache(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := newTestClient(ts.URL, cache.NewMemory(8))
	opts := &api.RequestOptions{NoCache: true}

	var out map[string]interface{}
	require.NoError(t, client.GetJSON(context.Background(), "stock/", &out, nil, opts))
	require.NoError(t, client.GetJSON(context.Background(), "stock/", &out, nil, opts))
	assert.EqualValues(t, 2, calls.Load())
}

func TestMutation_ClearsWholeCache(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
		}
		w.Write([]byte(`{"id":1}`))
	}))
	defer ts.Close()

	mem := cache.NewMemory(8)
	client := newTestClient(ts.URL, mem)

	var out map[string]interface{}
	require.NoError(t, client.GetJSON(context.Background(), "customers/1/", &out, nil, nil))
	require.NoError(t, client.GetJSON(context.Background(), "products/1/", &out, nil, nil))
	require.Equal(t, 2, mem.Len())

	require.NoError(t, client.PostJSON(context.Background(), "customers/", map[string]string{"name": "Ana"}, nil, nil, nil))
	assert.Equal(t, 0, mem.Len(), "a completed mutation must leave the cache empty")
}

func TestMutation_FailedCallStillClearsCache(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"detail":"datos inválidos"}`))
			return
		}
		w.Write([]byte(`{"id":1}`))
	}))
	defer ts.Close()

	mem := cache.NewMemory(8)
	client := newTestClient(ts.URL, mem)

	var out map[string]interface{}
	require.NoError(t, client.GetJSON(context.Background(), "customers/1/", &out, nil, nil))
	require.Equal(t, 1, mem.Len())

	err := client.PostJSON(context.Background(), "customers/", map[string]string{}, nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, 0, mem.Len())
}

func TestUnauthorized_ClearsCacheAndSignalsOnce(t *testing.T) {
	var sawGet atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sawGet.Swap(true) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":1}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Token inválido"}`))
	}))
	defer ts.Close()

	mem := cache.NewMemory(8)
	client := newTestClient(ts.URL, mem)

	var signals atomic.Int32
	var lastMessage atomic.Value
	client.Events().Subscribe(common.SignalUnauthorized, func(msg string) {
		signals.Add(1)
		lastMessage.Store(msg)
	})

	var out map[string]interface{}
	require.NoError(t, client.GetJSON(context.Background(), "customers/1/", &out, nil, nil))
	require.Equal(t, 1, mem.Len())

	err := client.GetJSON(context.Background(), "sales/", &out, nil, nil)
	require.Error(t, err)

	var apiErr *common.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, common.KindUnauthorized, apiErr.Kind)
	assert.Equal(t, "Token inválido", apiErr.Message)

	assert.EqualValues(t, 1, signals.Load(), "exactly one unauthorized signal per 401")
	assert.Equal(t, "Token inválido", lastMessage.Load())
	assert.Equal(t, 0, mem.Len(), "401 must clear the cache")
}

func TestUnauthorized_DefaultMessageWhenServerGivesNone(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	client := newTestClient(ts.URL, cache.NewMemory(8))

	var message string
	client.Events().Subscribe(common.SignalUnauthorized, func(msg string) { message = msg })

	var out map[string]interface{}
	err := client.GetJSON(context.Background(), "customers/", &out, nil, nil)
	require.Error(t, err)
	assert.Equal(t, common.SessionExpiredMessage, message)
}

func TestNetworkSignals_DegradedOncePerEpisodeThenRecovered(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := newTestClient(ts.URL, cache.NewMemory(8))

	var degraded, recovered atomic.Int32
	client.Events().Subscribe(common.SignalNetworkError, func(string) { degraded.Add(1) })
	client.Events().Subscribe(common.SignalNetworkRecovered, func(string) { recovered.Add(1) })

	var out map[string]interface{}
	err := client.GetJSON(context.Background(), "customers/", &out, nil, nil)
	require.Error(t, err)
	var apiErr *common.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, common.KindServer, apiErr.Kind)

	// still failing: no second signal for the same episode
	_ = client.GetJSON(context.Background(), "customers/", &out, nil, &api.RequestOptions{NoCache: true})
	assert.EqualValues(t, 1, degraded.Load())
	assert.EqualValues(t, 0, recovered.Load())

	failing.Store(false)
	require.NoError(t, client.GetJSON(context.Background(), "customers/", &out, nil, &api.RequestOptions{NoCache: true}))
	assert.EqualValues(t, 1, recovered.Load())
}

func TestTransportFailure_IsRetryableError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // nothing listening anymore

	client := newTestClient(ts.URL, cache.NewMemory(8))

	var degraded atomic.Int32
	client.Events().Subscribe(common.SignalNetworkError, func(string) { degraded.Add(1) })

	var out map[string]interface{}
	err := client.GetJSON(context.Background(), "customers/", &out, nil, nil)
	require.Error(t, err)

	var apiErr *common.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, common.KindTransport, apiErr.Kind)
	assert.Equal(t, 0, apiErr.Status)
	assert.True(t, common.IsRetryable(err))
	assert.EqualValues(t, 1, degraded.Load())
}

func TestNoContent_ResolvesEmpty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	mem := cache.NewMemory(8)
	client := newTestClient(ts.URL, mem)

	var out map[string]interface{}
	require.NoError(t, client.GetJSON(context.Background(), "ping/", &out, nil, nil))
	assert.Nil(t, out)

	require.NoError(t, client.Delete(context.Background(), "customers/3/", nil, &api.RequestOptions{Reason: "duplicado"}))
	assert.Equal(t, 0, mem.Len())
}

func TestBinaryResponse_PassesThroughUncached(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer ts.Close()

	mem := cache.NewMemory(8)
	client := newTestClient(ts.URL, mem)

	data, err := client.GetBytes(context.Background(), "reports/sales.pdf", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(data))
	assert.Equal(t, 0, mem.Len(), "binary payloads are never cached")

	_, err = client.GetBytes(context.Background(), "reports/sales.pdf", nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestMutation_SendsXReasonAndBearer(t *testing.T) {
	var gotReason, gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReason = r.Header.Get("X-Reason")
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	client := newTestClient(ts.URL, cache.NewMemory(8))
	token := &oauth2.Token{AccessToken: "secret-token-abcdef1234567890"}

	opts := &api.RequestOptions{Reason: "ajuste de inventario"}
	require.NoError(t, client.PostJSON(context.Background(), "adjustments/", map[string]int{"qty": -1}, nil, token, opts))

	assert.Equal(t, "ajuste de inventario", gotReason)
	assert.Equal(t, "Bearer secret-token-abcdef1234567890", gotAuth)
}

func TestCacheKeys_ScopePerTokenAndHeaders(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := newTestClient(ts.URL, cache.NewMemory(8))

	tokenA := &oauth2.Token{AccessToken: "aaaaaaaaaaaaaaaaaaaaaaaa"}
	tokenB := &oauth2.Token{AccessToken: "bbbbbbbbbbbbbbbbbbbbbbbb"}

	var out map[string]interface{}
	require.NoError(t, client.GetJSON(context.Background(), "customers/", &out, tokenA, nil))
	require.NoError(t, client.GetJSON(context.Background(), "customers/", &out, tokenB, nil))
	assert.EqualValues(t, 2, calls.Load(), "different sessions must not share entries")

	require.NoError(t, client.GetJSON(context.Background(), "customers/", &out, tokenA, nil))
	assert.EqualValues(t, 2, calls.Load(), "same session hits its own entry")

	opts := &api.RequestOptions{Headers: map[string]string{"Accept-Language": "es"}}
	require.NoError(t, client.GetJSON(context.Background(), "customers/", &out, tokenA, opts))
	assert.EqualValues(t, 3, calls.Load(), "a different header set is a different key")
}

func TestMutation_DuringInflightGet_DoesNotRepopulateCache(t *testing.T) {
	var gets atomic.Int32
	getStarted := make(chan struct{})
	releaseGet := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			return
		}
		if gets.Add(1) == 1 {
			close(getStarted)
			<-releaseGet
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":1}`))
	}))
	defer ts.Close()

	mem := cache.NewMemory(8)
	client := newTestClient(ts.URL, mem)

	done := make(chan error, 1)
	go func() {
		var out map[string]interface{}
		done <- client.GetJSON(context.Background(), "customers/1/", &out, nil, nil)
	}()
	<-getStarted

	// the mutation lands while the GET is still blocked server-side
	require.NoError(t, client.PostJSON(context.Background(), "customers/", map[string]string{"name": "Ana"}, nil, nil, nil))
	require.Equal(t, 0, mem.Len())

	close(releaseGet)
	require.NoError(t, <-done)
	assert.Equal(t, 0, mem.Len(), "a GET started before the mutation must not repopulate the cache")

	var out map[string]interface{}
	require.NoError(t, client.GetJSON(context.Background(), "customers/1/", &out, nil, nil))
	assert.EqualValues(t, 2, gets.Load(), "the next GET must refetch instead of reading pre-mutation data")
}

func TestMutation_DuringInflightGet_KeepsNewerRequestCoalescing(t *testing.T) {
	var gets atomic.Int32
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	secondStarted := make(chan struct{})
	releaseSecond := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch gets.Add(1) {
		case 1:
			close(firstStarted)
			<-releaseFirst
			w.Write([]byte(`{"v":1}`))
		default:
			close(secondStarted)
			<-releaseSecond
			w.Write([]byte(`{"v":2}`))
		}
	}))
	defer ts.Close()

	mem := cache.NewMemory(8)
	client := newTestClient(ts.URL, mem)

	type doc struct {
		V int `json:"v"`
	}

	var wg sync.WaitGroup
	var first doc
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- client.GetJSON(context.Background(), "stock/", &first, nil, nil)
	}()
	<-firstStarted

	require.NoError(t, client.PostJSON(context.Background(), "adjustments/", map[string]int{"qty": 1}, nil, nil, nil))

	// a fresh GET after the mutation takes a new in-flight slot
	wg.Add(1)
	var second doc
	go func() {
		defer wg.Done()
		_ = client.GetJSON(context.Background(), "stock/", &second, nil, nil)
	}()
	<-secondStarted

	// the stale call finishes: it must neither cache its payload nor evict
	// the newer call's in-flight slot
	close(releaseFirst)
	require.NoError(t, <-firstDone)
	require.Equal(t, 0, mem.Len())

	wg.Add(1)
	var third doc
	go func() {
		defer wg.Done()
		_ = client.GetJSON(context.Background(), "stock/", &third, nil, nil)
	}()
	time.Sleep(20 * time.Millisecond) // let the third call join the second's slot

	close(releaseSecond)
	wg.Wait()

	assert.EqualValues(t, 2, gets.Load(), "the late joiner must share the post-mutation request")
	assert.Equal(t, 1, first.V)
	assert.Equal(t, 2, second.V)
	assert.Equal(t, 2, third.V, "joiners read post-mutation data, never the stale response")
}

func TestCoalescedWaiter_HonorsItsOwnContext(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()
	defer close(release)

	client := newTestClient(ts.URL, cache.NewMemory(8))

	started := make(chan struct{})
	go func() {
		close(started)
		var out map[string]interface{}
		_ = client.GetJSON(context.Background(), "slow/", &out, nil, nil)
	}()
	<-started
	time.Sleep(20 * time.Millisecond) // let the first call take the pending slot

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	var out map[string]interface{}
	err := client.GetJSON(ctx, "slow/", &out, nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
