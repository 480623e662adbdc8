package assetcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/binge-hub/binge-hub/internal/cache"
	"github.com/binge-hub/binge-hub/internal/logging"
)

const defaultMaxConcurrent = 4

// Options 描述 Resolver 的依赖。Store 为 nil 时只有内存层与网络层。
type Options[T any] struct {
	Name          string
	Store         cache.Store
	Namespace     string
	Source        Source
	Decode        Decoder[T]
	Logger        *logrus.Logger
	Metrics       *Metrics
	MaxConcurrent int
	// OnFailure 在协调协程上针对每次失败的取数调用一次，仅用于诊断。
	OnFailure func(key string, err error)
}

// Resolver 按 内存 → 进行中的取数 → 新 worker（磁盘或网络）的顺序解析资源。
//
// pending 与 memory 的读写都在 mu 保护下完成；晋升与回调只在 loop 协程上执行，
// 因此同一 key 的回调按注册顺序串行触发。
type Resolver[T any] struct {
	name      string
	store     cache.Store
	namespace string
	source    Source
	decode    Decoder[T]
	logger    *logrus.Logger
	metrics   *Metrics
	onFailure func(key string, err error)

	memory *MemoryTier[T]
	sem    *semaphore.Weighted

	mu      sync.Mutex
	pending map[string]*pendingFetch[T]
	closed  bool

	ctx       context.Context
	cancel    context.CancelFunc
	workers   sync.WaitGroup
	events    chan fetchEvent[T]
	loopDone  chan struct{}
	closeOnce sync.Once

	stats resolverStats
}

// pendingFetch 表示某个 key 唯一的一次进行中解析。
type pendingFetch[T any] struct {
	key     string
	worker  *FetchWorker[T]
	waiters []waiter[T]
	started time.Time
}

type waiter[T any] struct {
	ready  func(T)
	failed func(error)
}

type resolverStats struct {
	memoryHits      atomic.Int64
	deduplicated    atomic.Int64
	workersSpawned  atomic.Int64
	diskHits        atomic.Int64
	networkFetches  atomic.Int64
	failures        atomic.Int64
	promotionErrors atomic.Int64
}

// Stats 是 Resolver 计数器的快照。
type Stats struct {
	MemoryHits      int64 `json:"memory_hits"`
	Deduplicated    int64 `json:"deduplicated"`
	WorkersSpawned  int64 `json:"workers_spawned"`
	DiskHits        int64 `json:"disk_hits"`
	NetworkFetches  int64 `json:"network_fetches"`
	Failures        int64 `json:"failures"`
	PromotionErrors int64 `json:"promotion_errors"`
	MemoryEntries   int   `json:"memory_entries"`
	Pending         int   `json:"pending"`
}

// PendingInfo 描述一次进行中的取数，供诊断接口输出。
type PendingInfo struct {
	Key      string        `json:"key"`
	WorkerID string        `json:"worker_id"`
	State    string        `json:"state"`
	Waiters  int           `json:"waiters"`
	Age      time.Duration `json:"age_ns"`
}

// NewResolver 构建 Resolver 并启动协调协程。调用方在退出前应调用 Close。
func NewResolver[T any](opts Options[T]) (*Resolver[T], error) {
	if opts.Source == nil {
		return nil, errors.New("asset source is required")
	}
	if opts.Decode == nil {
		return nil, errors.New("asset decoder is required")
	}
	if opts.Store != nil && opts.Namespace == "" {
		return nil, errors.New("cache namespace is required when a store is configured")
	}
	if opts.Name == "" {
		opts.Name = "assets"
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewDiscardLogger()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Resolver[T]{
		name:      opts.Name,
		store:     opts.Store,
		namespace: opts.Namespace,
		source:    opts.Source,
		decode:    opts.Decode,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		onFailure: opts.OnFailure,
		memory:    NewMemoryTier[T](),
		sem:       semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		pending:   make(map[string]*pendingFetch[T]),
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan fetchEvent[T]),
		loopDone:  make(chan struct{}),
	}
	go r.loop()
	return r, nil
}

// Name 返回 Resolver 名称（日志与指标中的 resolver 标签）。
func (r *Resolver[T]) Name() string {
	return r.name
}

// Resolve 注册 onReady 并立即返回。内存命中时 onReady 在当前协程同步调用；
// 否则在唯一一次取数完成后于协调协程调用，且每次 Resolve 调用恰好一次。
// 取数失败时 onReady 不会被调用，调用方需重新 Resolve 才会重试。
func (r *Resolver[T]) Resolve(key string, onReady func(T)) {
	r.register(key, waiter[T]{ready: onReady})
}

// Await 是 Resolve 的阻塞版本，额外能观察到取数失败的原因。
// ctx 只约束等待本身，不会取消底层的取数。回调运行在协调协程上，
// 不得在 onReady 或 OnFailure 中调用 Await 或 Close，否则会死锁。
func (r *Resolver[T]) Await(ctx context.Context, key string) (T, error) {
	type outcome struct {
		asset T
		err   error
	}
	done := make(chan outcome, 1)
	r.register(key, waiter[T]{
		ready:  func(asset T) { done <- outcome{asset: asset} },
		failed: func(err error) { done <- outcome{err: err} },
	})

	select {
	case out := <-done:
		return out.asset, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek 只查询内存层，不触发任何取数。
func (r *Resolver[T]) Peek(key string) (T, bool) {
	return r.memory.Get(key)
}

func (r *Resolver[T]) register(key string, w waiter[T]) {
	fields := logging.AssetFields(r.name, key, "")

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.WithFields(fields).Warn("resolve_after_close")
		r.fail(w, ErrClosed)
		return
	}

	if asset, ok := r.memory.Get(key); ok {
		r.mu.Unlock()
		r.stats.memoryHits.Add(1)
		r.metrics.observeResolution(r.name, string(TierMemory))
		r.deliver(key, w, asset)
		return
	}

	if p, ok := r.pending[key]; ok {
		p.waiters = append(p.waiters, w)
		r.mu.Unlock()
		r.stats.deduplicated.Add(1)
		r.metrics.observeResolution(r.name, "pending")
		return
	}

	worker := newFetchWorker(r, key)
	r.pending[key] = &pendingFetch[T]{
		key:     key,
		worker:  worker,
		waiters: []waiter[T]{w},
		started: time.Now(),
	}
	inflight := len(r.pending)
	r.workers.Add(1)
	r.mu.Unlock()

	r.stats.workersSpawned.Add(1)
	r.metrics.setInflight(r.name, inflight)
	r.logger.WithFields(fields).WithField("worker_id", worker.ID()).Debug("fetch_spawned")

	go r.runWorker(worker)
}

func (r *Resolver[T]) runWorker(worker *FetchWorker[T]) {
	defer r.workers.Done()

	if err := r.sem.Acquire(r.ctx, 1); err != nil {
		r.events <- worker.fail(err, time.Now())
		return
	}
	ev := worker.run(r.ctx)
	r.sem.Release(1)
	r.events <- ev
}

// loop 是唯一执行晋升与回调的协程。
func (r *Resolver[T]) loop() {
	defer close(r.loopDone)
	for ev := range r.events {
		r.complete(ev)
	}
}

func (r *Resolver[T]) complete(ev fetchEvent[T]) {
	fields := logging.AssetFields(r.name, ev.key, string(ev.tier))
	fields["worker_id"] = ev.worker.ID()
	fields["elapsed_ms"] = ev.elapsed.Milliseconds()

	if ev.err != nil {
		p := r.takePending(ev.key, nil)
		r.stats.failures.Add(1)
		r.metrics.observeFailure(r.name, failureReason(ev.err))
		r.logger.WithFields(fields).WithError(ev.err).Warn("asset_fetch_failed")
		if r.onFailure != nil {
			r.safeCall(ev.key, func() { r.onFailure(ev.key, ev.err) })
		}
		if p != nil {
			for _, w := range p.waiters {
				r.fail(w, ev.err)
			}
		}
		return
	}

	switch ev.tier {
	case TierDisk:
		r.stats.diskHits.Add(1)
	case TierNetwork:
		r.stats.networkFetches.Add(1)
		r.promoteToDisk(ev, fields)
	}
	r.metrics.observeResolution(r.name, string(ev.tier))
	r.metrics.observeFetch(r.name, ev.tier, ev.elapsed.Seconds())

	asset := ev.asset
	p := r.takePending(ev.key, func() { r.memory.Put(ev.key, asset) })
	r.logger.WithFields(fields).Debug("asset_resolved")
	if p == nil {
		return
	}
	for _, w := range p.waiters {
		r.deliver(ev.key, w, asset)
	}
}

// promoteToDisk 持久化网络取回的原始字节。写入失败不影响本次回调。
func (r *Resolver[T]) promoteToDisk(ev fetchEvent[T], fields logrus.Fields) {
	if r.store == nil {
		return
	}
	locator := cache.Locator{Namespace: r.namespace, Key: ev.key}
	if err := r.store.Write(context.Background(), locator, ev.raw); err != nil {
		r.stats.promotionErrors.Add(1)
		r.metrics.observeCacheWrite(r.name, false)
		r.logger.WithFields(fields).WithError(err).Warn("cache_write_failed")
		return
	}
	r.metrics.observeCacheWrite(r.name, true)
}

// takePending 在锁内移除 pending 记录，mutate 在同一临界区内执行（写内存层）。
func (r *Resolver[T]) takePending(key string, mutate func()) *pendingFetch[T] {
	r.mu.Lock()
	if mutate != nil {
		mutate()
	}
	p := r.pending[key]
	delete(r.pending, key)
	inflight := len(r.pending)
	r.mu.Unlock()

	r.metrics.setInflight(r.name, inflight)
	return p
}

func (r *Resolver[T]) deliver(key string, w waiter[T], asset T) {
	if w.ready == nil {
		return
	}
	r.safeCall(key, func() { w.ready(asset) })
}

func (r *Resolver[T]) fail(w waiter[T], err error) {
	if w.failed == nil {
		return
	}
	w.failed(err)
}

// safeCall 隔离回调 panic，避免拖垮协调协程。
func (r *Resolver[T]) safeCall(key string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logging.AssetFields(r.name, key, "")).
				WithField("panic", fmt.Sprint(rec)).
				Error("asset_callback_panic")
		}
	}()
	fn()
}

// Pending 返回进行中取数的快照，按 key 排序。
func (r *Resolver[T]) Pending() []PendingInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	result := make([]PendingInfo, 0, len(r.pending))
	for _, p := range r.pending {
		result = append(result, PendingInfo{
			Key:      p.key,
			WorkerID: p.worker.ID(),
			State:    p.worker.State().String(),
			Waiters:  len(p.waiters),
			Age:      now.Sub(p.started),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return result
}

// Stats 返回计数器快照。
func (r *Resolver[T]) Stats() Stats {
	r.mu.Lock()
	pending := len(r.pending)
	r.mu.Unlock()

	return Stats{
		MemoryHits:      r.stats.memoryHits.Load(),
		Deduplicated:    r.stats.deduplicated.Load(),
		WorkersSpawned:  r.stats.workersSpawned.Load(),
		DiskHits:        r.stats.diskHits.Load(),
		NetworkFetches:  r.stats.networkFetches.Load(),
		Failures:        r.stats.failures.Load(),
		PromotionErrors: r.stats.promotionErrors.Load(),
		MemoryEntries:   r.memory.Len(),
		Pending:         pending,
	}
}

// Close 停止接受新请求并等待进行中的 worker 结束。排队中的 worker 以
// context.Canceled 失败；已开始的取数由 ctx 取消打断。不得在回调中调用。
func (r *Resolver[T]) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		r.cancel()
		r.workers.Wait()
		close(r.events)
		<-r.loopDone
	})
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, context.Canceled):
		return "shutdown"
	default:
		return "network"
	}
}

// Inspector 是诊断接口需要的只读视图，任意类型参数的 Resolver 都满足。
type Inspector interface {
	Name() string
	Stats() Stats
	Pending() []PendingInfo
}

var _ Inspector = (*Resolver[*Image])(nil)
