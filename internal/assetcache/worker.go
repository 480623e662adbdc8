package assetcache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/binge-hub/binge-hub/internal/cache"
	"github.com/binge-hub/binge-hub/internal/logging"
)

// WorkerState 描述 FetchWorker 的生命周期：Created → Running → {Completed, Failed}。
type WorkerState int32

const (
	WorkerCreated WorkerState = iota
	WorkerRunning
	WorkerCompleted
	WorkerFailed
)

func (s WorkerState) String() string {
	switch s {
	case WorkerCreated:
		return "created"
	case WorkerRunning:
		return "running"
	case WorkerCompleted:
		return "completed"
	case WorkerFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Tier 标识资源最终从哪一层取得。
type Tier string

const (
	TierMemory  Tier = "memory"
	TierDisk    Tier = "disk"
	TierNetwork Tier = "network"
)

// FetchWorker 负责单个 key 的一次取数：磁盘命中则解码本地字节，否则走 Source 回源。
// 每个 worker 只产出一个终态事件，不做重试。
type FetchWorker[T any] struct {
	id        string
	key       string
	state     atomic.Int32
	store     cache.Store
	namespace string
	source    Source
	decode    Decoder[T]
	logger    *logrus.Entry
}

// fetchEvent 是 worker 交给协调协程的终态事件。
type fetchEvent[T any] struct {
	worker  *FetchWorker[T]
	key     string
	asset   T
	raw     []byte
	tier    Tier
	err     error
	elapsed time.Duration
}

func newFetchWorker[T any](r *Resolver[T], key string) *FetchWorker[T] {
	id := uuid.NewString()
	return &FetchWorker[T]{
		id:        id,
		key:       key,
		store:     r.store,
		namespace: r.namespace,
		source:    r.source,
		decode:    r.decode,
		logger:    r.logger.WithFields(logging.AssetFields(r.name, key, "")).WithField("worker_id", id),
	}
}

func (w *FetchWorker[T]) ID() string { return w.id }

func (w *FetchWorker[T]) Key() string { return w.key }

// State 可在任意协程读取。
func (w *FetchWorker[T]) State() WorkerState { return WorkerState(w.state.Load()) }

func (w *FetchWorker[T]) run(ctx context.Context) fetchEvent[T] {
	w.state.Store(int32(WorkerRunning))
	started := time.Now()

	if asset, ok := w.fromDisk(ctx); ok {
		w.state.Store(int32(WorkerCompleted))
		return fetchEvent[T]{worker: w, key: w.key, asset: asset, tier: TierDisk, elapsed: time.Since(started)}
	}

	raw, err := w.source.Fetch(ctx, w.key)
	if err != nil {
		return w.fail(err, started)
	}
	asset, err := w.decode(w.key, raw)
	if err != nil {
		if !errors.Is(err, ErrDecode) {
			err = fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return w.fail(err, started)
	}

	w.state.Store(int32(WorkerCompleted))
	return fetchEvent[T]{worker: w, key: w.key, asset: asset, raw: raw, tier: TierNetwork, elapsed: time.Since(started)}
}

// fromDisk 读取并解码磁盘副本。读失败或内容损坏都按未命中处理，交给网络层重新获取。
func (w *FetchWorker[T]) fromDisk(ctx context.Context) (T, bool) {
	var zero T
	if w.store == nil {
		return zero, false
	}
	locator := cache.Locator{Namespace: w.namespace, Key: w.key}
	if !w.store.Exists(ctx, locator) {
		return zero, false
	}

	raw, err := w.store.Read(ctx, locator)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			w.logger.WithError(err).Warn("disk_read_failed")
		}
		return zero, false
	}

	asset, err := w.decode(w.key, raw)
	if err != nil {
		w.logger.WithError(fmt.Errorf("%w: %w", cache.ErrCorruptData, err)).Warn("disk_entry_corrupt")
		return zero, false
	}
	return asset, true
}

func (w *FetchWorker[T]) fail(err error, started time.Time) fetchEvent[T] {
	w.state.Store(int32(WorkerFailed))
	return fetchEvent[T]{worker: w, key: w.key, err: err, elapsed: time.Since(started)}
}
