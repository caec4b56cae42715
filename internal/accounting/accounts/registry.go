package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

const (
	versionKey    = "coa:version"
	activeChannel = "coa.active"
)

type resolutionKey struct {
	chartID int64
	code    string
}

// Registry resolves semantic and literal codes to accounts of a chart.
// Resolutions are cached per chart version. The version lives in Redis so an
// activation in one process drops the cache of every other process.
type Registry struct {
	client *redis.Client
	logger *slog.Logger
	group  singleflight.Group

	mu      sync.RWMutex
	version int64
	active  *Chart
	entries map[resolutionKey]Account
}

// NewRegistry builds a registry. A nil client keeps the version process-local.
func NewRegistry(client *redis.Client, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{client: client, logger: logger, entries: make(map[resolutionKey]Account)}
}

// Version returns the shared chart version, initialising it when missing.
func (r *Registry) Version(ctx context.Context) (int64, error) {
	if r.client == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.version, nil
	}
	ver, err := r.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := r.client.SetNX(ctx, versionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return r.client.Get(ctx, versionKey).Int64()
	}
	return ver, err
}

// sync drops cached state when the shared version moved.
func (r *Registry) sync(ctx context.Context) error {
	ver, err := r.Version(ctx)
	if err != nil {
		return fmt.Errorf("accounts: registry version: %w", err)
	}
	r.mu.Lock()
	if ver != r.version {
		r.reset(ver)
	}
	r.mu.Unlock()
	return nil
}

func (r *Registry) reset(ver int64) {
	r.version = ver
	r.active = nil
	r.entries = make(map[resolutionKey]Account)
}

// ActiveChart returns the active chart. Concurrent reloads share one query.
func (r *Registry) ActiveChart(ctx context.Context, st Store) (Chart, error) {
	if err := r.sync(ctx); err != nil {
		return Chart{}, err
	}
	r.mu.RLock()
	cached, ver := r.active, r.version
	r.mu.RUnlock()
	if cached != nil {
		return *cached, nil
	}
	res, err, _ := r.group.Do("active:"+strconv.FormatInt(ver, 10), func() (any, error) {
		chart, err := st.ActiveChart(ctx)
		if errors.Is(err, shared.ErrNotFound) {
			return nil, &shared.AccountResolutionError{Reason: "no active chart"}
		}
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		if r.version == ver {
			r.active = &chart
		}
		r.mu.Unlock()
		return chart, nil
	})
	if err != nil {
		return Chart{}, err
	}
	return res.(Chart), nil
}

// ChartID picks the chart for an operation: the explicit id, else the one
// pinned on the context, else the active chart.
func (r *Registry) ChartID(ctx context.Context, st Store, explicit int64) (int64, error) {
	if explicit > 0 {
		return explicit, nil
	}
	if id, ok := ChartFromContext(ctx); ok {
		return id, nil
	}
	chart, err := r.ActiveChart(ctx, st)
	if err != nil {
		return 0, err
	}
	return chart.ID, nil
}

// Resolve maps a semantic code (CASH) or literal account code (1000) to an
// active account of chartID.
func (r *Registry) Resolve(ctx context.Context, st Store, chartID int64, code string) (Account, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Account{}, shared.Invalid("code", "required")
	}
	if err := r.sync(ctx); err != nil {
		return Account{}, err
	}
	key := resolutionKey{chartID: chartID, code: normalized}
	r.mu.RLock()
	acc, ok := r.entries[key]
	ver := r.version
	r.mu.RUnlock()
	if ok {
		return acc, nil
	}

	accountCode, err := r.accountCode(ctx, st, chartID, normalized)
	if err != nil {
		return Account{}, err
	}
	acc, err = st.AccountByCode(ctx, chartID, accountCode)
	if errors.Is(err, shared.ErrNotFound) {
		return Account{}, &shared.AccountResolutionError{ChartID: chartID, Code: normalized, Reason: "account " + accountCode + " not found"}
	}
	if err != nil {
		return Account{}, fmt.Errorf("accounts: resolve %s: %w", normalized, err)
	}
	if !acc.Active {
		return Account{}, &shared.AccountResolutionError{ChartID: chartID, Code: normalized, Reason: "account " + accountCode + " inactive"}
	}

	r.mu.Lock()
	if r.version == ver {
		r.entries[key] = acc
	}
	r.mu.Unlock()
	return acc, nil
}

func (r *Registry) accountCode(ctx context.Context, st Store, chartID int64, normalized string) (string, error) {
	semantic := Code(normalized)
	mapped, err := st.MappedCode(ctx, chartID, semantic)
	switch {
	case err == nil:
		return mapped, nil
	case !errors.Is(err, shared.ErrNotFound):
		return "", fmt.Errorf("accounts: mapping %s: %w", normalized, err)
	}
	if def, ok := DefaultCode(semantic); ok {
		return def, nil
	}
	return normalized, nil
}

// Invalidate drops every cached resolution here and, through Redis, in every
// process that runs Listen.
func (r *Registry) Invalidate(ctx context.Context) error {
	if r.client == nil {
		r.mu.Lock()
		r.reset(r.version + 1)
		r.mu.Unlock()
		return nil
	}
	ver, err := r.client.Incr(ctx, versionKey).Result()
	if err != nil {
		return fmt.Errorf("accounts: bump version: %w", err)
	}
	r.mu.Lock()
	r.reset(ver)
	r.mu.Unlock()
	if err := r.client.Publish(ctx, activeChannel, strconv.FormatInt(ver, 10)).Err(); err != nil {
		return fmt.Errorf("accounts: publish invalidation: %w", err)
	}
	r.logger.Info("chart cache invalidated", slog.Int64("version", ver))
	return nil
}

// Listen applies invalidations published by other processes until ctx ends.
func (r *Registry) Listen(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	pubsub := r.client.Subscribe(ctx, activeChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("accounts: subscribe %s: %w", activeChannel, err)
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					r.logger.Warn("invalid chart version payload", slog.String("payload", msg.Payload))
					continue
				}
				r.mu.Lock()
				if ver != r.version {
					r.reset(ver)
				}
				r.mu.Unlock()
			}
		}
	}()
	return nil
}
