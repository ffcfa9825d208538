package registry

/*
Пакет registry реализует реестр присутствия агентов: L1-кэш в памяти
поверх долговременного хранилища (Postgres) с write-through записью.
Кэш и база не расходятся: если запись в базу не прошла, кэш остается
нетронутым и вызов завершается StorageError. Статус агента никогда не
хранится — он выводится на чтении из возраста heartbeat, кроме ручного
override, который действует до следующего heartbeat.
*/

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harleysmodernlife/VERN/internal/domain"
	"github.com/harleysmodernlife/VERN/internal/infra"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store описывает требования реестра к долговременному хранилищу.
type Store interface {
	UpsertAgent(ctx context.Context, rec domain.AgentRecord) error
	SetStatusOverride(ctx context.Context, name, status string) error
	GetAgent(ctx context.Context, name string) (*domain.AgentRecord, error)
	ListAgents(ctx context.Context) ([]domain.AgentRecord, error)
	DeleteAgent(ctx context.Context, name string) error
	ClearAgents(ctx context.Context) error
}

type Registry struct {
	mu     sync.RWMutex
	agents map[string]domain.AgentRecord

	store  Store
	rdb    *redis.Client // nil допустим: односерверный режим без сигналов
	logger *zap.Logger

	onlineTTL  time.Duration
	offlineTTL time.Duration

	// degraded поднимается, когда последняя мутация хранилища упала:
	// чтения продолжают обслуживаться из кэша, но помечаются как несвежие.
	degraded atomic.Bool

	now func() time.Time
}

func New(store Store, rdb *redis.Client, onlineTTL, offlineTTL time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		agents:     make(map[string]domain.AgentRecord),
		store:      store,
		rdb:        rdb,
		logger:     logger.Named("registry"),
		onlineTTL:  onlineTTL,
		offlineTTL: offlineTTL,
		now:        time.Now,
	}
}

// Init прогревает L1-кэш из базы при старте.
func (r *Registry) Init(ctx context.Context) error {
	records, err := r.store.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("registry: warm-up failed: %w", err)
	}

	r.mu.Lock()
	r.agents = make(map[string]domain.AgentRecord, len(records))
	for _, rec := range records {
		r.agents[rec.Name] = rec
	}
	r.mu.Unlock()

	r.logger.Info("registry cache warmed", zap.Int("count", len(records)))
	return nil
}

// Heartbeat — идемпотентный upsert присутствия. Сначала база, потом кэш:
// при отказе хранилища кэш не трогается и вызов падает громко.
func (r *Registry) Heartbeat(ctx context.Context, name, cluster string, capabilities, meta any) (domain.AgentRecord, error) {
	if name == "" {
		return domain.AgentRecord{}, domain.NewValidationError("name", "is required")
	}
	if cluster == "" {
		cluster = domain.DefaultCluster
	}

	rec := domain.AgentRecord{
		Name:         name,
		Cluster:      cluster,
		Capabilities: capabilities,
		Meta:         meta,
		LastSeen:     r.now(),
	}

	r.mu.Lock()
	if err := r.store.UpsertAgent(ctx, rec); err != nil {
		r.mu.Unlock()
		r.degraded.Store(true)
		return domain.AgentRecord{}, domain.NewStorageError("heartbeat", err)
	}
	// COALESCE-семантика как в базе: nil не затирает прежние значения
	if prev, ok := r.agents[name]; ok {
		if rec.Capabilities == nil {
			rec.Capabilities = prev.Capabilities
		}
		if rec.Meta == nil {
			rec.Meta = prev.Meta
		}
	}
	r.agents[name] = rec
	r.mu.Unlock()
	r.degraded.Store(false)

	r.publish(ctx, name, "beat")
	return rec.DeriveStatus(r.now(), r.onlineTTL, r.offlineTTL), nil
}

// Get возвращает запись со свеже-производным статусом.
func (r *Registry) Get(ctx context.Context, name string) (domain.AgentRecord, error) {
	r.mu.RLock()
	rec, ok := r.agents[name]
	r.mu.RUnlock()

	if !ok {
		return domain.AgentRecord{}, domain.NewNotFoundError("agent", name)
	}
	return rec.DeriveStatus(r.now(), r.onlineTTL, r.offlineTTL), nil
}

// List возвращает реестр с производными статусами, отсортированный по имени.
// TTL-арифметика работает по снапшоту, вне блокировки.
func (r *Registry) List(ctx context.Context, cluster string) []domain.AgentRecord {
	r.mu.RLock()
	snapshot := make([]domain.AgentRecord, 0, len(r.agents))
	for _, rec := range r.agents {
		if cluster != "" && rec.Cluster != cluster {
			continue
		}
		snapshot = append(snapshot, rec)
	}
	r.mu.RUnlock()

	now := r.now()
	for i := range snapshot {
		snapshot[i] = snapshot[i].DeriveStatus(now, r.onlineTTL, r.offlineTTL)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Name < snapshot[j].Name })
	return snapshot
}

// SetStatus записывает ручной override (например, "draining").
// Он имеет приоритет над TTL-выводом до следующего heartbeat.
func (r *Registry) SetStatus(ctx context.Context, name, status string) error {
	if status == "" {
		return domain.NewValidationError("status", "is required")
	}

	r.mu.Lock()
	rec, ok := r.agents[name]
	if !ok {
		r.mu.Unlock()
		return domain.NewNotFoundError("agent", name)
	}
	if err := r.store.SetStatusOverride(ctx, name, status); err != nil {
		r.mu.Unlock()
		if domain.IsNotFound(err) {
			return err
		}
		r.degraded.Store(true)
		return domain.NewStorageError("set_status", err)
	}
	rec.StatusOverride = status
	r.agents[name] = rec
	r.mu.Unlock()
	r.degraded.Store(false)

	r.publish(ctx, name, "beat")
	return nil
}

// Delete удаляет агента навсегда.
func (r *Registry) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	if err := r.store.DeleteAgent(ctx, name); err != nil {
		r.mu.Unlock()
		if domain.IsNotFound(err) {
			return err
		}
		r.degraded.Store(true)
		return domain.NewStorageError("delete", err)
	}
	delete(r.agents, name)
	r.mu.Unlock()
	r.degraded.Store(false)

	r.publish(ctx, name, "gone")
	return nil
}

// Clear очищает реестр целиком.
func (r *Registry) Clear(ctx context.Context) error {
	r.mu.Lock()
	if err := r.store.ClearAgents(ctx); err != nil {
		r.mu.Unlock()
		r.degraded.Store(true)
		return domain.NewStorageError("clear", err)
	}
	r.agents = make(map[string]domain.AgentRecord)
	r.mu.Unlock()
	r.degraded.Store(false)

	r.publish(ctx, "*", "gone")
	return nil
}

// Degraded сообщает, что последняя мутация хранилища упала и чтения
// из кэша могут быть несвежими.
func (r *Registry) Degraded() bool {
	return r.degraded.Load()
}

// publish шлет сигнал присутствия соседним инстансам. Best effort:
// Redis не является источником истины, поэтому сбой — только warning.
func (r *Registry) publish(ctx context.Context, name, event string) {
	if r.rdb == nil {
		return
	}
	payload := name + ":" + event
	if err := r.rdb.Publish(ctx, infra.RedisChanPresence, payload).Err(); err != nil {
		r.logger.Warn("presence signal delivery failed",
			zap.String("payload", payload), zap.Error(err))
	}
}
