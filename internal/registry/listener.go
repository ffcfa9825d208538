package registry

import (
	"context"
	"strings"
	"time"

	"github.com/harleysmodernlife/VERN/internal/domain"
	"github.com/harleysmodernlife/VERN/internal/infra"
	"go.uber.org/zap"
)

// StartListener — живучая подписка на сигналы присутствия соседних
// инстансов. Обрабатывает переподключения: при каждом успешном коннекте
// кэш пересинхронизируется с базой, чтобы не потерять пропущенные сигналы.
func (r *Registry) StartListener(ctx context.Context) {
	if r.rdb == nil {
		return
	}

	for {
		pubsub := r.rdb.Subscribe(ctx, infra.RedisChanPresence)

		if _, err := pubsub.Receive(ctx); err != nil {
			r.logger.Error("failed to subscribe to presence channel", zap.Error(err))
			pubsub.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}

		if err := r.Init(ctx); err != nil {
			r.logger.Error("cache sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				r.applySignal(ctx, msg.Payload)
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}

// applySignal разбирает формат "name:beat" / "name:gone" / "*:gone".
func (r *Registry) applySignal(ctx context.Context, payload string) {
	idx := strings.LastIndex(payload, ":")
	if idx <= 0 || idx == len(payload)-1 {
		r.logger.Error("invalid presence signal format", zap.String("payload", payload))
		return
	}
	name, event := payload[:idx], payload[idx+1:]

	switch event {
	case "beat":
		rec, err := r.store.GetAgent(ctx, name)
		if err != nil {
			r.logger.Warn("presence sync: fetch failed", zap.String("name", name), zap.Error(err))
			return
		}
		if rec == nil {
			return
		}
		r.mu.Lock()
		r.agents[name] = *rec
		r.mu.Unlock()
	case "gone":
		r.mu.Lock()
		if name == "*" {
			r.agents = make(map[string]domain.AgentRecord)
		} else {
			delete(r.agents, name)
		}
		r.mu.Unlock()
	default:
		r.logger.Error("unknown presence event", zap.String("payload", payload))
	}
}
