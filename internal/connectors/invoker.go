package connectors

import (
	"context"

	"github.com/harleysmodernlife/VERN/internal/domain"
)

// AgentInvoker — контракт исполнителя хода. Реализация сама решает,
// в какой форме вернуть результат (значение, поток, отложенный вызов).
type AgentInvoker interface {
	Invoke(ctx context.Context, req domain.TurnRequest) (domain.Result, error)
}
