package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harleysmodernlife/VERN/internal/audit"
	"github.com/harleysmodernlife/VERN/internal/connectors"
	"github.com/harleysmodernlife/VERN/internal/consent"
	"github.com/harleysmodernlife/VERN/internal/domain"

	"go.uber.org/zap"
)

// Имя агента-ассистента, чей статус присутствия попадает в аудит хода.
const DefaultAssistantAgent = "vern_assistant"

// ConsentGate — то, что шлюзу нужно от движка согласий.
type ConsentGate interface {
	Evaluate(action domain.ActionKind, userID string, turnCtx map[string]any) consent.Verdict
}

// PresenceReader отдает текущую запись агента с производным статусом.
type PresenceReader interface {
	Get(ctx context.Context, name string) (domain.AgentRecord, error)
}

// Core — единая точка входа хода: проверка согласия, диспатч,
// нормализация и аудит. Ошибка исполнителя не валит ход, а
// сворачивается в текст ответа.
type Core struct {
	gate      ConsentGate
	invoker   connectors.AgentInvoker
	auditor   audit.Auditor
	presence  PresenceReader
	metrics   *Metrics
	logger    *zap.Logger
	assistant string
}

func NewCore(gate ConsentGate, invoker connectors.AgentInvoker, auditor audit.Auditor, presence PresenceReader, metrics *Metrics, logger *zap.Logger) *Core {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Core{
		gate:      gate,
		invoker:   invoker,
		auditor:   auditor,
		presence:  presence,
		metrics:   metrics,
		logger:    logger.With(zap.String("mod", "gateway")),
		assistant: DefaultAssistantAgent,
	}
}

func (c *Core) HandleTurn(ctx context.Context, req domain.TurnRequest) (domain.TurnResult, error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		c.metrics.TurnsTotal.WithLabelValues(outcome).Inc()
		c.metrics.TurnDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	req.UserInput = strings.TrimSpace(req.UserInput)
	if req.UserInput == "" {
		outcome = "invalid"
		return domain.TurnResult{}, domain.NewValidationError("user_input", "must not be empty")
	}

	// Статус присутствия ассистента — справочная информация для аудита,
	// ход не блокируется даже при offline
	if req.AgentStatus == "" && c.presence != nil {
		if rec, err := c.presence.Get(ctx, c.assistant); err == nil {
			req.AgentStatus = string(rec.Status)
		}
	}

	snapshot := req.Context.Snapshot()

	c.auditor.Log(audit.Entry{
		Actor:      "orchestrator",
		UserID:     req.UserID,
		ActionType: audit.ActionRequestReceived,
		Payload: map[string]any{
			"input":        req.UserInput,
			"context":      snapshot,
			"agent_status": req.AgentStatus,
		},
		Status: "success",
	})

	// Чувствительное действие упирается в согласие ДО диспатча
	if action := req.Context.CandidateAction(); action.IsSensitive() {
		verdict := c.gate.Evaluate(action, req.UserID, snapshot)
		if verdict.Required {
			outcome = "consent_prompt"
			c.metrics.ConsentPrompts.WithLabelValues(string(action)).Inc()

			c.auditor.Log(audit.Entry{
				Actor:      "orchestrator",
				UserID:     req.UserID,
				ActionType: audit.ActionPrivacyPrompt,
				Payload: map[string]any{
					"action":     string(action),
					"request_id": verdict.Prompt.RequestID,
					"reason":     verdict.Prompt.Reason,
				},
				Status: "prompted",
			})

			c.logger.Info("turn short-circuited by consent gate",
				zap.String("action", string(action)),
				zap.String("request_id", verdict.Prompt.RequestID))

			return domain.TurnResult{Prompt: verdict.Prompt}, nil
		}
	}

	res, err := c.safeInvoke(ctx, req)

	var response any
	if err != nil {
		outcome = "dispatch_error"
		c.metrics.DispatchErrors.Inc()
		c.logger.Warn("agent dispatch failed", zap.Error(err))
		// Отказ исполнителя — это содержимое ответа, а не отказ хода
		msg := err.Error()
		var dErr *domain.DispatchError
		if errors.As(err, &dErr) {
			msg = dErr.Err.Error()
		}
		response = "Error: " + msg
	} else {
		response = Normalize(ctx, res)
	}

	status := "success"
	if err != nil {
		status = "failed"
	}
	c.auditor.Log(audit.Entry{
		Actor:      "orchestrator",
		UserID:     req.UserID,
		ActionType: audit.ActionResponseProduced,
		Payload:    map[string]any{"response": response},
		Status:     status,
	})

	return domain.TurnResult{Response: response}, nil
}

// safeInvoke изолирует панику исполнителя: шлюз обязан пережить любой хендлер.
func (c *Core) safeInvoke(ctx context.Context, req domain.TurnRequest) (res domain.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.DispatchError{Agent: c.assistant, Err: fmt.Errorf("handler panic: %v", r)}
		}
	}()

	res, err = c.invoker.Invoke(ctx, req)
	if err != nil {
		err = &domain.DispatchError{Agent: c.assistant, Err: err}
	}
	return res, err
}
