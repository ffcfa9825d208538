package audit

/*
Файл trail.go реализует журнал аудита как write-only коллаборатор
горячего пути: неблокирующий канал, пакетная запись в хранилище по
таймеру или при достижении лимита, и полная вычитка буфера при
остановке (Drain Pattern). Задержки базы не влияют на Response Time
шлюза; при переполнении буфера событие сбрасывается с ошибкой в лог
(Load Shedding), но запрос не блокируется.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Sink определяет, куда физически сохраняются события.
type Sink interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, entries []Entry) error
}

// Auditor — то, что видит шлюз: только добавление событий.
type Auditor interface {
	Log(entry Entry)
}

type Trail struct {
	ch       chan Entry
	sink     Sink
	logger   *zap.Logger
	wg       sync.WaitGroup
	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)

	batchSize     int
	flushInterval time.Duration
	depthHook     func(int) // Необязательный хук для метрики заполненности буфера
}

func NewTrail(sink Sink, bufferSize, batchSize int, flushInterval time.Duration, logger *zap.Logger) *Trail {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &Trail{
		ch:            make(chan Entry, bufferSize),
		sink:          sink,
		logger:        logger.With(zap.String("mod", "audit-trail")),
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// SetDepthHook подключает наблюдателя заполненности буфера (Prometheus gauge).
func (t *Trail) SetDepthHook(hook func(int)) {
	t.depthHook = hook
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop запирает вход в канал и ждет, пока воркер допишет остатки.
func (t *Trail) Stop() {
	atomic.StoreInt32(&t.isClosed, 1)

	// Крошечная пауза, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("audit trail stopped gracefully")
}

func (t *Trail) Log(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("audit event dropped: trail is stopping",
			zap.String("action_type", entry.ActionType))
		return
	}

	select {
	case t.ch <- entry:
		if t.depthHook != nil {
			t.depthHook(len(t.ch))
		}
	default:
		// Буфер переполнен (Backpressure) — не блокируем горячий путь
		t.logger.Error("audit_buffer_overflow",
			zap.String("actor", entry.Actor),
			zap.String("action_type", entry.ActionType),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]Entry, 0, t.batchSize)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст к моменту финального сброса может быть закрыт
			if err := t.sink.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case entry, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): вычитали всё, финальный сброс и выход
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, entry)
			if len(batch) >= t.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
