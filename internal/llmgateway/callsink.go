package llmgateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/domain"
)

// HistoryWriter is the narrow slice of repository.LLMCallHistoryRepository
// the call sink needs, kept as an interface so tests can stub it.
type HistoryWriter interface {
	Create(ctx context.Context, c domain.LLMCallHistory) error
}

// callRecord is one unit of work handed to the sink's workers.
type callRecord struct {
	model      string
	messages   []Message
	response   string
	usage      Usage
	latencyMs  int64
	taskType   string
	runID      string
	stopReason string
}

// CallSink logs every LLM call in the background through a small
// bounded worker pool, dropping records on overflow rather than
// blocking the caller's critical path.
type CallSink struct {
	writer HistoryWriter
	log    zerolog.Logger
	queue  chan callRecord
	stop   chan struct{}
	done   chan struct{}
}

// NewCallSink starts workerCount background goroutines draining a
// queue of depth queueDepth.
func NewCallSink(writer HistoryWriter, log zerolog.Logger, workerCount, queueDepth int) *CallSink {
	s := &CallSink{
		writer: writer,
		log:    log.With().Str("component", "llm_call_sink").Logger(),
		queue:  make(chan callRecord, queueDepth),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run(workerCount)
	return s
}

// Log enqueues a call record for async persistence. It never blocks:
// if the queue is full the record is dropped and counted in a warning
// log, matching the "logging failures must not fail the call" contract.
func (s *CallSink) Log(model string, messages []Message, response string, usage Usage, latencyMs int64, cc CallContext, stopReason string) {
	rec := callRecord{
		model:      model,
		messages:   messages,
		response:   response,
		usage:      usage,
		latencyMs:  latencyMs,
		taskType:   cc.TaskType,
		runID:      cc.RunID,
		stopReason: stopReason,
	}
	select {
	case s.queue <- rec:
	default:
		s.log.Warn().Str("task_type", cc.TaskType).Msg("llm call history queue full, dropping record")
	}
}

// Close signals the workers to stop and blocks until they have
// drained the queued records and exited; it has no timeout.
func (s *CallSink) Close() {
	close(s.stop)
	<-s.done
}

func (s *CallSink) run(workerCount int) {
	var active int
	workerDone := make(chan struct{})
	for i := 0; i < workerCount; i++ {
		active++
		go s.worker(workerDone)
	}
	for active > 0 {
		<-workerDone
		active--
	}
	close(s.done)
}

func (s *CallSink) worker(done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		select {
		case rec := <-s.queue:
			s.persist(rec)
		case <-s.stop:
			// Drain whatever remains without blocking indefinitely.
			for {
				select {
				case rec := <-s.queue:
					s.persist(rec)
				default:
					return
				}
			}
		}
	}
}

func (s *CallSink) persist(rec callRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	record := domain.LLMCallHistory{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		Model:        rec.model,
		Response:     rec.response,
		InputTokens:  rec.usage.InputTokens,
		OutputTokens: rec.usage.OutputTokens,
		TotalTokens:  rec.usage.TotalTokens,
		LatencyMs:    rec.latencyMs,
		TaskType:     rec.taskType,
		RunID:        rec.runID,
		IsValidJSON:  isValidJSON(rec.response),
		StopReason:   rec.stopReason,
	}
	for _, m := range rec.messages {
		record.Messages = append(record.Messages, domain.Message{Role: m.Role, Content: m.Content})
	}

	if err := s.writer.Create(ctx, record); err != nil {
		s.log.Error().Err(err).Str("task_type", rec.taskType).Msg("failed to persist llm call history")
	}
}

func isValidJSON(s string) bool {
	if s == "" {
		return false
	}
	var v any
	return json.Unmarshal([]byte(s), &v) == nil
}
