package recovery

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/RealSaake/SkillBridge-sub000/internal/fault"
)

// EventName identifies a recovery event.
type EventName string

const (
	EventFailureClassified EventName = "failure_classified"
	EventRetryScheduled    EventName = "retry_scheduled"
	EventRetryManual       EventName = "retry_manual"
	EventRetryAutomatic    EventName = "retry_automatic"
	EventRetryRejected     EventName = "retry_rejected"
	EventReportIgnored     EventName = "report_ignored"
	EventReset             EventName = "reset"
	EventExhausted         EventName = "exhausted"
	EventDisposed          EventName = "disposed"
	EventMisuse            EventName = "misuse"
)

// Event is a structured observation emitted by a Controller.
type Event struct {
	Name         EventName
	Operation    string
	ControllerID string
	Kind         fault.Kind
	Attempt      int
	DelayMs      int64
	Timestamp    time.Time
	Err          error
}

// Sink receives controller events. Record is called with the controller's
// lock held, so implementations must not call back into the controller.
type Sink interface {
	Record(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

// Record calls f(e).
func (f SinkFunc) Record(e Event) { f(e) }

// MultiSink fans events out to several sinks.
type MultiSink []Sink

// Record forwards e to every non-nil sink.
func (m MultiSink) Record(e Event) {
	for _, s := range m {
		if s != nil {
			s.Record(e)
		}
	}
}

// ZapSink logs events through a zap logger. A nil logger uses zap.L() at
// record time, so it follows config.InitLogger.
type ZapSink struct {
	Logger *zap.Logger
}

// NewZapSink returns a sink writing to logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{Logger: logger}
}

// Record logs e at the level matching its severity.
func (z *ZapSink) Record(e Event) {
	logger := z.Logger
	if logger == nil {
		logger = zap.L()
	}

	fields := []zap.Field{
		zap.String("operation", e.Operation),
		zap.String("controller_id", e.ControllerID),
		zap.String("event", string(e.Name)),
		zap.Int("attempt", e.Attempt),
		zap.Int64("delay_ms", e.DelayMs),
		zap.Time("timestamp", e.Timestamp),
	}
	if e.Kind != "" {
		fields = append(fields, zap.String("kind", string(e.Kind)))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}

	if ce := logger.Check(eventLevel(e.Name), eventMessage(e.Name)); ce != nil {
		ce.Write(fields...)
	}
}

func eventLevel(name EventName) zapcore.Level {
	switch name {
	case EventExhausted:
		return zapcore.ErrorLevel
	case EventFailureClassified, EventRetryRejected:
		return zapcore.WarnLevel
	case EventMisuse:
		return zapcore.DPanicLevel
	case EventReportIgnored, EventDisposed:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

func eventMessage(name EventName) string {
	switch name {
	case EventFailureClassified:
		return "operation failed"
	case EventRetryScheduled:
		return "automatic retry scheduled"
	case EventRetryManual:
		return "manual retry invoked"
	case EventRetryAutomatic:
		return "automatic retry fired"
	case EventRetryRejected:
		return "retry rejected: budget exhausted"
	case EventReportIgnored:
		return "failure ignored while retry pending"
	case EventReset:
		return "recovery reset"
	case EventExhausted:
		return "retries exhausted"
	case EventDisposed:
		return "recovery controller disposed"
	case EventMisuse:
		return "command on disposed recovery controller"
	default:
		return string(name)
	}
}
