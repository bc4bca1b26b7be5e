package trace

import "time"

// Kind is the type of a trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Scope is the granularity of an event. Lower values are coarser.
type Scope uint8

const (
	// ScopeSession covers project open/close and CLI commands.
	ScopeSession Scope = iota + 1
	// ScopeComponent covers one pipeline phase of a component.
	ScopeComponent
	// ScopeFile covers per-file work inside a phase.
	ScopeFile
)

func (s Scope) String() string {
	switch s {
	case ScopeSession:
		return "session"
	case ScopeComponent:
		return "component"
	case ScopeFile:
		return "file"
	default:
		return "unknown"
	}
}

// Event is a single trace record.
type Event struct {
	Time     time.Time
	Seq      uint64 // assigned by the tracer, monotonic
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64 // 0 for root spans
	Name     string // "parse.run", "archive.flush", ...
	Detail   string
	Elapsed  time.Duration // set on span end
	Extra    map[string]string
}
