// Package logstore is a thin facade over the timestore engine for storing
// and retrieving log messages. Every message is written several times over,
// denormalized across {exact source, source context, global} x {level,
// any-level} so that the common browse and search cases are single key
// lookups: write more, read fast.
package logstore

import (
	"context"
	"strings"
	"time"

	"go.skia.org/infra/go/skerr"
	"go.skia.org/timestore/go/timestore"
)

// Level is the severity of a log message.
type Level string

const (
	Info  Level = "info"
	Warn  Level = "warn"
	Error Level = "error"
	Debug Level = "debug"
)

const (
	// globalContext is the hidden source id under which every message is
	// stored once more for global browsing.
	globalContext = "__clg_glb__"

	// anyLevel is the hidden data name under which a message is stored
	// regardless of its level.
	anyLevel = "__clg_any__"
)

// internalDataName hides the level-specific data names from sources that
// store other data under the same ids.
var internalDataName = map[Level]string{
	Info:  "__clg_info__",
	Warn:  "__clg_warn__",
	Error: "__clg_error__",
	Debug: "__clg_debug__",
}

// Message is one stored log record.
type Message struct {
	SourceContext string
	LogSource     string
	Timestamp     time.Time
	Level         Level
	Text          string
}

// Config tunes the retention and fan-out of a Logger. The zero value
// selects the defaults.
type Config struct {
	// Retention per context tier. Defaults: 90, 30 and 7 days.
	TTLExact         time.Duration
	TTLSourceContext time.Duration
	TTLGlobal        time.Duration

	// Levels worth duplicating into the wider tiers. Defaults to
	// warn+error for both; info and debug rarely matter beyond their
	// exact source.
	LevelsForSourceContext []Level
	LevelsForGlobal        []Level
}

// Logger stores log messages through a timestore.Store.
//
// It is usually a good idea to point the underlying store at a keyspace (or
// table) dedicated to logging so the retention TTLs can differ from the
// telemetry data.
type Logger struct {
	store            *timestore.Store
	ttlExact         time.Duration
	ttlSourceContext time.Duration
	ttlGlobal        time.Duration
	levelsForSource  map[Level]bool
	levelsForGlobal  map[Level]bool
}

// New returns a Logger on top of the given store. A nil config selects all
// defaults.
func New(store *timestore.Store, cfg *Config) *Logger {
	if cfg == nil {
		cfg = &Config{}
	}
	ret := &Logger{
		store:            store,
		ttlExact:         cfg.TTLExact,
		ttlSourceContext: cfg.TTLSourceContext,
		ttlGlobal:        cfg.TTLGlobal,
		levelsForSource:  levelSet(cfg.LevelsForSourceContext, Warn, Error),
		levelsForGlobal:  levelSet(cfg.LevelsForGlobal, Warn, Error),
	}
	if ret.ttlExact <= 0 {
		ret.ttlExact = 90 * 24 * time.Hour
	}
	if ret.ttlSourceContext <= 0 {
		ret.ttlSourceContext = 30 * 24 * time.Hour
	}
	if ret.ttlGlobal <= 0 {
		ret.ttlGlobal = 7 * 24 * time.Hour
	}
	return ret
}

func levelSet(levels []Level, defaults ...Level) map[Level]bool {
	if len(levels) == 0 {
		levels = defaults
	}
	ret := make(map[Level]bool, len(levels))
	for _, l := range levels {
		ret[l] = true
	}
	return ret
}

// encodeMessage renders the stored payload. The message is the final
// segment so it may itself contain pipes.
func encodeMessage(sourceContext, logSource string, level Level, text string) string {
	return strings.Join([]string{sourceContext, logSource, string(level), text}, "|")
}

// decodeMessage reverses encodeMessage.
func decodeMessage(payload string, ts time.Time) (*Message, error) {
	parts := strings.SplitN(payload, "|", 4)
	if len(parts) != 4 {
		return nil, skerr.Fmt("malformed log payload %q", payload)
	}
	return &Message{
		SourceContext: parts[0],
		LogSource:     parts[1],
		Timestamp:     ts,
		Level:         Level(parts[2]),
		Text:          parts[3],
	}, nil
}

// sourceID couples a source context and a log source into one timestore
// source id.
func sourceID(sourceContext, logSource string) string {
	return sourceContext + "." + logSource
}

// Log stores one message, fanned out across the context tiers its level
// qualifies for. The source context is a higher grouping level (project,
// namespace, company); callers that don't need it can share a constant.
func (l *Logger) Log(ctx context.Context, sourceContext, logSource string, ts time.Time, level Level, text string) error {
	dataName, ok := internalDataName[level]
	if !ok {
		return skerr.Fmt("unsupported log level %q", level)
	}

	// The payload repeats context, source and level so that the rows of
	// the wider tiers remain self-describing.
	payload := []byte(encodeMessage(sourceContext, logSource, level, text))
	dp := func(source, name string) *timestore.DataPoint {
		return &timestore.DataPoint{
			SourceID:  source,
			Name:      name,
			Timestamp: ts,
			Value:     payload,
			IndexText: text,
		}
	}

	var exact, source, global []*timestore.DataPoint
	exact = append(exact, dp(sourceID(sourceContext, logSource), dataName), dp(sourceID(sourceContext, logSource), anyLevel))
	if l.levelsForSource[level] {
		source = append(source, dp(sourceContext, dataName), dp(sourceContext, anyLevel))
	}
	if l.levelsForGlobal[level] {
		global = append(global, dp(globalContext, dataName), dp(globalContext, anyLevel))
	}

	// One batched write when every tier shares a TTL, else one per tier.
	if l.ttlExact == l.ttlSourceContext && l.ttlExact == l.ttlGlobal {
		all := append(append(exact, source...), global...)
		return l.store.BatchInsertIndexableBlobs(ctx, all, l.ttlExact)
	}
	if err := l.store.BatchInsertIndexableBlobs(ctx, exact, l.ttlExact); err != nil {
		return err
	}
	if err := l.store.BatchInsertIndexableBlobs(ctx, source, l.ttlSourceContext); err != nil {
		return err
	}
	return l.store.BatchInsertIndexableBlobs(ctx, global, l.ttlGlobal)
}

// Infof-style helpers for the four levels.

func (l *Logger) Info(ctx context.Context, sourceContext, logSource string, ts time.Time, text string) error {
	return l.Log(ctx, sourceContext, logSource, ts, Info, text)
}

func (l *Logger) Warn(ctx context.Context, sourceContext, logSource string, ts time.Time, text string) error {
	return l.Log(ctx, sourceContext, logSource, ts, Warn, text)
}

func (l *Logger) Error(ctx context.Context, sourceContext, logSource string, ts time.Time, text string) error {
	return l.Log(ctx, sourceContext, logSource, ts, Error, text)
}

func (l *Logger) Debug(ctx context.Context, sourceContext, logSource string, ts time.Time, text string) error {
	return l.Log(ctx, sourceContext, logSource, ts, Debug, text)
}

// Query selects log messages. LogSource requires SourceContext; at least
// one of FreeText, From and To must be set. An empty Level matches any.
type Query struct {
	FreeText      string
	SourceContext string
	LogSource     string
	Level         Level
	From          time.Time
	To            time.Time
}

func (q *Query) validate() error {
	if q.LogSource != "" && q.SourceContext == "" {
		return skerr.Fmt("a log source requires a source context")
	}
	if q.FreeText == "" && q.From.IsZero() && q.To.IsZero() {
		return skerr.Fmt("neither free text nor a time span was supplied")
	}
	if q.Level != "" {
		if _, ok := internalDataName[q.Level]; !ok {
			return skerr.Fmt("unsupported log level %q", q.Level)
		}
	}
	return nil
}

// dataName returns the internal data name the query reads.
func (q *Query) dataName() string {
	if q.Level == "" {
		return anyLevel
	}
	return internalDataName[q.Level]
}

// sourceID returns the timestore source id the query reads.
func (q *Query) sourceID() string {
	switch {
	case q.SourceContext != "" && q.LogSource != "":
		return sourceID(q.SourceContext, q.LogSource)
	case q.SourceContext != "":
		return q.SourceContext
	default:
		return globalContext
	}
}

// FreeTextSearch returns the messages matching the query's free text,
// ascending in time.
func (l *Logger) FreeTextSearch(ctx context.Context, q *Query) ([]*Message, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	tuples, err := l.store.GetBlobsByFreeText(ctx, q.sourceID(), q.dataName(), q.FreeText, q.From, q.To)
	if err != nil {
		return nil, err
	}
	return decodeTuples(tuples)
}

// LoadByDateRange returns the messages of the query's scope inside its time
// span, ascending in time. The query's FreeText is ignored.
func (l *Logger) LoadByDateRange(ctx context.Context, q *Query) ([]*Message, error) {
	stripped := *q
	stripped.FreeText = ""
	if err := stripped.validate(); err != nil {
		return nil, err
	}
	tuples, err := l.store.GetRange(ctx, stripped.sourceID(), stripped.dataName(), stripped.From, stripped.To, 0)
	if err != nil {
		return nil, err
	}
	return decodeTuples(tuples)
}

func decodeTuples(tuples []timestore.TimedValue) ([]*Message, error) {
	ret := make([]*Message, 0, len(tuples))
	for _, tv := range tuples {
		msg, err := decodeMessage(string(tv.Value), tv.Timestamp)
		if err != nil {
			return nil, err
		}
		ret = append(ret, msg)
	}
	return ret, nil
}
