package telemetry

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mfkiwl/SRAM-Acquisition/logger"
)

// LogSink writes events to a logger at info level.
type LogSink struct {
	logger logger.Logger
}

// NewLogSink creates a sink logging to l.
func NewLogSink(l logger.Logger) *LogSink {
	if l == nil {
		l = logger.GetLogger()
	}

	return &LogSink{logger: l}
}

func (s *LogSink) Emit(e Event) error {
	kv := make([]any, 0, 2*(len(e.Tags)+len(e.Fields))+2)
	kv = append(kv, "measurement", e.Measurement)

	for _, k := range sortedKeys(e.Tags) {
		kv = append(kv, k, e.Tags[k])
	}
	for _, k := range sortedKeys(e.Fields) {
		kv = append(kv, k, e.Fields[k])
	}

	s.logger.Info("telemetry", kv...)

	return nil
}

// LineWriter writes events to w in InfluxDB line protocol, one line each.
type LineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLineWriter creates a line protocol sink on w.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w}
}

func (s *LineWriter) Emit(e Event) error {
	line, err := FormatLine(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = io.WriteString(s.w, line+"\n")

	return err
}

// HTTPWriter posts events in line protocol to an InfluxDB 1.x /write
// endpoint.
type HTTPWriter struct {
	client   *http.Client
	endpoint string
}

// NewHTTPWriter creates a sink posting to baseURL (e.g.
// "http://127.0.0.1:8086") into database db.
func NewHTTPWriter(baseURL, db string, timeout time.Duration) (*HTTPWriter, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/write")
	if err != nil {
		return nil, fmt.Errorf("telemetry: invalid url %q: %w", baseURL, err)
	}

	q := u.Query()
	q.Set("db", db)
	q.Set("precision", "ns")
	u.RawQuery = q.Encode()

	return &HTTPWriter{client: &http.Client{Timeout: timeout}, endpoint: u.String()}, nil
}

func (s *HTTPWriter) Emit(e Event) error {
	line, err := FormatLine(e)
	if err != nil {
		return err
	}

	resp, err := s.client.Post(s.endpoint, "text/plain; charset=utf-8", bytes.NewBufferString(line+"\n"))
	if err != nil {
		return fmt.Errorf("telemetry: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("telemetry: post: status %s", resp.Status)
	}

	return nil
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()

	return nil
}

// Events returns the recorded events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Event(nil), r.events...)
}

// FormatLine renders e in InfluxDB line protocol. An event needs a
// measurement and at least one field.
func FormatLine(e Event) (string, error) {
	if e.Measurement == "" {
		return "", fmt.Errorf("telemetry: event without measurement")
	}
	if len(e.Fields) == 0 {
		return "", fmt.Errorf("telemetry: event %s without fields", e.Measurement)
	}

	var b strings.Builder
	b.WriteString(measurementEscaper.Replace(e.Measurement))

	for _, k := range sortedKeys(e.Tags) {
		b.WriteByte(',')
		b.WriteString(keyEscaper.Replace(k))
		b.WriteByte('=')
		b.WriteString(keyEscaper.Replace(e.Tags[k]))
	}

	b.WriteByte(' ')
	for i, k := range sortedKeys(e.Fields) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(keyEscaper.Replace(k))
		b.WriteByte('=')

		v, err := formatField(e.Fields[k])
		if err != nil {
			return "", fmt.Errorf("telemetry: field %s: %w", k, err)
		}
		b.WriteString(v)
	}

	if !e.Time.IsZero() {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(e.Time.UnixNano(), 10))
	}

	return b.String(), nil
}

var (
	measurementEscaper = strings.NewReplacer(",", `\,`, " ", `\ `)
	keyEscaper         = strings.NewReplacer(",", `\,`, "=", `\=`, " ", `\ `)
	stringEscaper      = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
)

func formatField(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return `"` + stringEscaper.Replace(x) + `"`, nil
	case bool:
		return strconv.FormatBool(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case int:
		return strconv.FormatInt(int64(x), 10) + "i", nil
	case int64:
		return strconv.FormatInt(x, 10) + "i", nil
	case uint64:
		return strconv.FormatUint(x, 10) + "i", nil
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
