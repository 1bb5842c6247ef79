package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Writer outputs records for listing and copy results.
//
// Implementations must be safe for concurrent use from multiple
// goroutines. Each Write* method emits one complete record.
type Writer interface {
	// WriteResource emits a listed resource.
	WriteResource(ctx context.Context, res *ResourceRecord) error

	// WriteCopy emits a completed copy.
	WriteCopy(ctx context.Context, cp *CopyRecord) error

	// WriteError emits an error record.
	WriteError(ctx context.Context, err *ErrorRecord) error

	// WriteSummary emits a summary record.
	WriteSummary(ctx context.Context, sum *SummaryRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// Output formats accepted by NewWriter.
const (
	FormatJSONL = "jsonl"
	FormatYAML  = "yaml"
	FormatText  = "text"
)

// Formats lists the supported output formats.
func Formats() []string {
	return []string{FormatJSONL, FormatYAML, FormatText}
}

// NewWriter returns a writer for format.
func NewWriter(format string, w io.Writer, jobID, provider string) (Writer, error) {
	switch strings.ToLower(format) {
	case FormatJSONL, "":
		return NewJSONLWriter(w, jobID, provider), nil
	case FormatYAML:
		return NewYAMLWriter(w, jobID, provider), nil
	case FormatText:
		return NewTextWriter(w), nil
	}
	return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownFormat, format, strings.Join(Formats(), ", "))
}

// recordWriter serializes envelope writes for the structured formats.
type recordWriter struct {
	mu     sync.Mutex
	closed bool
}

func (rw *recordWriter) close() {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.closed = true
}

// emit runs write under the lock after checking context and state.
func (rw *recordWriter) emit(ctx context.Context, write func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return write()
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// JSONLWriter is safe for concurrent use. Writes are serialized using
// a mutex to ensure atomic line writes (no interleaved output).
type JSONLWriter struct {
	recordWriter
	w        io.Writer
	jobID    string
	provider string
}

// NewJSONLWriter creates a new JSONL writer.
//
// Parameters:
//   - w: The underlying writer (stdout, file, etc.)
//   - jobID: Correlation ID for this run
//   - provider: Backend type (e.g., "ftp")
func NewJSONLWriter(w io.Writer, jobID, provider string) *JSONLWriter {
	return &JSONLWriter{
		w:        w,
		jobID:    jobID,
		provider: provider,
	}
}

// WriteResource emits a resource record.
func (jw *JSONLWriter) WriteResource(ctx context.Context, res *ResourceRecord) error {
	return jw.writeRecord(ctx, TypeResource, res)
}

// WriteCopy emits a copy record.
func (jw *JSONLWriter) WriteCopy(ctx context.Context, cp *CopyRecord) error {
	return jw.writeRecord(ctx, TypeCopy, cp)
}

// WriteError emits an error record.
func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, err)
}

// WriteSummary emits a summary record.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

// Close marks the writer as closed.
//
// If the underlying writer implements io.Closer, it is NOT closed.
// The caller is responsible for closing the underlying writer.
func (jw *JSONLWriter) Close() error {
	jw.close()
	return nil
}

// writeRecord marshals data and writes a complete record line.
func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	// Marshal the payload outside the lock.
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	return jw.emit(ctx, func() error {
		record := Record{
			Type:     recordType,
			TS:       time.Now().UTC(),
			JobID:    jw.jobID,
			Provider: jw.provider,
			Data:     dataBytes,
		}
		recordBytes, err := json.Marshal(record)
		if err != nil {
			return &WriteError{Op: "marshal_record", Err: err}
		}

		// io.Writer may return n < len(p) with a nil error; a silently
		// truncated line would corrupt the stream.
		recordBytes = append(recordBytes, '\n')
		if err := writeAll(jw.w, recordBytes); err != nil {
			return &WriteError{Op: "write", Err: err}
		}
		return nil
	})
}

// yamlRecord is the YAML form of Record; the payload stays structured.
type yamlRecord struct {
	Type     string    `yaml:"type"`
	TS       time.Time `yaml:"ts"`
	JobID    string    `yaml:"job_id"`
	Provider string    `yaml:"provider"`
	Data     any       `yaml:"data"`
}

// YAMLWriter writes each record as a separate YAML document.
type YAMLWriter struct {
	recordWriter
	enc      *yaml.Encoder
	jobID    string
	provider string
}

// NewYAMLWriter creates a YAML writer. Close finishes the stream.
func NewYAMLWriter(w io.Writer, jobID, provider string) *YAMLWriter {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &YAMLWriter{enc: enc, jobID: jobID, provider: provider}
}

// WriteResource emits a resource record.
func (yw *YAMLWriter) WriteResource(ctx context.Context, res *ResourceRecord) error {
	return yw.writeRecord(ctx, TypeResource, res)
}

// WriteCopy emits a copy record.
func (yw *YAMLWriter) WriteCopy(ctx context.Context, cp *CopyRecord) error {
	return yw.writeRecord(ctx, TypeCopy, cp)
}

// WriteError emits an error record.
func (yw *YAMLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return yw.writeRecord(ctx, TypeError, err)
}

// WriteSummary emits a summary record.
func (yw *YAMLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return yw.writeRecord(ctx, TypeSummary, sum)
}

// Close flushes the encoder. The underlying writer is not closed.
func (yw *YAMLWriter) Close() error {
	yw.mu.Lock()
	defer yw.mu.Unlock()
	if yw.closed {
		return nil
	}
	yw.closed = true
	if err := yw.enc.Close(); err != nil {
		return &WriteError{Op: "flush", Err: err}
	}
	return nil
}

func (yw *YAMLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	return yw.emit(ctx, func() error {
		err := yw.enc.Encode(yamlRecord{
			Type:     recordType,
			TS:       time.Now().UTC(),
			JobID:    yw.jobID,
			Provider: yw.provider,
			Data:     data,
		})
		if err != nil {
			return &WriteError{Op: "encode", Err: err}
		}
		return nil
	})
}

// TextWriter prints one line per record for terminals.
type TextWriter struct {
	recordWriter
	w io.Writer
}

// NewTextWriter creates a text writer.
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: w}
}

// WriteResource prints the URL, with a trailing marker for directories.
func (tw *TextWriter) WriteResource(ctx context.Context, res *ResourceRecord) error {
	line := res.URL
	if res.IsDirectory && !strings.HasSuffix(line, "/") {
		line += "/"
	}
	return tw.line(ctx, line)
}

// WriteCopy prints "source -> destination".
func (tw *TextWriter) WriteCopy(ctx context.Context, cp *CopyRecord) error {
	return tw.line(ctx, cp.Source+" -> "+cp.Destination)
}

// WriteError prints the error code and message.
func (tw *TextWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return tw.line(ctx, "error "+err.Code+": "+err.Message)
}

// WriteSummary prints the totals.
func (tw *TextWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return tw.line(ctx, fmt.Sprintf("%s: %d files, %d directories, %d bytes, %d errors in %s",
		sum.Command, sum.Files, sum.Directories, sum.BytesTotal, sum.Errors, sum.DurationHuman))
}

// Close marks the writer as closed.
func (tw *TextWriter) Close() error {
	tw.close()
	return nil
}

func (tw *TextWriter) line(ctx context.Context, s string) error {
	return tw.emit(ctx, func() error {
		if err := writeAll(tw.w, []byte(s+"\n")); err != nil {
			return &WriteError{Op: "write", Err: err}
		}
		return nil
	})
}

// writeAll writes all bytes to w, handling short writes.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			// No progress made - avoid infinite loop
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Compile-time checks.
var (
	_ Writer = (*JSONLWriter)(nil)
	_ Writer = (*YAMLWriter)(nil)
	_ Writer = (*TextWriter)(nil)
)
