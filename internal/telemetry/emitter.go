package telemetry

import (
	"bufio"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// Emitter writes run records as JSONL, one record per line.
type Emitter struct {
	config *EmitterConfig
	writer *bufio.Writer
	file   *os.File
	mu     sync.Mutex

	totalWritten atomic.Int64
	totalBytes   atomic.Int64
	writeErrors  atomic.Int64
}

// NewEmitter opens the configured output path for appending. A nil
// config or empty path yields an emitter that discards records.
func NewEmitter(config *EmitterConfig) (*Emitter, error) {
	if config == nil {
		config = DefaultEmitterConfig()
	}

	e := &Emitter{config: config}

	if config.OutputPath != "" {
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		e.file = f
		e.writer = bufio.NewWriterSize(f, config.BufferSize)
	}

	return e, nil
}

// NewEmitterWithWriter wraps an arbitrary writer, mainly for tests.
func NewEmitterWithWriter(w io.Writer, config *EmitterConfig) *Emitter {
	if config == nil {
		config = DefaultEmitterConfig()
	}

	return &Emitter{
		config: config,
		writer: bufio.NewWriterSize(w, config.BufferSize),
	}
}

// EmitRecord writes one record as a JSONL line.
func (e *Emitter) EmitRecord(record *RunRecord) error {
	data, err := record.MarshalJSONL()
	if err != nil {
		e.writeErrors.Add(1)
		return err
	}
	return e.writeLine(data)
}

func (e *Emitter) writeLine(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.writer == nil {
		return nil
	}

	if _, err := e.writer.Write(data); err != nil {
		e.writeErrors.Add(1)
		return err
	}
	if err := e.writer.WriteByte('\n'); err != nil {
		e.writeErrors.Add(1)
		return err
	}

	e.totalWritten.Add(1)
	e.totalBytes.Add(int64(len(data) + 1))

	if e.config.SyncOnWrite {
		return e.flushLocked()
	}
	return nil
}

func (e *Emitter) flushLocked() error {
	if e.writer == nil {
		return nil
	}

	if err := e.writer.Flush(); err != nil {
		return err
	}

	if e.file != nil {
		return e.file.Sync()
	}
	return nil
}

// Flush forces buffered output to the underlying writer.
func (e *Emitter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked()
}

// Close flushes and closes the output file if one is open.
func (e *Emitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.writer != nil {
		if err := e.writer.Flush(); err != nil {
			return err
		}
	}

	if e.file != nil {
		return e.file.Close()
	}
	return nil
}

// EmitterStats reports emitter throughput counters.
type EmitterStats struct {
	TotalWritten int64
	TotalBytes   int64
	WriteErrors  int64
}

// Stats returns current emitter statistics.
func (e *Emitter) Stats() EmitterStats {
	return EmitterStats{
		TotalWritten: e.totalWritten.Load(),
		TotalBytes:   e.totalBytes.Load(),
		WriteErrors:  e.writeErrors.Load(),
	}
}
