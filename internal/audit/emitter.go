// Package audit emits tamper-evident records of adjudication runs.
//
// Each execution trace is serialized, canonicalized with JCS (RFC 8785),
// and chained: record N carries sha256(prev_hash || canonical_bytes), so any
// after-the-fact edit, reorder, or deletion breaks verification of every
// subsequent record. Records append to a JSONL file with size-based
// rotation; a rotated segment starts its chain from the last hash of the
// previous one, carried in memory for the emitter's lifetime.
//
// Emission is fire-and-forget by contract: a write failure is logged and
// dropped, never propagated into the adjudication path.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/meridianhealth/adjudicator/internal/types"
)

// genesisHash seeds the chain before any record exists.
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Record is one audit log line: the canonical trace plus chain linkage.
type Record struct {
	Trace      json.RawMessage `json:"trace"`
	Hash       string          `json:"hash"`
	PrevHash   string          `json:"prev_hash"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// ChainEmitter writes hash-chained audit records to a writer.
// Safe for concurrent use; the mutex also serializes the chain state.
type ChainEmitter struct {
	mu   sync.Mutex
	w    io.Writer
	prev string
	log  *zap.Logger
	now  func() time.Time
}

// NewChainEmitter creates an emitter over an arbitrary writer. log may be nil.
func NewChainEmitter(w io.Writer, log *zap.Logger) *ChainEmitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChainEmitter{w: w, prev: genesisHash, log: log, now: time.Now}
}

// NewFileEmitter creates an emitter appending to a size-rotated JSONL file.
func NewFileEmitter(path string, maxSizeMB, maxBackups int, log *zap.Logger) *ChainEmitter {
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	return NewChainEmitter(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}, log)
}

// Record canonicalizes and appends one execution trace. Failures are logged
// and swallowed: the engine does not retry or guarantee delivery.
func (e *ChainEmitter) Record(trace *types.ExecutionTrace) {
	raw, err := json.Marshal(trace)
	if err != nil {
		e.log.Error("audit record marshal failed",
			zap.String("trace_id", string(trace.TraceID)), zap.Error(err))
		return
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		e.log.Error("audit record canonicalization failed",
			zap.String("trace_id", string(trace.TraceID)), zap.Error(err))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	hash := chainHash(e.prev, canonical)
	record := Record{
		Trace:      canonical,
		Hash:       hash,
		PrevHash:   e.prev,
		RecordedAt: e.now().UTC(),
	}

	line, err := json.Marshal(record)
	if err != nil {
		e.log.Error("audit record marshal failed",
			zap.String("trace_id", string(trace.TraceID)), zap.Error(err))
		return
	}
	if _, err := e.w.Write(append(line, '\n')); err != nil {
		e.log.Error("audit record write failed",
			zap.String("trace_id", string(trace.TraceID)), zap.Error(err))
		return
	}
	e.prev = hash
}

// LastHash returns the tip of the chain, for checkpointing across restarts.
func (e *ChainEmitter) LastHash() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prev
}

// Resume seeds the chain from a previously checkpointed hash so a restarted
// emitter extends the existing chain instead of starting a parallel one.
func (e *ChainEmitter) Resume(lastHash string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if lastHash != "" {
		e.prev = lastHash
	}
}

// LastHashInFile scans an existing audit log and returns its tip hash, so a
// restarted emitter can Resume the chain. A missing file yields the genesis
// hash.
func LastHashInFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return genesisHash, nil
		}
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	last := genesisHash
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return "", fmt.Errorf("line %d: malformed record: %w", line, err)
		}
		last = record.Hash
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return last, nil
}

// Verify re-computes the chain over a JSONL stream and returns the number of
// valid records. The first broken link fails with the offending line number.
func Verify(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	prev := genesisHash
	count := 0
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return count, fmt.Errorf("line %d: malformed record: %w", line, err)
		}
		if record.PrevHash != prev {
			return count, fmt.Errorf("line %d: chain break: prev_hash %s, expected %s", line, record.PrevHash, prev)
		}

		canonical, err := jcs.Transform(record.Trace)
		if err != nil {
			return count, fmt.Errorf("line %d: trace not canonicalizable: %w", line, err)
		}
		if got := chainHash(record.PrevHash, canonical); got != record.Hash {
			return count, fmt.Errorf("line %d: hash mismatch: record tampered", line)
		}

		prev = record.Hash
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, err
	}
	return count, nil
}

func chainHash(prev string, canonical []byte) string {
	h := sha256.New()
	h.Write([]byte(prev))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}
