package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/cupom-extractor/internal/report"
	"github.com/zombor/cupom-extractor/internal/scanning"
)

// IDGenerator generates unique IDs for requests
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Info describes the configured backend for the status page
type Info struct {
	Scanner          string
	Model            string
	APIKeyConfigured bool
}

// Service runs one upload through decode, preprocess, recognition and
// formatting. It keeps no per-request state, so concurrent calls are safe.
type Service struct {
	scanner     scanning.Scanner
	journal     Journal
	captures    Storage
	info        Info
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source.
// journal and captures may be nil.
func NewService(scanner scanning.Scanner, journal Journal, captures Storage, info Info) *Service {
	return NewServiceWithDeps(scanner, journal, captures, info, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(scanner scanning.Scanner, journal Journal, captures Storage, info Info, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		scanner:     scanner,
		journal:     journal,
		captures:    captures,
		info:        info,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Extract turns an upload into a report. Every failure is returned as a
// *PipelineError whose Message can be shown to the user.
func (s *Service) Extract(ctx context.Context, upload Upload) (text string, err error) {
	id := s.idGenerator.Generate()
	start := s.timeSource.Now()
	frames := 0

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic during extraction", "id", id, "panic", r, "stack", string(debug.Stack()))
			text, err = "", internalError(fmt.Errorf("%v", r))
		}
		s.record(id, start, upload, frames, err)
	}()

	if len(upload.Data) == 0 {
		return "", noInput()
	}

	decoded, err := scanning.DecodeUpload(upload.Data, upload.Source)
	if err != nil {
		if errors.Is(err, scanning.ErrEmptyPayload) {
			return "", noInput()
		}
		if errors.Is(err, scanning.ErrUnsupportedInput) {
			return "", unsupportedInput(err)
		}
		return "", internalError(err)
	}
	frames = len(decoded)
	if frames == 0 {
		return "", noFramesProduced()
	}

	// Only the first frame is analyzed; later PDF pages are ignored
	frame := scanning.Preprocess(decoded[0])
	pngData, err := scanning.EncodeFrame(frame)
	if err != nil {
		return "", internalError(err)
	}

	record, err := s.scanner.ScanReceipt(ctx, pngData)
	if err != nil {
		s.capture(id, pngData)
		return "", recognitionError(scanning.AsFailure(err))
	}
	if record == nil {
		return "", internalError(errors.New("scanner returned no record"))
	}

	return report.Format(record), nil
}

// record logs and journals a finished request. Journal failures never
// change the response.
func (s *Service) record(id string, start time.Time, upload Upload, frames int, err error) {
	elapsed := s.timeSource.Now().Sub(start)
	outcome := OutcomeReport
	if err != nil {
		outcome = string(AsPipelineError(err).Kind)
	}

	attrs := []any{
		"id", id,
		"source", upload.Source,
		"filename", upload.Filename,
		"bytes", len(upload.Data),
		"frames", frames,
		"outcome", outcome,
		"duration", elapsed,
	}
	switch {
	case err == nil:
		slog.Info("Extraction finished", attrs...)
	case AsPipelineError(err).StatusCode() >= 500:
		slog.Error("Extraction failed", append(attrs, "error", err)...)
	default:
		slog.Warn("Extraction failed", append(attrs, "error", err)...)
	}

	if s.journal == nil {
		return
	}
	entry := &JournalEntry{
		ID:       id,
		Time:     start,
		Source:   string(upload.Source),
		Bytes:    len(upload.Data),
		Frames:   frames,
		Outcome:  outcome,
		Duration: elapsed,
	}
	if err := s.journal.Append(entry); err != nil {
		slog.Warn("Failed to journal extraction", "id", id, "error", err)
	}
}

// capture keeps the frame that was sent to the backend so a failed
// recognition can be inspected later
func (s *Service) capture(id string, pngData []byte) {
	if s.captures == nil {
		return
	}
	if _, err := s.captures.Save(id+".png", pngData); err != nil {
		slog.Warn("Failed to save capture", "id", id, "error", err)
	}
}

// Capture returns a saved frame by name
func (s *Service) Capture(name string) ([]byte, error) {
	if s.captures == nil {
		return nil, errors.New("captures are disabled")
	}
	data, err := s.captures.Get(name)
	if err != nil {
		return nil, fmt.Errorf("getting capture: %w", err)
	}
	return data, nil
}

// Status is the JSON body of the health endpoint
type Status struct {
	Timestamp         string `json:"timestamp"`
	BackendConnection string `json:"backend_connection"`
	APIKeyConfigured  bool   `json:"api_key_configured"`
	ServerStatus      string `json:"server_status"`
	Scanner           string `json:"scanner"`
	Model             string `json:"model"`
	Extractions       *Stats `json:"extractions,omitempty"`
}

const statusTimeLayout = "2006-01-02 15:04:05"

// Status pings the backend and summarizes the journal
func (s *Service) Status(ctx context.Context) *Status {
	status := &Status{
		Timestamp:         s.timeSource.Now().Format(statusTimeLayout),
		BackendConnection: "OK",
		APIKeyConfigured:  s.info.APIKeyConfigured,
		ServerStatus:      "RUNNING",
		Scanner:           s.info.Scanner,
		Model:             s.info.Model,
	}

	if err := s.scanner.Ping(ctx); err != nil {
		slog.Warn("Backend ping failed", "scanner", s.info.Scanner, "error", err)
		status.BackendConnection = "ERROR"
	}

	if s.journal != nil {
		stats, err := s.journal.Stats()
		if err != nil {
			slog.Warn("Failed to read journal stats", "error", err)
		} else {
			status.Extractions = stats
		}
	}
	return status
}

// RecentExtractions returns up to n journaled extractions, newest first
func (s *Service) RecentExtractions(n int) ([]*JournalEntry, error) {
	if s.journal == nil {
		return []*JournalEntry{}, nil
	}
	entries, err := s.journal.Recent(n)
	if err != nil {
		return nil, fmt.Errorf("listing extractions: %w", err)
	}
	return entries, nil
}
