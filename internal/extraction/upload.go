package extraction

import (
	"time"

	"github.com/zombor/cupom-extractor/internal/scanning"
)

// Upload is one request's raw payload. It lives only for the request.
type Upload struct {
	Filename string
	Data     []byte
	Source   scanning.Source
}

// OutcomeReport is the journal outcome of a request that produced a report
const OutcomeReport = "report"

// JournalEntry is one journaled extraction. It records how a request went, never
// what the receipt said.
type JournalEntry struct {
	ID       string        `json:"id"`
	Time     time.Time     `json:"time"`
	Source   string        `json:"source"`
	Bytes    int           `json:"bytes"`
	Frames   int           `json:"frames"`
	Outcome  string        `json:"outcome"`
	Duration time.Duration `json:"duration"`
}

// Stats summarizes the journal
type Stats struct {
	Total     int            `json:"total"`
	ByOutcome map[string]int `json:"by_outcome"`
}
