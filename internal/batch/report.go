package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Result is one prompt's outcome.
type Result struct {
	Prompt   string        `json:"prompt"`
	Reply    string        `json:"reply,omitempty"`
	Status   string        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Intents  []string      `json:"intents,omitempty"`
}

// Report aggregates a whole batch run.
type Report struct {
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Results   []Result      `json:"results"`
}

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteCSV renders one row per result with a header.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"prompt", "status", "reply", "error", "duration_seconds", "intents"}); err != nil {
		return err
	}
	for _, res := range r.Results {
		row := []string{
			res.Prompt,
			res.Status,
			res.Reply,
			res.Error,
			strconv.FormatFloat(res.Duration.Seconds(), 'f', 3, 64),
			strings.Join(res.Intents, ";"),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// Write renders the report in the named format: "json" or "csv".
func (r *Report) Write(w io.Writer, format string) error {
	switch format {
	case "", "json":
		return r.WriteJSON(w)
	case "csv":
		return r.WriteCSV(w)
	default:
		return fmt.Errorf("unknown report format: %s", format)
	}
}
