package evolution

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/sovereign-vm/sovereign/internal/vmerrors"
)

// ndjsonRecord is the on-wire shape of one exported pattern line
// (spec.md §6 "Persisted state").
type ndjsonRecord struct {
	Category       Category `json:"category"`
	Pattern        string   `json:"pattern"`
	Frequency      int      `json:"frequency"`
	SuccessRate    float64  `json:"success_rate"`
	FixTemplates   []string `json:"fix_templates"`
}

// ExportPatterns writes every pattern in store to w as newline-
// delimited JSON, one object per line.
func ExportPatterns(store Store, w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, p := range store.All() {
		rec := ndjsonRecord{
			Category:     p.Category,
			Pattern:      p.Message,
			Frequency:    p.Frequency,
			SuccessRate:  p.FixSuccessRate,
			FixTemplates: p.FixTemplates,
		}
		if err := enc.Encode(rec); err != nil {
			return vmerrors.Wrap(vmerrors.KindInvalidConfiguration, "encoding pattern export", err)
		}
	}
	return nil
}

// ImportPatterns reads newline-delimited JSON from r and merges it
// additively into store, keyed by (category, pattern text).
func ImportPatterns(store Store, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var incoming []Pattern
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec ndjsonRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return vmerrors.Wrap(vmerrors.KindInvalidConfiguration, "decoding pattern import", err)
		}
		incoming = append(incoming, Pattern{
			Category:       rec.Category,
			Message:        rec.Pattern,
			Frequency:      rec.Frequency,
			FixSuccessRate: rec.SuccessRate,
			FixTemplates:   rec.FixTemplates,
		})
	}
	if err := scanner.Err(); err != nil {
		return vmerrors.Wrap(vmerrors.KindInvalidConfiguration, "reading pattern import", err)
	}
	store.Import(incoming)
	return nil
}
