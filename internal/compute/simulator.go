// Package compute answers typed computation requests when no accelerated
// backend is available. Results are structurally identical to accelerated
// ones; cheap analyses (word counts, repeated-pattern scans) are computed for
// real, while expensive numeric fields are deterministic placeholders derived
// from the payload.
package compute

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ErrUnknownType reports a computation type outside the supported set.
var ErrUnknownType = errors.New("unknown computation type")

// Supported computation types.
const (
	TypeMatrix  = "matrix"
	TypeText    = "text"
	TypeImage   = "image"
	TypePattern = "pattern"
)

// Simulator produces synthetic computation results.
type Simulator struct{}

// NewSimulator returns a ready Simulator.
func NewSimulator() *Simulator {
	return &Simulator{}
}

// Simulate dispatches on taskType and returns the inner result payload.
// Unknown types return ErrUnknownType; no payload causes a panic.
func (s *Simulator) Simulate(taskType string, payload any) (map[string]any, error) {
	switch strings.ToLower(strings.TrimSpace(taskType)) {
	case TypeMatrix:
		return s.matrix(payload), nil
	case TypeText:
		return s.text(payload), nil
	case TypeImage:
		return s.image(payload), nil
	case TypePattern:
		return s.pattern(payload), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, taskType)
	}
}

func (s *Simulator) matrix(payload any) map[string]any {
	size := intField(payload, "size", 64)
	if size < 1 {
		size = 1
	}
	seed := payloadSeed(payload)
	// Pseudo results keyed off the payload so repeated requests agree.
	return map[string]any{
		"operation":     "multiply",
		"size":          size,
		"element_count": size * size,
		"checksum":      seed,
		"frobenius":     float64(seed%100000) / 100.0,
	}
}

func (s *Simulator) text(payload any) map[string]any {
	raw := stringField(payload, "text")
	normalized := norm.NFC.String(raw)
	words := strings.Fields(normalized)

	totalLen := 0
	for _, w := range words {
		totalLen += utf8.RuneCountInString(w)
	}
	avg := 0.0
	if len(words) > 0 {
		avg = float64(totalLen) / float64(len(words))
	}

	return map[string]any{
		"word_count":      len(words),
		"char_count":      utf8.RuneCountInString(normalized),
		"line_count":      1 + strings.Count(normalized, "\n"),
		"avg_word_length": avg,
	}
}

func (s *Simulator) image(payload any) map[string]any {
	width := intField(payload, "width", 640)
	height := intField(payload, "height", 480)
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	seed := payloadSeed(payload)
	return map[string]any{
		"width":      width,
		"height":     height,
		"pixels":     width * height,
		"channels":   4,
		"brightness": float64(seed%256) / 255.0,
	}
}

// pattern runs a real repeated-trigram scan over the payload text and
// reports the most frequent one.
func (s *Simulator) pattern(payload any) map[string]any {
	raw := norm.NFC.String(stringField(payload, "text"))
	runes := []rune(raw)

	counts := make(map[string]int)
	for i := 0; i+3 <= len(runes); i++ {
		gram := string(runes[i : i+3])
		if strings.TrimSpace(gram) == "" {
			continue
		}
		counts[gram]++
	}

	type gramCount struct {
		gram  string
		count int
	}
	repeated := make([]gramCount, 0, len(counts))
	for gram, count := range counts {
		if count > 1 {
			repeated = append(repeated, gramCount{gram, count})
		}
	}
	sort.Slice(repeated, func(i, j int) bool {
		if repeated[i].count != repeated[j].count {
			return repeated[i].count > repeated[j].count
		}
		return repeated[i].gram < repeated[j].gram
	})

	result := map[string]any{
		"sample_length":    len(runes),
		"repeated_trigrams": len(repeated),
	}
	if len(repeated) > 0 {
		result["top_pattern"] = repeated[0].gram
		result["top_pattern_count"] = repeated[0].count
	}
	return result
}

// stringField extracts a usable text body from the payload: a bare string,
// a map with the named key, or the payload's string rendering.
func stringField(payload any, key string) string {
	switch v := payload.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		if inner, ok := v[key].(string); ok {
			return inner
		}
		if inner, ok := v["data"].(string); ok {
			return inner
		}
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intField(payload any, key string, fallback int) int {
	m, ok := payload.(map[string]any)
	if !ok {
		return fallback
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// payloadSeed derives a stable numeric seed from the payload rendering.
func payloadSeed(payload any) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%v", payload)
	return h.Sum64()
}
