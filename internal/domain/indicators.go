package domain

import (
	"slices"
	"sort"
)

// DefaultIndicatorSpan is how many of the latest digits count as "recent".
const DefaultIndicatorSpan = 20

const (
	hotRatio        = 1.5
	coldRatio       = 0.5
	trendRatio      = 1.5
	hotMinRecent    = 2
	coldMinOverall  = 2
	topIndicatorLen = 3
)

// ScoredDigit is one digit flagged by an indicator. Before/After are the two
// rates compared (overall vs recent for hot and cold, first vs second half of
// the recent span for trends); Absent is set for due digits.
type ScoredDigit struct {
	Digit  Digit   `json:"digit"`
	Score  float64 `json:"score"`
	Before float64 `json:"before,omitempty"`
	After  float64 `json:"after,omitempty"`
	Absent int     `json:"absent,omitempty"`
}

// Indicators are frequency-threshold signals over a snapshot, strongest
// first, at most three per list.
type Indicators struct {
	Span         int           `json:"span"`
	Hot          []ScoredDigit `json:"hot"`           // recent rate > 1.5× overall, seen at least twice
	Cold         []ScoredDigit `json:"cold"`          // recent rate < 0.5× overall, seen at least twice overall
	Due          []ScoredDigit `json:"due"`           // absent longer than len/10 digits
	TrendingUp   []ScoredDigit `json:"trending_up"`   // second half of the span > 1.5× first half
	TrendingDown []ScoredDigit `json:"trending_down"` // first half > 1.5× second half
}

// ComputeIndicators compares the latest span digits of the snapshot with the
// whole of it. Snapshots shorter than span give empty indicators.
func ComputeIndicators(snapshot []Digit, span int) Indicators {
	snapshot, _ = validDigits(snapshot)
	if span < 2 {
		span = DefaultIndicatorSpan
	}
	ind := Indicators{Span: span}
	n := len(snapshot)
	if n < span {
		return ind
	}

	overall := countDigits(snapshot)
	recent := countDigits(snapshot[n-span:])
	total, spanF := float64(n), float64(span)

	for d := 0; d < 10; d++ {
		overallRate := float64(overall[d]) / total
		recentRate := float64(recent[d]) / spanF

		if recentRate > overallRate*hotRatio && recent[d] >= hotMinRecent {
			ind.Hot = append(ind.Hot, ScoredDigit{
				Digit: Digit(d), Score: recentRate / overallRate, Before: overallRate, After: recentRate,
			})
		}
		if recentRate < overallRate*coldRatio && overall[d] >= coldMinOverall {
			score := overallRate * 10
			if recentRate > 0 {
				score = overallRate / recentRate
			}
			ind.Cold = append(ind.Cold, ScoredDigit{
				Digit: Digit(d), Score: score, Before: overallRate, After: recentRate,
			})
		}
	}

	// due: ausencia mayor que la esperada con distribución uniforme
	expected := total / 10
	last := [10]int{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1}
	for i, d := range snapshot {
		last[d] = i
	}
	for d := 0; d < 10; d++ {
		if last[d] < 0 {
			ind.Due = append(ind.Due, ScoredDigit{Digit: Digit(d), Score: expected, Absent: n})
			continue
		}
		if absent := n - 1 - last[d]; float64(absent) > expected {
			ind.Due = append(ind.Due, ScoredDigit{Digit: Digit(d), Score: float64(absent) / expected, Absent: absent})
		}
	}

	// tendencias: primera mitad del span contra la segunda
	half := span / 2
	first := countDigits(snapshot[n-span : n-half])
	second := countDigits(snapshot[n-half:])
	halfF := float64(half)
	for d := 0; d < 10; d++ {
		a := float64(first[d]) / halfF
		b := float64(second[d]) / halfF
		switch {
		case b > a*trendRatio:
			ind.TrendingUp = append(ind.TrendingUp, ScoredDigit{Digit: Digit(d), Score: ratioScore(b, a), Before: a, After: b})
		case a > b*trendRatio:
			ind.TrendingDown = append(ind.TrendingDown, ScoredDigit{Digit: Digit(d), Score: ratioScore(a, b), Before: a, After: b})
		}
	}

	ind.Hot = topScored(ind.Hot)
	ind.Cold = topScored(ind.Cold)
	ind.Due = topScored(ind.Due)
	ind.TrendingUp = topScored(ind.TrendingUp)
	ind.TrendingDown = topScored(ind.TrendingDown)
	return ind
}

func countDigits(digits []Digit) [10]int {
	var c [10]int
	for _, d := range digits {
		c[d]++
	}
	return c
}

// ratioScore is num/den, or num×10 when den is zero.
func ratioScore(num, den float64) float64 {
	if den > 0 {
		return num / den
	}
	return num * 10
}

// topScored sorts by score descending (ties keep digit order) and keeps the
// strongest entries.
func topScored(in []ScoredDigit) []ScoredDigit {
	sort.SliceStable(in, func(i, j int) bool { return in[i].Score > in[j].Score })
	if len(in) > topIndicatorLen {
		in = in[:topIndicatorLen]
	}
	return in
}

// PatternKind names a detected digit pattern.
type PatternKind string

const (
	PatternExact      PatternKind = "exact"
	PatternArithmetic PatternKind = "arithmetic"
	PatternOddEven    PatternKind = "odd_even_alternation"
	PatternHighLow    PatternKind = "high_low_alternation"
)

const alternationLen = 6

// Pattern is a sequence found in a snapshot.
type Pattern struct {
	Kind       PatternKind `json:"kind"`
	Digits     []Digit     `json:"digits"`
	Start      int         `json:"start"`
	Length     int         `json:"length"`
	Repeats    int         `json:"repeats,omitempty"` // exact
	Step       int         `json:"step,omitempty"`    // arithmetic
	Confidence float64     `json:"confidence"`
}

// DetectPatterns scans the snapshot for back-to-back repeats of a block of
// 2 to 5 digits, arithmetic runs of 3 to 7 digits with a non-zero step, and
// six-digit odd/even or high/low (0-4 vs 5-9) alternations. Overlapping
// matches are all reported, in scan order.
func DetectPatterns(snapshot []Digit) []Pattern {
	digits, _ := validDigits(snapshot)
	n := len(digits)
	var out []Pattern

	for length := 2; length < min(6, n/2); length++ {
		for start := 0; start < n-2*length; start++ {
			block := digits[start : start+length]
			if !slices.Equal(block, digits[start+length:start+2*length]) {
				continue
			}
			repeats := 2
			for pos := start + 2*length; pos+length <= n && slices.Equal(block, digits[pos:pos+length]); pos += length {
				repeats++
			}
			out = append(out, Pattern{
				Kind:       PatternExact,
				Digits:     append([]Digit(nil), block...),
				Start:      start,
				Length:     length,
				Repeats:    repeats,
				Confidence: min(0.9, 0.5+float64(repeats)/10),
			})
		}
	}

	for length := 3; length < min(8, n); length++ {
		for start := 0; start < n-length; start++ {
			seq := digits[start : start+length]
			step := int(seq[1] - seq[0])
			if step == 0 || !constantStep(seq, step) {
				continue
			}
			if step < -5 {
				step += 10
			}
			out = append(out, Pattern{
				Kind:       PatternArithmetic,
				Digits:     append([]Digit(nil), seq...),
				Start:      start,
				Length:     length,
				Step:       step,
				Confidence: min(0.8, 0.4+float64(length)/10),
			})
		}
	}

	for start := 0; start < n-alternationLen; start++ {
		seq := digits[start : start+alternationLen]
		oddEven, highLow := true, true
		for i := 0; i < alternationLen-1; i++ {
			if seq[i].Even() == seq[i+1].Even() {
				oddEven = false
			}
			if (seq[i] < 5) == (seq[i+1] < 5) {
				highLow = false
			}
		}
		if oddEven {
			out = append(out, Pattern{Kind: PatternOddEven, Digits: append([]Digit(nil), seq...), Start: start, Length: alternationLen, Confidence: 0.75})
		}
		if highLow {
			out = append(out, Pattern{Kind: PatternHighLow, Digits: append([]Digit(nil), seq...), Start: start, Length: alternationLen, Confidence: 0.75})
		}
	}
	return out
}

func constantStep(seq []Digit, step int) bool {
	for i := 1; i < len(seq); i++ {
		if int(seq[i]-seq[i-1]) != step {
			return false
		}
	}
	return true
}
