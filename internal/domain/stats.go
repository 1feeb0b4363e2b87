package domain

// DefaultBarrier is the over/under threshold digit.
const DefaultBarrier Digit = 5

// minStreak is the shortest run of one digit reported as a streak.
const minStreak = 3

// Streak is a run of the same digit inside the window.
type Streak struct {
	Digit  Digit `json:"digit"`
	Length int   `json:"length"`
	Start  int   `json:"start"` // position in the snapshot, oldest = 0
}

// DigitStats is derived from one window snapshot.
type DigitStats struct {
	Total       int
	Invalid     int // values outside 0-9, left out of every figure
	Counts      [10]int
	Frequencies [10]float64

	MostFrequent  Digit // best match
	LeastFrequent Digit // best differ

	Barrier       Digit
	OverFraction  float64 // digits strictly above Barrier
	UnderFraction float64 // digits strictly below Barrier
	EvenFraction  float64
	OddFraction   float64

	// SinceLast is the number of digits observed after the last occurrence of
	// each digit; Total when the digit is absent.
	SinceLast [10]int
	Missing   []Digit
	Streaks   []Streak
}

// Empty reports whether the stats came from an empty window.
func (s DigitStats) Empty() bool { return s.Total == 0 }

// ComputeStats derives the statistics of a snapshot. Ties for most and least
// frequent resolve to the lowest digit so results are reproducible.
func ComputeStats(snapshot []Digit, barrier Digit) DigitStats {
	snapshot, invalid := validDigits(snapshot)
	s := DigitStats{Total: len(snapshot), Invalid: invalid, Barrier: barrier}
	for d := range s.SinceLast {
		s.SinceLast[d] = s.Total
	}
	if s.Total == 0 {
		s.Missing = []Digit{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
		return s
	}

	var over, under, even int
	for i, d := range snapshot {
		s.Counts[d]++
		s.SinceLast[d] = s.Total - 1 - i
		switch {
		case d > barrier:
			over++
		case d < barrier:
			under++
		}
		if d.Even() {
			even++
		}
	}

	n := float64(s.Total)
	for d := 0; d < 10; d++ {
		s.Frequencies[d] = float64(s.Counts[d]) / n
		if s.Counts[d] > s.Counts[s.MostFrequent] {
			s.MostFrequent = Digit(d)
		}
		if s.Counts[d] < s.Counts[s.LeastFrequent] {
			s.LeastFrequent = Digit(d)
		}
		if s.Counts[d] == 0 {
			s.Missing = append(s.Missing, Digit(d))
		}
	}
	s.OverFraction = float64(over) / n
	s.UnderFraction = float64(under) / n
	s.EvenFraction = float64(even) / n
	s.OddFraction = float64(s.Total-even) / n
	s.Streaks = findStreaks(snapshot)
	return s
}

// validDigits drops out-of-range values. The input is returned as is when
// every value is valid.
func validDigits(digits []Digit) ([]Digit, int) {
	for i, d := range digits {
		if d.Valid() {
			continue
		}
		out := append([]Digit(nil), digits[:i]...)
		for _, d := range digits[i+1:] {
			if d.Valid() {
				out = append(out, d)
			}
		}
		return out, len(digits) - len(out)
	}
	return digits, 0
}

func findStreaks(digits []Digit) []Streak {
	var out []Streak
	start := 0
	for i := 1; i <= len(digits); i++ {
		if i < len(digits) && digits[i] == digits[start] {
			continue
		}
		if n := i - start; n >= minStreak {
			out = append(out, Streak{Digit: digits[start], Length: n, Start: start})
		}
		start = i
	}
	return out
}
