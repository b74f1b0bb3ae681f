package scoring

// Streak is the per-user, per-day run of consecutive correct answers.
type Streak struct {
	Current int
	Max     int
}

// Next returns the streak after one more answer. An incorrect answer resets
// the run; Max never decreases.
func (s Streak) Next(correct bool) Streak {
	if !correct {
		return Streak{Current: 0, Max: s.Max}
	}
	s.Current++
	if s.Current > s.Max {
		s.Max = s.Current
	}
	return s
}
