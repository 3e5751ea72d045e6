package input

import "github.com/gwillem/so101/pkg/teleop"

type merged []teleop.Source

// Merge combines sources into one. An intent is set when any source sets it,
// so holding release on any device keeps the arm released.
func Merge(sources ...teleop.Source) teleop.Source {
	var m merged
	for _, s := range sources {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m merged) Poll() teleop.Input {
	var out teleop.Input
	for _, s := range m {
		in := s.Poll()
		out.SelectNext = out.SelectNext || in.SelectNext
		out.SelectPrevious = out.SelectPrevious || in.SelectPrevious
		out.JogPositive = out.JogPositive || in.JogPositive
		out.JogNegative = out.JogNegative || in.JogNegative
		out.GoToZero = out.GoToZero || in.GoToZero
		out.Release = out.Release || in.Release
		out.Slow = out.Slow || in.Slow
	}
	return out
}
