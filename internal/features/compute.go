package features

import (
	"fmt"
	"math"
)

// DefaultRegistry returns the built-in technical indicator set over the
// standard raw quote columns.
func DefaultRegistry() *Registry {
	r := NewRegistry(RawOpen, RawHigh, RawLow, RawClose, RawPreClose, RawVolume, RawAmount)

	mustRegister := func(f Feature) {
		if err := r.Register(f); err != nil {
			panic(err) // built-in set is static; a failure here is a programming error
		}
	}

	mustRegister(MovingAverage("ma3", RawClose, 3))
	mustRegister(MovingAverage("ma5", RawClose, 5))
	mustRegister(MovingAverage("ma10", RawClose, 10))
	mustRegister(DailyReturn("ret1"))
	mustRegister(RollingStddev("vol20", "ret1", 20))
	mustRegister(ExponentialMA("ema12", RawClose, 12))
	mustRegister(ExponentialMA("ema26", RawClose, 26))
	mustRegister(Difference("macd", "ema12", "ema26"))

	return r
}

// MovingAverage builds a simple moving average of dep over the given
// window. Values are NULL until the window is filled with non-NULL inputs.
func MovingAverage(name, dep string, window int) Feature {
	return Feature{
		Name: name,
		Deps: []string{dep},
		Compute: func(s *Series) ([]*float64, error) {
			src := s.Column(dep)
			if src == nil {
				return nil, fmt.Errorf("%s: missing column %s", name, dep)
			}
			out := make([]*float64, len(src))
			var sum float64
			valid := 0 // non-NULL values in the current window
			for i := range src {
				if src[i] != nil {
					sum += *src[i]
					valid++
				}
				if i >= window {
					if src[i-window] != nil {
						sum -= *src[i-window]
						valid--
					}
				}
				if i >= window-1 && valid == window {
					v := sum / float64(window)
					out[i] = &v
				}
			}
			return out, nil
		},
	}
}

// DailyReturn builds close/pre_close - 1, NULL when either side is NULL or
// pre_close is zero.
func DailyReturn(name string) Feature {
	return Feature{
		Name: name,
		Deps: []string{RawClose, RawPreClose},
		Compute: func(s *Series) ([]*float64, error) {
			closes := s.Column(RawClose)
			pres := s.Column(RawPreClose)
			out := make([]*float64, s.Len())
			for i := 0; i < s.Len(); i++ {
				if closes[i] == nil || pres[i] == nil || *pres[i] == 0 {
					continue
				}
				v := *closes[i] / *pres[i] - 1
				out[i] = &v
			}
			return out, nil
		},
	}
}

// RollingStddev builds the sample standard deviation of dep over the given
// window, NULL until the window is filled with non-NULL inputs.
func RollingStddev(name, dep string, window int) Feature {
	return Feature{
		Name: name,
		Deps: []string{dep},
		Compute: func(s *Series) ([]*float64, error) {
			src := s.Column(dep)
			if src == nil {
				return nil, fmt.Errorf("%s: missing column %s", name, dep)
			}
			out := make([]*float64, len(src))
			for i := window - 1; i < len(src); i++ {
				var sum float64
				ok := true
				for j := i - window + 1; j <= i; j++ {
					if src[j] == nil {
						ok = false
						break
					}
					sum += *src[j]
				}
				if !ok {
					continue
				}
				mean := sum / float64(window)
				var sq float64
				for j := i - window + 1; j <= i; j++ {
					d := *src[j] - mean
					sq += d * d
				}
				v := math.Sqrt(sq / float64(window-1))
				out[i] = &v
			}
			return out, nil
		},
	}
}

// ExponentialMA builds an exponential moving average of dep with
// alpha = 2/(span+1), seeded at the first non-NULL input.
func ExponentialMA(name, dep string, span int) Feature {
	return Feature{
		Name: name,
		Deps: []string{dep},
		Compute: func(s *Series) ([]*float64, error) {
			src := s.Column(dep)
			if src == nil {
				return nil, fmt.Errorf("%s: missing column %s", name, dep)
			}
			alpha := 2.0 / float64(span+1)
			out := make([]*float64, len(src))
			var prev *float64
			for i := range src {
				if src[i] == nil {
					// NULL input carries the previous EMA forward
					if prev != nil {
						v := *prev
						out[i] = &v
						prev = out[i]
					}
					continue
				}
				if prev == nil {
					v := *src[i]
					out[i] = &v
				} else {
					v := alpha**src[i] + (1-alpha)**prev
					out[i] = &v
				}
				prev = out[i]
			}
			return out, nil
		},
	}
}

// Difference builds a - b, NULL when either side is NULL.
func Difference(name, a, b string) Feature {
	return Feature{
		Name: name,
		Deps: []string{a, b},
		Compute: func(s *Series) ([]*float64, error) {
			left := s.Column(a)
			right := s.Column(b)
			if left == nil || right == nil {
				return nil, fmt.Errorf("%s: missing dependency column", name)
			}
			out := make([]*float64, s.Len())
			for i := 0; i < s.Len(); i++ {
				if left[i] == nil || right[i] == nil {
					continue
				}
				v := *left[i] - *right[i]
				out[i] = &v
			}
			return out, nil
		},
	}
}
