package formula

import (
	"math"
	"sort"

	"github.com/aristath/factorlab/internal/errs"
)

type operatorFn func(env *Env, args []Node) (*Table, error)

type operatorSpec struct {
	minArgs int
	maxArgs int // -1 = unbounded
	fn      operatorFn
}

var operators = map[string]operatorSpec{}

func register(name string, min, max int, fn operatorFn) {
	operators[name] = operatorSpec{minArgs: min, maxArgs: max, fn: fn}
}

func evalAll(env *Env, nodes ...Node) ([]*Table, error) {
	out := make([]*Table, len(nodes))
	for i, n := range nodes {
		t, err := n.Eval(env)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func literalInt(n Node) (int, error) {
	num, ok := n.(numberNode)
	if !ok {
		return 0, errs.Validation("expected a numeric literal window/lag argument")
	}
	return int(num.value), nil
}

func elementwise2(env *Env, a, b Node, f func(x, y float64) float64) (*Table, error) {
	tabs, err := evalAll(env, a, b)
	if err != nil {
		return nil, err
	}
	out := NewTable(env.Symbols, env.Dates)
	for _, s := range env.Symbols {
		for _, d := range env.Dates {
			out.Set(s, d, f(tabs[0].Get(s, d), tabs[1].Get(s, d)))
		}
	}
	return out, nil
}

func elementwise1(env *Env, a Node, f func(x float64) float64) (*Table, error) {
	t, err := a.Eval(env)
	if err != nil {
		return nil, err
	}
	out := NewTable(env.Symbols, env.Dates)
	for _, s := range env.Symbols {
		for _, d := range env.Dates {
			out.Set(s, d, f(t.Get(s, d)))
		}
	}
	return out, nil
}

// timeSeriesOp applies f to each symbol's Dates-ordered series independently,
// the shared shape for every rolling/lag operator.
func timeSeriesOp(env *Env, x Node, f func(series []float64) []float64) (*Table, error) {
	t, err := x.Eval(env)
	if err != nil {
		return nil, err
	}
	out := t.Clone()
	for _, s := range env.Symbols {
		out.SetSeries(s, f(t.Series(s)))
	}
	return out, nil
}

func init() {
	register("IF", 3, 3, func(env *Env, args []Node) (*Table, error) {
		tabs, err := evalAll(env, args...)
		if err != nil {
			return nil, err
		}
		cond, a, b := tabs[0], tabs[1], tabs[2]
		out := NewTable(env.Symbols, env.Dates)
		for _, s := range env.Symbols {
			for _, d := range env.Dates {
				c := cond.Get(s, d)
				if math.IsNaN(c) {
					out.Set(s, d, math.NaN())
					continue
				}
				if c != 0 {
					out.Set(s, d, a.Get(s, d))
				} else {
					out.Set(s, d, b.Get(s, d))
				}
			}
		}
		return out, nil
	})

	register("ABS", 1, 1, func(env *Env, args []Node) (*Table, error) {
		return elementwise1(env, args[0], math.Abs)
	})
	register("LOG", 1, 1, func(env *Env, args []Node) (*Table, error) {
		return elementwise1(env, args[0], func(x float64) float64 {
			if x <= 0 {
				return math.NaN()
			}
			return math.Log(x)
		})
	})
	register("POWER", 2, 2, func(env *Env, args []Node) (*Table, error) {
		return elementwise2(env, args[0], args[1], math.Pow)
	})
	register("MIN", 2, 2, func(env *Env, args []Node) (*Table, error) {
		return elementwise2(env, args[0], args[1], func(x, y float64) float64 {
			if math.IsNaN(x) || math.IsNaN(y) {
				return math.NaN()
			}
			return math.Min(x, y)
		})
	})
	register("MAX", 2, 2, func(env *Env, args []Node) (*Table, error) {
		return elementwise2(env, args[0], args[1], func(x, y float64) float64 {
			if math.IsNaN(x) || math.IsNaN(y) {
				return math.NaN()
			}
			return math.Max(x, y)
		})
	})
	register("FILTER", 2, 2, func(env *Env, args []Node) (*Table, error) {
		return elementwise2(env, args[0], args[1], func(x, cond float64) float64 {
			if math.IsNaN(cond) || cond == 0 {
				return math.NaN()
			}
			return x
		})
	})

	register("RANK", 1, 1, func(env *Env, args []Node) (*Table, error) {
		t, err := args[0].Eval(env)
		if err != nil {
			return nil, err
		}
		out := NewTable(env.Symbols, env.Dates)
		for _, d := range env.Dates {
			var pairs []rankPair
			for _, s := range env.Symbols {
				v := t.Get(s, d)
				if math.IsNaN(v) {
					out.Set(s, d, 0)
					continue
				}
				pairs = append(pairs, rankPair{sym: s, val: v})
			}
			n := len(pairs)
			if n <= 1 {
				for _, p := range pairs {
					out.Set(p.sym, d, 0)
				}
				continue
			}
			sort.Slice(pairs, func(i, j int) bool { return pairs[i].val < pairs[j].val })
			ranks := averageRanks(pairs)
			for i, p := range pairs {
				out.Set(p.sym, d, (ranks[i]-1)/float64(n-1)-0.5)
			}
		}
		return out, nil
	})

	register("DELAY", 2, 2, func(env *Env, args []Node) (*Table, error) {
		lag, err := literalInt(args[1])
		if err != nil {
			return nil, err
		}
		return timeSeriesOp(env, args[0], func(series []float64) []float64 { return delay(series, lag) })
	})
	register("REF", 2, 2, func(env *Env, args []Node) (*Table, error) {
		lag, err := literalInt(args[1])
		if err != nil {
			return nil, err
		}
		return timeSeriesOp(env, args[0], func(series []float64) []float64 { return delay(series, lag) })
	})
	register("DIFF", 2, 2, func(env *Env, args []Node) (*Table, error) {
		lag, err := literalInt(args[1])
		if err != nil {
			return nil, err
		}
		return timeSeriesOp(env, args[0], func(series []float64) []float64 {
			shifted := delay(series, lag)
			out := make([]float64, len(series))
			for i := range series {
				out[i] = series[i] - shifted[i]
			}
			return out
		})
	})
	register("RETURNS", 1, 1, func(env *Env, args []Node) (*Table, error) {
		return timeSeriesOp(env, args[0], func(series []float64) []float64 {
			shifted := delay(series, 1)
			out := make([]float64, len(series))
			for i := range series {
				if i == 0 {
					out[i] = 0
					continue
				}
				if shifted[i] == 0 || math.IsNaN(shifted[i]) {
					out[i] = math.NaN()
					continue
				}
				out[i] = (series[i] - shifted[i]) / shifted[i]
			}
			return out
		})
	})

	register("SUM", 2, 2, rollingOpMinPeriods(sum, func(int) int { return 1 }))
	register("TS_MEAN", 2, 2, rollingOp(mean))
	register("MA", 2, 2, rollingOp(mean))
	register("STDDEV", 2, 2, rollingOpMinPeriods(stddev, func(w int) int {
		mp := w / 4
		if mp < 2 {
			mp = 2
		}
		return mp
	}))
	register("TS_MIN", 2, 2, rollingOp(func(w []float64) float64 { return minOf(w) }))
	register("TS_MAX", 2, 2, rollingOp(func(w []float64) float64 { return maxOf(w) }))
	register("TS_RANK", 2, 2, rollingOp(tsRankOf))

	register("EMA", 2, 2, func(env *Env, args []Node) (*Table, error) {
		period, err := literalInt(args[1])
		if err != nil {
			return nil, err
		}
		return timeSeriesOp(env, args[0], func(series []float64) []float64 { return ema(series, period) })
	})
	register("WMA", 2, 2, func(env *Env, args []Node) (*Table, error) {
		period, err := literalInt(args[1])
		if err != nil {
			return nil, err
		}
		return timeSeriesOp(env, args[0], func(series []float64) []float64 { return wma(series, period) })
	})
	register("SMA", 3, 3, func(env *Env, args []Node) (*Table, error) {
		period, err := literalInt(args[1])
		if err != nil {
			return nil, err
		}
		weight, err := literalInt(args[2])
		if err != nil {
			return nil, err
		}
		return timeSeriesOp(env, args[0], func(series []float64) []float64 { return chineseSMA(series, period, weight) })
	})

	register("CROSS", 2, 2, func(env *Env, args []Node) (*Table, error) {
		tabs, err := evalAll(env, args...)
		if err != nil {
			return nil, err
		}
		a, b := tabs[0], tabs[1]
		out := NewTable(env.Symbols, env.Dates)
		for _, s := range env.Symbols {
			as, bs := a.Series(s), b.Series(s)
			cs := make([]float64, len(as))
			for i := range as {
				if i == 0 || math.IsNaN(as[i-1]) || math.IsNaN(bs[i-1]) || math.IsNaN(as[i]) || math.IsNaN(bs[i]) {
					cs[i] = math.NaN()
					continue
				}
				if as[i-1] <= bs[i-1] && as[i] > bs[i] {
					cs[i] = 1
				} else {
					cs[i] = 0
				}
			}
			out.SetSeries(s, cs)
		}
		return out, nil
	})

	register("CORRELATION", 3, 3, func(env *Env, args []Node) (*Table, error) {
		window, err := literalInt(args[2])
		if err != nil {
			return nil, err
		}
		tabs, err := evalAll(env, args[0], args[1])
		if err != nil {
			return nil, err
		}
		a, b := tabs[0], tabs[1]
		out := NewTable(env.Symbols, env.Dates)
		for _, s := range env.Symbols {
			as, bs := a.Series(s), b.Series(s)
			out.SetSeries(s, rollingCorrelation(as, bs, window))
		}
		return out, nil
	})
}

// rollingOp lifts a window-reducer into a SUM/TS_MEAN/TS_MIN/.../-style
// two-arg (series, window) operator.
func rollingOp(reduce func(window []float64) float64) operatorFn {
	return func(env *Env, args []Node) (*Table, error) {
		w, err := literalInt(args[1])
		if err != nil {
			return nil, err
		}
		return timeSeriesOp(env, args[0], func(series []float64) []float64 { return rolling(series, w, reduce) })
	}
}

// rollingOpMinPeriods lifts a window-reducer into a two-arg (series, window)
// operator whose windows need not be full: a cell is computed from whatever
// non-NaN values fall in its trailing window once at least minPeriods(window)
// of them are present, rather than requiring the window to be entirely full
// and entirely NaN-free.
func rollingOpMinPeriods(reduce func(window []float64) float64, minPeriods func(window int) int) operatorFn {
	return func(env *Env, args []Node) (*Table, error) {
		w, err := literalInt(args[1])
		if err != nil {
			return nil, err
		}
		mp := minPeriods(w)
		return timeSeriesOp(env, args[0], func(series []float64) []float64 { return rollingPartial(series, w, mp, reduce) })
	}
}

func rollingPartial(series []float64, window, minPeriods int, reduce func([]float64) float64) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		var valid []float64
		for _, x := range series[start : i+1] {
			if !math.IsNaN(x) {
				valid = append(valid, x)
			}
		}
		if len(valid) < minPeriods {
			out[i] = math.NaN()
			continue
		}
		out[i] = reduce(valid)
	}
	return out
}

func delay(series []float64, lag int) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		if i-lag < 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = series[i-lag]
	}
	return out
}

func rolling(series []float64, window int, reduce func([]float64) float64) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		if i-window+1 < 0 {
			out[i] = math.NaN()
			continue
		}
		w := series[i-window+1 : i+1]
		if containsNaN(w) {
			out[i] = math.NaN()
			continue
		}
		out[i] = reduce(w)
	}
	return out
}

func containsNaN(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return sum(xs) / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

type rankPair struct {
	sym string
	val float64
}

// averageRanks assigns each element its 1-based rank among pairs (already
// sorted ascending by val), averaging ranks across tied runs so equal values
// share the same rank rather than breaking ties by sort order.
func averageRanks(pairs []rankPair) []float64 {
	n := len(pairs)
	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j+1 < n && pairs[j+1].val == pairs[i].val {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[k] = avg
		}
		i = j + 1
	}
	return ranks
}

// tsRankOf returns the fractional rank in (0,1] of the window's last value
// within the window.
func tsRankOf(xs []float64) float64 {
	last := xs[len(xs)-1]
	rank := 0
	for _, x := range xs {
		if x <= last {
			rank++
		}
	}
	return float64(rank) / float64(len(xs))
}

func ema(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	if period <= 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	alpha := 2.0 / float64(period+1)
	var prev float64
	started := false
	for i, x := range series {
		if math.IsNaN(x) {
			out[i] = math.NaN()
			continue
		}
		if !started {
			prev = x
			started = true
		} else {
			prev = alpha*x + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

func wma(series []float64, period int) []float64 {
	return rolling(series, period, func(w []float64) float64 {
		var num, den float64
		for i, x := range w {
			weight := float64(i + 1)
			num += weight * x
			den += weight
		}
		return num / den
	})
}

// chineseSMA implements the recurrence y[t] = (x[t]*weight + y[t-1]*(period-weight)) / period.
func chineseSMA(series []float64, period, weight int) []float64 {
	out := make([]float64, len(series))
	var prev float64
	started := false
	for i, x := range series {
		if math.IsNaN(x) {
			out[i] = math.NaN()
			continue
		}
		if !started {
			prev = x
			started = true
		} else {
			prev = (x*float64(weight) + prev*float64(period-weight)) / float64(period)
		}
		out[i] = prev
	}
	return out
}

func rollingCorrelation(a, b []float64, window int) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		if i-window+1 < 0 {
			out[i] = math.NaN()
			continue
		}
		wa, wb := a[i-window+1:i+1], b[i-window+1:i+1]
		if containsNaN(wa) || containsNaN(wb) {
			out[i] = math.NaN()
			continue
		}
		out[i] = pearson(wa, wb)
	}
	return out
}

func pearson(a, b []float64) float64 {
	ma, mb := mean(a), mean(b)
	var num, da, db float64
	for i := range a {
		xa := a[i] - ma
		xb := b[i] - mb
		num += xa * xb
		da += xa * xa
		db += xb * xb
	}
	if da == 0 || db == 0 {
		return math.NaN()
	}
	return num / math.Sqrt(da*db)
}
