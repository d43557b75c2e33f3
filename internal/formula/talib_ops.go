package formula

import (
	"github.com/markcheno/go-talib"
)

// Technical bundles delegate the per-symbol array math to go-talib, the
// same indicator library the signal side of the corpus uses. Each bundle
// exposes its components as separate operator names (MACD_DIF rather than
// a tuple return) since the operator tree has no multi-value node.

func init() {
	register("RSI", 2, 2, func(env *Env, args []Node) (*Table, error) {
		period, err := literalInt(args[1])
		if err != nil {
			return nil, err
		}
		return timeSeriesOp(env, args[0], func(series []float64) []float64 {
			return talib.Rsi(series, period)
		})
	})

	register("MACD_DIF", 4, 4, macdComponent(0))
	register("MACD_DEA", 4, 4, macdComponent(1))
	register("MACD_HIST", 4, 4, macdComponent(2))

	register("BOLL_UPPER", 3, 3, bollComponent(0))
	register("BOLL_MID", 3, 3, bollComponent(1))
	register("BOLL_LOWER", 3, 3, bollComponent(2))

	register("CCI", 4, 4, func(env *Env, args []Node) (*Table, error) {
		period, err := literalInt(args[3])
		if err != nil {
			return nil, err
		}
		return hlcOp(env, args[0], args[1], args[2], func(h, l, c []float64) []float64 {
			return talib.Cci(h, l, c, period)
		})
	})

	register("ATR", 4, 4, func(env *Env, args []Node) (*Table, error) {
		period, err := literalInt(args[3])
		if err != nil {
			return nil, err
		}
		return hlcOp(env, args[0], args[1], args[2], func(h, l, c []float64) []float64 {
			return talib.Atr(h, l, c, period)
		})
	})

	register("KDJ_K", 5, 5, kdjComponent(0))
	register("KDJ_D", 5, 5, kdjComponent(1))
	register("KDJ_J", 5, 5, kdjComponent(2))
}

func macdComponent(index int) operatorFn {
	return func(env *Env, args []Node) (*Table, error) {
		fast, err := literalInt(args[1])
		if err != nil {
			return nil, err
		}
		slow, err := literalInt(args[2])
		if err != nil {
			return nil, err
		}
		signal, err := literalInt(args[3])
		if err != nil {
			return nil, err
		}
		return timeSeriesOp(env, args[0], func(series []float64) []float64 {
			dif, dea, hist := talib.Macd(series, fast, slow, signal)
			switch index {
			case 0:
				return dif
			case 1:
				return dea
			default:
				return hist
			}
		})
	}
}

func bollComponent(index int) operatorFn {
	return func(env *Env, args []Node) (*Table, error) {
		period, err := literalInt(args[1])
		if err != nil {
			return nil, err
		}
		nbDev, err := literalInt(args[2])
		if err != nil {
			return nil, err
		}
		return timeSeriesOp(env, args[0], func(series []float64) []float64 {
			upper, mid, lower := talib.BBands(series, period, float64(nbDev), float64(nbDev), 0)
			switch index {
			case 0:
				return upper
			case 1:
				return mid
			default:
				return lower
			}
		})
	}
}

// hlcOp feeds each symbol's three Dates-ordered high/low/close series into
// f and writes the per-symbol result back.
func hlcOp(env *Env, high, low, close Node, f func(h, l, c []float64) []float64) (*Table, error) {
	tabs, err := evalAll(env, high, low, close)
	if err != nil {
		return nil, err
	}
	h, l, c := tabs[0], tabs[1], tabs[2]
	out := NewTable(env.Symbols, env.Dates)
	for _, s := range env.Symbols {
		out.SetSeries(s, f(h.Series(s), l.Series(s), c.Series(s)))
	}
	return out, nil
}

// kdjComponent implements the RSV-based KDJ recurrence: go-talib has no KDJ
// (a CN-market-specific indicator), so it is hand-rolled here rather than
// forced through a mismatched talib primitive.
func kdjComponent(index int) operatorFn {
	return func(env *Env, args []Node) (*Table, error) {
		n, err := literalInt(args[3])
		if err != nil {
			return nil, err
		}
		mAvg, err := literalInt(args[4])
		if err != nil {
			return nil, err
		}
		tabs, err := evalAll(env, args[0], args[1], args[2])
		if err != nil {
			return nil, err
		}
		high, low, close := tabs[0], tabs[1], tabs[2]
		out := NewTable(env.Symbols, env.Dates)
		for _, s := range env.Symbols {
			k, d, j := kdj(high.Series(s), low.Series(s), close.Series(s), n, mAvg)
			switch index {
			case 0:
				out.SetSeries(s, k)
			case 1:
				out.SetSeries(s, d)
			default:
				out.SetSeries(s, j)
			}
		}
		return out, nil
	}
}

func kdj(high, low, close []float64, n, smooth int) (k, d, j []float64) {
	k = make([]float64, len(close))
	d = make([]float64, len(close))
	j = make([]float64, len(close))
	prevK, prevD := 50.0, 50.0
	for i := range close {
		if i-n+1 < 0 {
			k[i], d[i], j[i] = 50, 50, 50
			continue
		}
		hh := maxOf(high[i-n+1 : i+1])
		ll := minOf(low[i-n+1 : i+1])
		rsv := 50.0
		if hh != ll {
			rsv = (close[i] - ll) / (hh - ll) * 100
		}
		prevK = (prevK*float64(smooth-1) + rsv) / float64(smooth)
		prevD = (prevD*float64(smooth-1) + prevK) / float64(smooth)
		k[i], d[i] = prevK, prevD
		j[i] = 3*prevK - 2*prevD
	}
	return k, d, j
}
