// Package attribution answers, after the fact, whether confidence actually
// predicted returns. Read-only over the closed-position log; it mutates no
// simulation state and tolerates partial in-progress logs.
package attribution

import (
	"math"
	"sort"
)

// MinSampleSize below which results are flagged statistically unreliable.
const MinSampleSize = 30

// Sample is one closed position's contribution.
type Sample struct {
	Confidence float64
	ReturnPct  float64
}

// ThresholdStat reports outcomes had only signals at or above MinConfidence
// been taken.
type ThresholdStat struct {
	MinConfidence float64 `json:"min_confidence"`
	Trades        int     `json:"trades"`
	MeanReturnPct float64 `json:"mean_return_pct"`
	SharpeLike    float64 `json:"sharpe_like"` // mean/stddev of per-trade returns
}

// Report is the attribution summary for one closed-position log.
type Report struct {
	SampleCount        int     `json:"sample_count"`
	InsufficientSample bool    `json:"insufficient_sample"`
	IC                 float64 `json:"information_coefficient"`
	WinRate            float64 `json:"win_rate"`
	AvgWinPct          float64 `json:"avg_win_pct"`
	AvgLossPct         float64 `json:"avg_loss_pct"`

	Thresholds []ThresholdStat `json:"thresholds"`
}

// Analyze computes the IC (Spearman rank correlation of confidence against
// realized return), win statistics, and a confidence-threshold sweep.
func Analyze(samples []Sample) Report {
	r := Report{
		SampleCount:        len(samples),
		InsufficientSample: len(samples) < MinSampleSize,
	}
	if len(samples) == 0 {
		return r
	}

	conf := make([]float64, len(samples))
	rets := make([]float64, len(samples))
	var wins, losses int
	var winSum, lossSum float64
	for i, s := range samples {
		conf[i] = s.Confidence
		rets[i] = s.ReturnPct
		if s.ReturnPct > 0 {
			wins++
			winSum += s.ReturnPct
		} else if s.ReturnPct < 0 {
			losses++
			lossSum += s.ReturnPct
		}
	}
	r.IC = Spearman(conf, rets)
	r.WinRate = float64(wins) / float64(len(samples))
	if wins > 0 {
		r.AvgWinPct = winSum / float64(wins)
	}
	if losses > 0 {
		r.AvgLossPct = lossSum / float64(losses)
	}
	r.Thresholds = thresholdSweep(samples)
	return r
}

// Spearman computes the rank correlation of two equal-length series with
// tie-aware average ranks. Returns 0 for degenerate inputs.
func Spearman(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0
	}
	return pearson(ranks(x), ranks(y))
}

// ranks assigns average ranks, so ties do not bias the correlation.
func ranks(v []float64) []float64 {
	n := len(v)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return v[idx[a]] < v[idx[b]] })

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && v[idx[j+1]] == v[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

func pearson(x, y []float64) float64 {
	n := float64(len(x))
	var sx, sy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
	}
	mx, my := sx/n, sy/n
	var cov, vx, vy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}

// thresholdSweep reports the Sharpe-like ratio achievable at each candidate
// minimum-confidence cutoff, for post-hoc tuning.
func thresholdSweep(samples []Sample) []ThresholdStat {
	var out []ThresholdStat
	for cutoff := 0.50; cutoff <= 0.901; cutoff += 0.05 {
		var kept []float64
		for _, s := range samples {
			if s.Confidence >= cutoff {
				kept = append(kept, s.ReturnPct)
			}
		}
		st := ThresholdStat{MinConfidence: math.Round(cutoff*100) / 100, Trades: len(kept)}
		if len(kept) > 0 {
			var sum float64
			for _, r := range kept {
				sum += r
			}
			mean := sum / float64(len(kept))
			var varSum float64
			for _, r := range kept {
				varSum += (r - mean) * (r - mean)
			}
			st.MeanReturnPct = mean
			if len(kept) > 1 && varSum > 0 {
				st.SharpeLike = mean / math.Sqrt(varSum/float64(len(kept)-1))
			}
		}
		out = append(out, st)
	}
	return out
}
