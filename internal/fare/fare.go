// Package fare computes ride charges as a base amount followed by an ordered
// list of transform stages.
package fare

// BaseFare is charged on every completed ride before distance.
const BaseFare = 50.0

// Facts are the immutable ride facts a fare is derived from.
type Facts struct {
	Distance    float64
	FarePerUnit float64
}

// Base is BaseFare plus distance times the vehicle rate.
func Base(f Facts) float64 {
	return BaseFare + f.Distance*f.FarePerUnit
}

// Stage transforms the amount produced by the stages before it.
type Stage func(amount float64) float64

// Surge multiplies the running amount. Multipliers below 1 are treated as 1.
func Surge(multiplier float64) Stage {
	if multiplier < 1 {
		multiplier = 1
	}
	return func(amount float64) float64 { return amount * multiplier }
}

// Discount subtracts a flat amount and never goes below zero.
func Discount(amount float64) Stage {
	return func(v float64) float64 {
		v -= amount
		if v < 0 {
			return 0
		}
		return v
	}
}

// Pipeline applies Stages left to right over Base, exactly once each.
type Pipeline struct {
	Stages []Stage
}

func (p Pipeline) Calculate(f Facts) float64 {
	amount := Base(f)
	for _, s := range p.Stages {
		amount = s(amount)
	}
	return amount
}

// Then returns a copy of the pipeline with extra stages appended.
func (p Pipeline) Then(stages ...Stage) Pipeline {
	out := make([]Stage, 0, len(p.Stages)+len(stages))
	out = append(out, p.Stages...)
	return Pipeline{Stages: append(out, stages...)}
}

// Plan builds the completion-time pipeline: surge when active, then the rider's
// discount when there is one.
func Plan(surgeActive bool, multiplier, discount float64) Pipeline {
	var p Pipeline
	if surgeActive {
		p = p.Then(Surge(multiplier))
	}
	if discount > 0 {
		p = p.Then(Discount(discount))
	}
	return p
}
