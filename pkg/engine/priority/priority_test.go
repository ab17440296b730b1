package priority

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/engine/registry"
)

func candidate(name string, vendor engine.Vendor, prio engine.Priority) registry.Candidate {
	return registry.Candidate{
		Name: name,
		Descriptor: engine.RunnerDescriptor{
			Name:     name,
			Vendor:   vendor,
			Priority: prio,
		},
	}
}

func TestScore(t *testing.T) {
	assert.Equal(t, 0, Score(candidate("a", engine.VendorMediatek, engine.PriorityHigh).Descriptor))
	assert.Equal(t, 21, Score(candidate("a", engine.VendorSherpa, engine.PriorityNormal).Descriptor))
	assert.Equal(t, 62, Score(candidate("a", engine.VendorUnknown, engine.PriorityLow).Descriptor))
}

func TestResolve_LowestScoreWins(t *testing.T) {
	candidates := []registry.Candidate{
		candidate("beta", engine.VendorOpenRouter, engine.PriorityHigh),
		candidate("alpha", engine.VendorMediatek, engine.PriorityNormal),
	}
	got := Resolve(candidates)
	assert.Equal(t, "alpha", got.Name)
}

func TestResolve_TieBreaksByNameAscending(t *testing.T) {
	candidates := []registry.Candidate{
		candidate("zeta", engine.VendorMediatek, engine.PriorityNormal),
		candidate("alpha", engine.VendorMediatek, engine.PriorityNormal),
		candidate("mu", engine.VendorMediatek, engine.PriorityNormal),
	}
	got := Resolve(candidates)
	assert.Equal(t, "alpha", got.Name)
}

func TestResolve_SingleCandidate(t *testing.T) {
	candidates := []registry.Candidate{candidate("solo", engine.VendorCustom, engine.PriorityLow)}
	assert.Equal(t, "solo", Resolve(candidates).Name)
}

func TestResolve_PanicsOnEmpty(t *testing.T) {
	assert.Panics(t, func() { Resolve(nil) })
}

func TestSortByScore_OrdersBestFirst(t *testing.T) {
	candidates := []registry.Candidate{
		candidate("slow", engine.VendorLlamaStack, engine.PriorityLow),
		candidate("fast", engine.VendorMediatek, engine.PriorityHigh),
		candidate("mid", engine.VendorExecuTorch, engine.PriorityNormal),
	}
	sorted := SortByScore(candidates)
	names := []string{sorted[0].Name, sorted[1].Name, sorted[2].Name}
	assert.Equal(t, []string{"fast", "mid", "slow"}, names)
}

func TestSortByScore_DoesNotMutateInput(t *testing.T) {
	candidates := []registry.Candidate{
		candidate("b", engine.VendorSherpa, engine.PriorityNormal),
		candidate("a", engine.VendorMediatek, engine.PriorityHigh),
	}
	_ = SortByScore(candidates)
	assert.Equal(t, "b", candidates[0].Name)
}
