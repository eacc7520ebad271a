package learning

import (
	"sync/atomic"

	domweights "github.com/kailas-cloud/scoutdex/internal/domain/weights"
	"github.com/kailas-cloud/scoutdex/internal/metrics"
)

// Holder publishes the active ranking weights generation. Readers always
// see a complete generation, publication is one atomic pointer swap.
type Holder struct {
	current atomic.Pointer[domweights.Weights]
}

// NewHolder creates a holder seeded with the given generation.
func NewHolder(initial domweights.Weights) *Holder {
	h := &Holder{}
	h.Publish(initial)
	return h
}

// Current returns the active generation.
func (h *Holder) Current() domweights.Weights {
	return *h.current.Load()
}

// Publish swaps the active generation.
func (h *Holder) Publish(w domweights.Weights) {
	h.current.Store(&w)
	metrics.WeightsGeneration.Set(float64(w.Generation()))
}
