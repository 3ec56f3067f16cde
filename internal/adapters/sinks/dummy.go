package sinks

import (
	"context"

	"github.com/target/dataio-go/internal/domain/model"
)

// Dummy accepts every item without sending it anywhere. Items that did not process
// successfully are ignored rather than delivered.
type Dummy struct{}

// Deliver implements delivery.Adapter.
func (Dummy) Deliver(_ context.Context, chunk *model.ChunkResult) ([]model.Outcome, error) {
	out := make([]model.Outcome, len(chunk.Items))
	for i, it := range chunk.Items {
		out[i] = model.Outcome{ItemID: it.ItemID, Status: model.ItemSuccess}
		if it.Status != model.ItemSuccess {
			out[i].Status = model.ItemIgnore
			out[i].Diagnostic = "not delivered: processing " + string(it.Status)
		}
	}
	return out, nil
}
