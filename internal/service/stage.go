package service

import (
	"context"
	"errors"

	"github.com/target/dataio-go/internal/domain/state"
	"github.com/target/dataio-go/internal/domain/transform"
	apperrors "github.com/target/dataio-go/internal/errors"
	"github.com/target/dataio-go/internal/messaging"
)

// Stage names used for message sources, metrics and failure notifications.
const (
	StagePartitioner = "partitioner"
	StageProcessor   = "processor"
	StageSink        = "sink"
	StageRecorder    = "recorder"
)


// stageError decides whether a state store error is worth a redelivery. Missing
// records, rejected input and state rules violations are final; conflicts are retried
// because exhausted version retries surface as conflicts too.
func stageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, messaging.ErrFatal):
		return err
	case errors.Is(err, state.ErrPhaseOrderingViolation),
		errors.Is(err, state.ErrInvalidStateChange),
		errors.Is(err, transform.ErrInvalidFlow),
		apperrors.IsNotFound(err),
		apperrors.IsValidation(err),
		apperrors.IsForeignKey(err):
		return messaging.Fatal(err)
	default:
		return err
	}
}

// publishFrom publishes body with the stage as message source.
func publishFrom(ctx context.Context, t messaging.Transport, stage string, pt messaging.PayloadType, resource string, body any) error {
	_, err := messaging.Publish(ctx, t, messaging.Headers{
		Source:      stage,
		PayloadType: pt,
		Resource:    resource,
	}, body)
	return err
}
