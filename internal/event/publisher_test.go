package event

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recording struct {
	events []model.AttemptEvent
	err    error
}

func (r *recording) Publish(_ context.Context, evt model.AttemptEvent) error {
	r.events = append(r.events, evt)
	return r.err
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "attempt.submitted", RoutingKey(model.AttemptEventSubmitted))
	assert.Equal(t, "attempt.session_replaced", RoutingKey(model.AttemptEventSessionReplaced))
}

func TestFanoutDeliversToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("broker down")
	ok := &recording{}
	failing := &recording{err: boom}

	evt := model.AttemptEvent{Type: model.AttemptEventStarted, AttemptID: uuid.New()}
	err := Fanout{failing, nil, ok}.Publish(context.Background(), evt)

	require.ErrorIs(t, err, boom)
	assert.Len(t, ok.events, 1)
	assert.Len(t, failing.events, 1)
}

func TestDisabledAMQPPublisherDropsEvents(t *testing.T) {
	p, err := NewAMQPPublisher("", "attempt.events", zerolog.Nop())
	require.NoError(t, err)

	assert.NoError(t, p.Publish(context.Background(), model.AttemptEvent{Type: model.AttemptEventGraded}))
	assert.NoError(t, p.Close())
}
