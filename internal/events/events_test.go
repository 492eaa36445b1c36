package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	pubErr   error
	flushErr error
	drained  bool
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) FlushWithContext(context.Context) error { return f.flushErr }

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func TestEventSubject(t *testing.T) {
	e := Event{Kind: GameCompleted, Channel: "dots-and-boxes"}
	assert.Equal(t, "games.dots-and-boxes.completed", e.Subject())
}

func TestNATSPublisherPublish(t *testing.T) {
	fc := &fakeConn{}
	p := &NATSPublisher{nc: fc}

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := p.Publish(context.Background(), Event{
		Kind:    GameCreated,
		Channel: "tic-tac-toe",
		GameID:  "g1",
		UserIDs: []string{"a", "b"},
		At:      at,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"games.tic-tac-toe.created"}, fc.subjects)

	var got Event
	require.NoError(t, json.Unmarshal(fc.payloads[0], &got))
	assert.Equal(t, "g1", got.GameID)
	assert.Equal(t, []string{"a", "b"}, got.UserIDs)
	assert.Empty(t, got.Winner)
	assert.True(t, at.Equal(got.At))

	require.NoError(t, p.Close())
	assert.True(t, fc.drained)
}

func TestNATSPublisherErrors(t *testing.T) {
	boom := errors.New("boom")

	p := &NATSPublisher{nc: &fakeConn{pubErr: boom}}
	assert.ErrorIs(t, p.Publish(context.Background(), Event{Kind: GameCreated}), boom)

	p = &NATSPublisher{nc: &fakeConn{flushErr: boom}}
	assert.ErrorIs(t, p.Publish(context.Background(), Event{Kind: GameCreated}), boom)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}
