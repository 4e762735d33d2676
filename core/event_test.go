package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leandroluk/golem-odm/core"
)

func subscribeAll(events ...core.Event) <-chan core.EventPayload {
	received := make(chan core.EventPayload, 16)
	for _, event := range events {
		core.Subscribe(event, func(payload core.EventPayload) {
			received <- payload
		})
	}
	return received
}

func nextEvent(t *testing.T, received <-chan core.EventPayload) core.EventPayload {
	t.Helper()
	select {
	case payload := <-received:
		return payload
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	return core.EventPayload{}
}

func TestEventsFollowEntityWrites(t *testing.T) {
	reset(t)
	m, _ := newModel(t, core.Define("Order"))
	ctx := context.Background()
	received := subscribeAll(core.EventInsert, core.EventUpdate, core.EventDelete)

	order, err := m.Create(ctx, map[string]any{"status": "open"})
	require.NoError(t, err)
	inserted := nextEvent(t, received)
	assert.Equal(t, core.EventInsert, inserted.Event)
	assert.Equal(t, "Order", inserted.Schema.Name)
	assert.Same(t, order, inserted.Entity)

	order.Set("status", "paid")
	_, err = m.Save(ctx, order)
	require.NoError(t, err)
	updated := nextEvent(t, received)
	assert.Equal(t, core.EventUpdate, updated.Event)
	assert.Same(t, order, updated.Entity)

	_, err = m.Delete(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, core.EventDelete, nextEvent(t, received).Event)
}

func TestEventsFollowBulkWrites(t *testing.T) {
	reset(t)
	m, _ := newModel(t, core.Define("Order"))
	ctx := context.Background()
	_, err := m.CreateMany(ctx, []map[string]any{{"status": "open"}, {"status": "open"}, {"status": "paid"}})
	require.NoError(t, err)
	received := subscribeAll(core.EventUpdate, core.EventDelete)

	_, err = m.Query().Where("status", "open").Update(ctx, map[string]any{"status": "late"})
	require.NoError(t, err)
	updated := nextEvent(t, received)
	assert.Equal(t, core.EventUpdate, updated.Event)
	assert.Equal(t, int64(2), updated.Count)
	assert.Nil(t, updated.Entity)

	_, err = m.Query().Where("status", "paid").Delete(ctx)
	require.NoError(t, err)
	deleted := nextEvent(t, received)
	assert.Equal(t, core.EventDelete, deleted.Event)
	assert.Equal(t, int64(1), deleted.Count)
}

func TestEventsFollowReads(t *testing.T) {
	reset(t)
	m, _ := newModel(t, core.Define("Order"))
	ctx := context.Background()
	_, err := m.CreateMany(ctx, []map[string]any{{"status": "open"}, {"status": "paid"}})
	require.NoError(t, err)
	received := subscribeAll(core.EventFind)

	_, err = m.Query().Fetch(ctx)
	require.NoError(t, err)
	assert.Len(t, nextEvent(t, received).Results, 2)

	first, err := m.Query().Where("status", "paid").First(ctx)
	require.NoError(t, err)
	found := nextEvent(t, received)
	assert.Same(t, first, found.Entity)
	assert.Len(t, found.Results, 1)
}

func TestResetSubscribers(t *testing.T) {
	reset(t)
	m, _ := newModel(t, core.Define("Order"))
	received := subscribeAll(core.EventInsert)
	core.ResetSubscribers()

	_, err := m.Create(context.Background(), map[string]any{"status": "open"})
	require.NoError(t, err)
	select {
	case <-received:
		t.Fatal("handler ran after reset")
	case <-time.After(50 * time.Millisecond):
	}
}
