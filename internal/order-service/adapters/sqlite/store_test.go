package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/ecommerce-orders/internal/order-service/domain"
)

func openTestStore(t *testing.T) *EventStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "orders.db"), domain.DefaultRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func placeOrder(t *testing.T) *domain.Order {
	t.Helper()
	item, err := domain.NewOrderItem("sku-1", 2, decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	address, err := domain.NewAddress("Main St", "10", "", "Springfield", "SP", "12345")
	require.NoError(t, err)
	payment, err := domain.NewPaymentDetails("", "credit-card", 1, decimal.Zero)
	require.NoError(t, err)
	shipping, err := domain.NewShippingDetails("", "ACME", "EXPRESS", decimal.Zero)
	require.NoError(t, err)

	order, err := domain.NewOrder(domain.NewOrderParams{
		CustomerID:      "customer-1",
		Items:           []domain.OrderItem{item},
		ShippingAddress: address,
		PaymentDetails:  payment,
		ShippingDetails: shipping,
		TraceID:         "trace-1",
	})
	require.NoError(t, err)
	return order
}

func shippingCost(id domain.OrderID, version int64, cost string) domain.ShippingCostCalculated {
	return domain.ShippingCostCalculated{
		EventMeta: domain.NewExternalEventMeta(string(id), domain.EventTypeShippingCostCalculated, version, "shipping", "trace-2"),
		ShippingDetails: domain.ShippingDetails{
			ShippingCompany: "ACME",
			ShippingType:    "EXPRESS",
			Cost:            decimal.RequireFromString(cost),
		},
	}
}

func load(t *testing.T, store *EventStore, id domain.OrderID) *domain.Order {
	t.Helper()
	events, err := store.LoadEvents(context.Background(), id)
	require.NoError(t, err)
	order, err := domain.Reconstruct(events)
	require.NoError(t, err)
	return order
}

func TestSaveAndLoadEvents(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	order := placeOrder(t)

	require.NoError(t, store.Save(ctx, order))

	events, err := store.LoadEvents(ctx, order.ID())
	require.NoError(t, err)
	require.Len(t, events, 1)
	created, ok := events[0].(domain.OrderCreationInitiated)
	require.True(t, ok)
	assert.Equal(t, order.PendingEvents()[0].Meta().EventID, created.EventID)
	assert.Equal(t, "customer-1", created.CustomerID)

	stored := load(t, store, order.ID())
	assert.True(t, decimal.RequireFromString("20.00").Equal(stored.TotalAmount()))
	assert.Equal(t, int64(0), stored.Version())

	pending, err := store.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, created.EventID, pending[0].EventID)
	assert.Equal(t, domain.EventTypeOrderCreationInitiated, pending[0].EventType)
	assert.Equal(t, string(order.ID()), pending[0].AggregateID)
	assert.Equal(t, "trace-1", pending[0].TraceID)
	assert.True(t, created.OccurredOn.Equal(pending[0].OccurredOn))
}

func TestLoadEventsOfUnknownOrder(t *testing.T) {
	events, err := openTestStore(t).LoadEvents(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSaveWithoutPendingEventsIsNoop(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	order := placeOrder(t)
	require.NoError(t, store.Save(ctx, order.ClearPendingEvents()))

	events, err := store.LoadEvents(ctx, order.ID())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSaveAppendsNextVersion(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	order := placeOrder(t)
	require.NoError(t, store.Save(ctx, order))

	next, err := load(t, store, order.ID()).HandleShippingCostCalculated(shippingCost(order.ID(), 0, "2.00"))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, next))

	stored := load(t, store, order.ID())
	assert.Equal(t, int64(1), stored.Version())
	assert.Equal(t, domain.StatusShippingCalculated, stored.Status())
	assert.True(t, decimal.RequireFromString("22.00").Equal(stored.TotalAmount()))

	summary, err := store.OutboxSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary[OutboxPending])
}

func TestSaveRejectsStaleWriter(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	order := placeOrder(t)
	require.NoError(t, store.Save(ctx, order))

	base := load(t, store, order.ID())
	first, err := base.HandleShippingCostCalculated(shippingCost(order.ID(), 0, "2.00"))
	require.NoError(t, err)
	second, err := base.HandleShippingCostCalculated(shippingCost(order.ID(), 0, "3.00"))
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, first))
	err = store.Save(ctx, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEventStore)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	stored := load(t, store, order.ID())
	assert.True(t, decimal.RequireFromString("22.00").Equal(stored.TotalAmount()))

	pending, err := store.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2, "the rejected save must not leave outbox rows behind")
}

func TestSaveRejectsGapInHistory(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	order := placeOrder(t)
	require.NoError(t, store.Save(ctx, order))

	ahead, err := load(t, store, order.ID()).HandleShippingCostCalculated(shippingCost(order.ID(), 5, "2.00"))
	require.NoError(t, err)
	err = store.Save(ctx, ahead)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}

func TestConcurrentSavesNeverBothSucceed(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	order := placeOrder(t)
	require.NoError(t, store.Save(ctx, order))
	base := load(t, store, order.ID())

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		candidate, err := base.HandleShippingCostCalculated(shippingCost(order.ID(), 0, "1.00"))
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Save(ctx, candidate)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrConcurrencyConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, conflicts)
	events, err := store.LoadEvents(ctx, order.ID())
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestLoadEventsFailsOnUnknownKind(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	order := placeOrder(t)
	require.NoError(t, store.Save(ctx, order))

	_, err := store.db.ExecContext(ctx, `
		INSERT INTO events (event_id, event_type, decode_target, aggregate_id, aggregate_version, occurred_on, payload)
		VALUES ('legacy-1', 'OrderRenamedEvent', 'order.OrderRenamed/v0', ?, 1, '2026-01-01T00:00:00Z', '{}')`,
		string(order.ID()))
	require.NoError(t, err)

	_, err = store.LoadEvents(ctx, order.ID())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEventStore)
	assert.ErrorIs(t, err, domain.ErrUnknownEventKind)
}

func TestLoadEventsFailsOnCorruptPayload(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.db.ExecContext(ctx, `
		INSERT INTO events (event_id, event_type, decode_target, aggregate_id, aggregate_version, occurred_on, payload)
		VALUES ('broken-1', ?, 'order.OrderCreationInitiated/v1', 'order-x', 0, '2026-01-01T00:00:00Z', '{not json')`,
		domain.EventTypeOrderCreationInitiated)
	require.NoError(t, err)

	_, err = store.LoadEvents(ctx, "order-x")
	assert.ErrorIs(t, err, ErrEventStore)
}

func TestOutboxLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	first, second := placeOrder(t), placeOrder(t)
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	pending, err := store.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, string(first.ID()), pending[0].AggregateID)

	require.NoError(t, store.MarkOutboxPublished(ctx, pending[0].EventID))
	require.NoError(t, store.MarkOutboxFailed(ctx, pending[1].EventID, errors.New("broker down"), 2))

	pending, err = store.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)

	require.NoError(t, store.MarkOutboxFailed(ctx, pending[0].EventID, errors.New("broker down"), 2))
	summary, err := store.OutboxSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[OutboxStatus]int{OutboxPending: 0, OutboxPublished: 1, OutboxFailed: 1}, summary)
}

func TestSaveDuplicateEventIDIsNotAConflict(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	order := placeOrder(t)
	meta := order.PendingEvents()[0].Meta()

	_, err := store.db.ExecContext(ctx, `
		INSERT INTO events (event_id, event_type, decode_target, aggregate_id, aggregate_version, occurred_on, payload)
		VALUES (?, ?, 'x', 'another-order', 0, '2026-01-01T00:00:00Z', '{}')`,
		meta.EventID, meta.EventType)
	require.NoError(t, err)

	err = store.Save(ctx, order)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEventStore)
	assert.NotErrorIs(t, err, ErrConcurrencyConflict)
	assert.Contains(t, err.Error(), meta.EventID)
}
