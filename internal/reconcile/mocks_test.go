package reconcile

import (
	"context"
	"errors"
	"sync"

	"github.com/ryanfigueredo/mercadito-sub000/internal/model"
	"github.com/ryanfigueredo/mercadito-sub000/internal/store"
)

type fakeOrders struct {
	mu     sync.Mutex
	orders map[string]*model.Order
	// beforeUpdate runs once per UpdateStatus call, before the version check.
	beforeUpdate func(o *model.Order)
	updates      int
}

func newFakeOrders(orders ...*model.Order) *fakeOrders {
	f := &fakeOrders{orders: map[string]*model.Order{}}
	for _, o := range orders {
		if o.Version == 0 {
			o.Version = 1
		}
		f.orders[o.ID] = o
	}
	return f
}

func (f *fakeOrders) Get(_ context.Context, id string) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) FindByProviderRef(_ context.Context, provider, ref string) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.ProviderName == provider && ref != "" && (o.ProviderSessionID == ref || o.ProviderChargeID == ref) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id string, version int64, status model.OrderStatus, chargeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return store.ErrNotFound
	}
	if f.beforeUpdate != nil {
		f.beforeUpdate(o)
	}
	f.updates++
	if o.Version != version {
		return store.ErrConcurrencyConflict
	}
	o.Status = status
	o.Version++
	if chargeID != "" && o.ProviderChargeID == "" {
		o.ProviderChargeID = chargeID
	}
	return nil
}

func (f *fakeOrders) status(id string) model.OrderStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id].Status
}

type call struct {
	effect string
	kind   model.NotificationKind
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []call
	fail  map[string]error
	panic string
}

func (d *recordingDispatcher) record(effect string, kind model.NotificationKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call{effect: effect, kind: kind})
	if d.panic == effect {
		panic("boom")
	}
	return d.fail[effect]
}

func (d *recordingDispatcher) RestoreStock(_ context.Context, _ *model.Order) error {
	return d.record("restore_stock", "")
}

func (d *recordingDispatcher) Notify(_ context.Context, _ string, kind model.NotificationKind, _ string) error {
	return d.record("notify", kind)
}

func (d *recordingDispatcher) ForwardSale(_ context.Context, _ *model.Order) error {
	return d.record("forward_sale", "")
}

func (d *recordingDispatcher) count(effect string, kind model.NotificationKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c.effect == effect && c.kind == kind {
			n++
		}
	}
	return n
}

var errDownstream = errors.New("downstream unreachable")
