package fulfill

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolbot/internal/catalog"
)

type fakeStore struct {
	pending     []catalog.Request
	completed   []int64
	completeErr map[int64]error
}

func (f *fakeStore) ListPendingMatching(_ context.Context, key catalog.Key) ([]catalog.Request, error) {
	var out []catalog.Request
	for _, r := range f.pending {
		if r.Key() == key && r.IsPending() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) CompleteRequest(_ context.Context, id int64) error {
	if err, ok := f.completeErr[id]; ok {
		return err
	}
	f.completed = append(f.completed, id)
	return nil
}

type fakeNotifier struct {
	notified []int64
	failFor  map[int64]error
}

func (f *fakeNotifier) NotifyFulfilled(_ context.Context, req catalog.Request, _ catalog.Material) error {
	if err, ok := f.failFor[req.RequesterID]; ok {
		return err
	}
	f.notified = append(f.notified, req.RequesterID)
	return nil
}

func pendingReq(id, requester int64, key catalog.Key) catalog.Request {
	return catalog.Request{
		ID: id, RequesterID: requester, Status: catalog.StatusPending,
		Grade: key.Grade, Subject: key.Subject, Category: key.Category, Topic: key.Topic,
	}
}

var matKey = catalog.Key{Grade: 9, Subject: "Физика", Category: "Конспекты", Topic: "Законы Ньютона"}

func matMaterial() catalog.Material {
	return catalog.Material{
		ID: 42, Grade: matKey.Grade, Subject: matKey.Subject,
		Category: matKey.Category, Topic: matKey.Topic,
	}
}

func TestResolveCompletesOnlyMatching(t *testing.T) {
	other := matKey
	other.Topic = "Оптика"
	store := &fakeStore{pending: []catalog.Request{
		pendingReq(1, 100, matKey),
		pendingReq(2, 101, matKey),
		pendingReq(3, 102, other),
		pendingReq(4, 103, matKey),
	}}
	notifier := &fakeNotifier{}

	n, err := New(store, notifier, nil).Resolve(context.Background(), matMaterial())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int64{1, 2, 4}, store.completed)
	assert.Equal(t, []int64{100, 101, 103}, notifier.notified)
}

func TestResolveNotifyFailureDoesNotRollBack(t *testing.T) {
	store := &fakeStore{pending: []catalog.Request{
		pendingReq(1, 100, matKey),
		pendingReq(2, 101, matKey),
	}}
	notifier := &fakeNotifier{failFor: map[int64]error{100: errors.New("blocked by user")}}

	n, report, err := New(store, notifier, nil).ResolveReport(context.Background(), matMaterial())
	require.NoError(t, err)
	assert.Equal(t, 2, n, "delivery failure must not undo completion")
	assert.Equal(t, []int64{1, 2}, store.completed)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, int64(1), failed[0].RequestID)
	assert.Equal(t, int64(100), failed[0].RequesterID)
}

func TestResolveSkipsAlreadyCompleted(t *testing.T) {
	store := &fakeStore{
		pending: []catalog.Request{
			pendingReq(1, 100, matKey),
			pendingReq(2, 101, matKey),
		},
		completeErr: map[int64]error{1: catalog.ErrNotFound},
	}
	notifier := &fakeNotifier{}

	n, err := New(store, notifier, nil).Resolve(context.Background(), matMaterial())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{101}, notifier.notified)
}

func TestResolveNilNotifier(t *testing.T) {
	store := &fakeStore{pending: []catalog.Request{pendingReq(1, 100, matKey)}}

	n, err := New(store, nil, nil).Resolve(context.Background(), matMaterial())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
