package mocks

import (
	"context"
	"time"

	"github.com/FahadIshaq/scanback-backend/internal/domain/contact"
	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
	"github.com/FahadIshaq/scanback-backend/internal/notify"
	"github.com/stretchr/testify/mock"
)

// RecordStore is a mock for tag.RecordStore.
type RecordStore struct {
	mock.Mock
}

func (m *RecordStore) FindByCode(ctx context.Context, code string) (*tag.Record, error) {
	args := m.Called(ctx, code)
	if rec, ok := args.Get(0).(*tag.Record); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordStore) FindPublicByCode(ctx context.Context, code string) (*tag.PublicView, error) {
	args := m.Called(ctx, code)
	if view, ok := args.Get(0).(*tag.PublicView); ok {
		return view, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordStore) Insert(ctx context.Context, rec *tag.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *RecordStore) UpdateByCode(ctx context.Context, code string, mut tag.Mutation) (*tag.Record, error) {
	args := m.Called(ctx, code, mut)
	if rec, ok := args.Get(0).(*tag.Record); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordStore) List(ctx context.Context, opts tag.ListOptions) ([]tag.Summary, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]tag.Summary); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// CodeGenerator is a mock for tag.CodeGenerator.
type CodeGenerator struct {
	mock.Mock
}

func (m *CodeGenerator) NewCode() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

// Invalidator is a mock for tag.Invalidator.
type Invalidator struct {
	mock.Mock
}

func (m *Invalidator) Invalidate(code string) {
	m.Called(code)
}

// EventPublisher is a mock for tag.EventPublisher.
type EventPublisher struct {
	mock.Mock
}

func (m *EventPublisher) Publish(ctx context.Context, evt tag.Event) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

// PendingStore is a mock for contact.PendingStore.
type PendingStore struct {
	mock.Mock
}

func (m *PendingStore) Put(ctx context.Context, p contact.PendingUpdate) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *PendingStore) Get(ctx context.Context, code string) (*contact.PendingUpdate, error) {
	args := m.Called(ctx, code)
	if p, ok := args.Get(0).(*contact.PendingUpdate); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *PendingStore) Consume(ctx context.Context, code, id string) error {
	args := m.Called(ctx, code, id)
	return args.Error(0)
}

func (m *PendingStore) IncrementAttempts(ctx context.Context, code, id string) (int, error) {
	args := m.Called(ctx, code, id)
	return args.Int(0), args.Error(1)
}

func (m *PendingStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

// DeliveryLog is a mock for notify.DeliveryLog.
type DeliveryLog struct {
	mock.Mock
}

func (m *DeliveryLog) Record(ctx context.Context, d *notify.Delivery) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *DeliveryLog) List(ctx context.Context, opts notify.ListOptions) ([]notify.Delivery, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]notify.Delivery); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}
