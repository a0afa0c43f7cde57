package handler

import (
	"context"
	"sync"

	"github.com/huijing/sgtechonline/internal/domain"
	"github.com/huijing/sgtechonline/internal/layout"
)

type fakeCoordinator struct {
	mu        sync.Mutex
	current   domain.BroadcastSession
	starts    int
	startErr  error
	layoutErr error
	endErr    error
	watchers  map[int]func(domain.BroadcastSession)
	nextWatch int
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{
		current:  domain.WaitingSession(),
		watchers: make(map[int]func(domain.BroadcastSession)),
	}
}

func (f *fakeCoordinator) Start(ctx context.Context, binding string, streams int, rtmp *domain.RTMPTarget) (*domain.BroadcastSession, error) {
	f.mu.Lock()
	f.starts++
	if f.startErr != nil {
		f.mu.Unlock()
		return nil, f.startErr
	}
	if f.current.IsActive() && f.current.BindingSessionID == binding {
		defer f.mu.Unlock()
		return f.current.Clone(), nil
	}
	f.current = domain.BroadcastSession{
		ID:               "b-1",
		BindingSessionID: binding,
		Status:           domain.BroadcastStatusActive,
		StreamCount:      streams,
		Layout:           layout.ForStreams(streams),
		RTMP:             rtmp.Enabled(),
		HLSURL:           "https://cdn.example.com/b-1.m3u8",
		CreatedAt:        1000,
		AvailableAt:      21000,
	}
	started := *f.current.Clone()
	f.mu.Unlock()

	f.notify(started)
	return started.Clone(), nil
}

func (f *fakeCoordinator) UpdateLayout(ctx context.Context, streams int) (*domain.LayoutUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.layoutErr != nil {
		return nil, f.layoutErr
	}
	if !f.current.IsActive() {
		return nil, domain.ErrNoActiveBroadcast
	}
	return &domain.LayoutUpdate{ID: f.current.ID, Streams: streams, Layout: layout.ForStreams(streams)}, nil
}

func (f *fakeCoordinator) End(ctx context.Context) (*domain.EndBroadcastResponse, error) {
	f.mu.Lock()
	if !f.current.IsActive() {
		f.mu.Unlock()
		return nil, domain.ErrNoActiveBroadcast
	}
	ended := domain.EndedSession(f.current.BindingSessionID, f.current.ID)
	f.current = domain.WaitingSession()
	err := f.endErr
	f.mu.Unlock()

	f.notify(ended)
	if err != nil {
		return nil, err
	}
	return &domain.EndBroadcastResponse{ID: ended.ID, Status: domain.BroadcastStatusEnded}, nil
}

func (f *fakeCoordinator) Current() domain.BroadcastSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.current.Clone()
}

func (f *fakeCoordinator) Watch(fn func(domain.BroadcastSession)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextWatch
	f.nextWatch++
	f.watchers[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.watchers, id)
	}
}

func (f *fakeCoordinator) notify(s domain.BroadcastSession) {
	f.mu.Lock()
	fns := make([]func(domain.BroadcastSession), 0, len(f.watchers))
	for _, fn := range f.watchers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (f *fakeCoordinator) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}
