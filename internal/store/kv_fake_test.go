package store

import (
	"context"
	"errors"
	"sync"
)

// fakeKV es un KV en memoria sólo para tests.
type fakeKV struct {
	mu   sync.Mutex
	data map[string]string

	failReads  bool
	failWrites bool
	setCalls   int
}

var errFakeIO = errors.New("fake kv: io error")

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return "", errFakeIO
	}
	v, ok := f.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *fakeKV) SetAll(_ context.Context, pairs map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errFakeIO
	}
	f.setCalls++
	for k, v := range pairs {
		f.data[k] = v
	}
	return nil
}

func (f *fakeKV) GetAll(_ context.Context, keys ...string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return nil, errFakeIO
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := f.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}
