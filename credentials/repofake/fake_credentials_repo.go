package repofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-telemed-client/credentials"
)

var _ credentials.Repo = (*FakeCredentialsRepo)(nil)

// FakeCredentialsRepo keeps the record in memory. It doubles as the SESSION
// scope repo: its contents die with the process.
type FakeCredentialsRepo struct {
	record *credentials.Record
	lock   sync.RWMutex

	// Fail, when set, is returned by every operation
	Fail error
}

func NewFakeCredentialsRepo() *FakeCredentialsRepo {
	return &FakeCredentialsRepo{}
}

func (r *FakeCredentialsRepo) Save(_ context.Context, record credentials.Record) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	r.record = &record
	return nil
}

func (r *FakeCredentialsRepo) Load(_ context.Context) (credentials.Record, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.Fail != nil {
		return credentials.Record{}, r.Fail
	}
	if r.record == nil {
		return credentials.Record{}, credentials.ErrNotFound
	}
	return *r.record, nil
}

func (r *FakeCredentialsRepo) Delete(_ context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	r.record = nil
	return nil
}

// Stored reports whether a record is held (test helper).
func (r *FakeCredentialsRepo) Stored() bool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.record != nil
}
