package sngraz

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const installationsPath = "getInstallations"

// Account is the root handle for one portal user. It owns the installations
// returned by the server.
type Account struct {
	session *Session
	logger  *zap.Logger

	mu            sync.RWMutex
	installations map[int]*Installation
}

// New creates an Account for the given credentials. No request is made until
// Refresh or Session().Authenticate is called.
func New(username, password string, opts ...Option) (*Account, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if err := o.finish(); err != nil {
		return nil, err
	}

	o.logger.Debug("client configured", zap.Stringer("options", o))
	return &Account{
		session:       newSession(username, password, o),
		logger:        o.logger,
		installations: make(map[int]*Installation),
	}, nil
}

// Session returns the authenticated channel the account queries through.
func (a *Account) Session() *Session {
	return a.session
}

// Query issues an authenticated request. See Session.Query.
func (a *Account) Query(ctx context.Context, path string, payload any) (*Response, error) {
	return a.session.Query(ctx, path, payload)
}

// Close releases idle connections held by the transport.
func (a *Account) Close() {
	if c, ok := a.session.client.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

// Refresh lists the installations and replaces the entry for every id the
// server returns. Installations missing from the response are kept.
func (a *Account) Refresh(ctx context.Context) error {
	resp, err := a.session.Query(ctx, installationsPath, struct{}{})
	if err != nil {
		return fmt.Errorf("failed to list installations: %w", err)
	}

	switch resp.Kind {
	case KindNone:
		a.logger.Warn("installation list unavailable", zap.Int("status", resp.StatusCode))
		return nil
	case KindError:
		return fmt.Errorf("%w: failed to list installations: %s", ErrProtocol, resp.Message)
	case KindObject:
		return fmt.Errorf("%w: expected installation list, got object", ErrProtocol)
	}

	var records []installationRecord
	if err := resp.Decode(&records); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rec := range records {
		if rec.InstallationID == 0 {
			continue
		}
		a.installations[rec.InstallationID] = newInstallation(rec, a.session)
	}

	a.logger.Debug("installations refreshed", zap.Int("count", len(a.installations)))
	return nil
}

// FetchConsumption fetches the last days of consumption for every meter of
// every installation concurrently. It waits for all of them and returns the
// first error.
func (a *Account) FetchConsumption(ctx context.Context, days int) error {
	var g errgroup.Group
	for _, inst := range a.Installations() {
		g.Go(func() error {
			return inst.FetchConsumption(ctx, days)
		})
	}
	return g.Wait()
}

// InstallationIDs returns the known installation ids in ascending order.
func (a *Account) InstallationIDs() []int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ids := make([]int, 0, len(a.installations))
	for id := range a.installations {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Installations returns the known installations ordered by id.
func (a *Account) Installations() []*Installation {
	ids := a.InstallationIDs()

	a.mu.RLock()
	defer a.mu.RUnlock()
	res := make([]*Installation, 0, len(ids))
	for _, id := range ids {
		if inst, ok := a.installations[id]; ok {
			res = append(res, inst)
		}
	}
	return res
}

// Installation looks up an installation by id.
func (a *Account) Installation(id int) (*Installation, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	inst, ok := a.installations[id]
	if !ok {
		return nil, fmt.Errorf("%w: installation %d", ErrNotFound, id)
	}
	return inst, nil
}
