package sngraz

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Installation is one customer site, usually an apartment or a building.
// Its meters are fixed at construction.
type Installation struct {
	id                 int
	customerID         int
	customerNumber     int
	installationNumber int
	address            string
	meters             map[int]*Meter
}

func newInstallation(rec installationRecord, session *Session) *Installation {
	inst := &Installation{
		id:                 rec.InstallationID,
		customerID:         rec.CustomerID,
		customerNumber:     rec.CustomerNumber,
		installationNumber: rec.InstallationNumber,
		address:            rec.Address,
		meters:             make(map[int]*Meter, len(rec.MeterPoints)),
	}
	for _, mp := range rec.MeterPoints {
		if mp.MeterPointID == 0 {
			continue
		}
		inst.meters[mp.MeterPointID] = newMeter(mp, rec.InstallationID, session)
	}
	return inst
}

// ID is the installation id used in API requests.
func (i *Installation) ID() int { return i.id }

// CustomerID is the internal id of the customer owning the installation.
func (i *Installation) CustomerID() int { return i.customerID }

// CustomerNumber is the customer number printed on invoices.
func (i *Installation) CustomerNumber() int { return i.customerNumber }

// InstallationNumber is the installation number printed on invoices.
func (i *Installation) InstallationNumber() int { return i.installationNumber }

// Address is the postal address of the installation.
func (i *Installation) Address() string { return i.address }

// FetchConsumption fetches consumption for all meters concurrently and waits
// for every one of them.
func (i *Installation) FetchConsumption(ctx context.Context, days int) error {
	var g errgroup.Group
	for _, m := range i.Meters() {
		g.Go(func() error {
			return m.FetchConsumption(ctx, days)
		})
	}
	return g.Wait()
}

// MeterIDs returns the meter ids in ascending order.
func (i *Installation) MeterIDs() []int {
	ids := make([]int, 0, len(i.meters))
	for id := range i.meters {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Meters returns the meters ordered by id.
func (i *Installation) Meters() []*Meter {
	res := make([]*Meter, 0, len(i.meters))
	for _, id := range i.MeterIDs() {
		res = append(res, i.meters[id])
	}
	return res
}

// Meter looks up a meter by id.
func (i *Installation) Meter(id int) (*Meter, error) {
	m, ok := i.meters[id]
	if !ok {
		return nil, fmt.Errorf("%w: meter %d in installation %d", ErrNotFound, id, i.id)
	}
	return m, nil
}
