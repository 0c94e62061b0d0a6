// Package simulate drives a dispatch.Service through a scripted city scenario
// and through a crowd of concurrent riders.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/matcher"
	"github.com/example/ride-dispatch/internal/models"
)

// Fleet is the driver roster the scenario starts with.
func Fleet() []models.Driver {
	return []models.Driver{
		{ID: "d1", Name: "Alice", Phone: "9999990001", Rating: 4.8,
			Vehicle:  models.Vehicle{Plate: "KA-01-1234", Category: models.CategorySedan, Capacity: 4, FarePerUnit: 15},
			Location: models.Location{Lat: 12.9716, Lon: 77.5946}},
		{ID: "d2", Name: "Bob", Phone: "9999990002", Rating: 4.9,
			Vehicle:  models.Vehicle{Plate: "KA-01-5678", Category: models.CategorySedan, Capacity: 4, FarePerUnit: 15},
			Location: models.Location{Lat: 12.9750, Lon: 77.5900}},
		{ID: "d3", Name: "Charlie", Phone: "9999990003", Rating: 4.7,
			Vehicle:  models.Vehicle{Plate: "KA-02-1122", Category: models.CategorySUV, Capacity: 6, FarePerUnit: 20},
			Location: models.Location{Lat: 12.9700, Lon: 77.6000}},
		{ID: "d4", Name: "Dave", Phone: "9999990004", Rating: 4.5,
			Vehicle:  models.Vehicle{Plate: "KA-02-3344", Category: models.CategoryAuto, Capacity: 3, FarePerUnit: 10},
			Location: models.Location{Lat: 12.9720, Lon: 77.5950}},
	}
}

// Scenario registers the fleet and two riders, runs a sedan ride that completes
// under 1.5x surge, switches to best-rated matching and runs an SUV ride.
func Scenario(ctx context.Context, svc *dispatch.Service, out io.Writer) error {
	for _, d := range Fleet() {
		if err := svc.RegisterDriver(d); err != nil {
			return err
		}
	}
	PrintAvailable(out, svc)

	eve := models.Rider{ID: "r1", Name: "Eve", Phone: "8888880001", Location: models.Location{Lat: 12.9725, Lon: 77.5930}}
	if err := svc.RegisterRider(eve); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n=== Rider %s requests a %s ride ===\n", eve.Name, models.CategorySedan)
	if err := runRide(ctx, svc, out, models.RideRequest{
		RiderID:  eve.ID,
		Pickup:   eve.Location,
		Drop:     models.Location{Lat: 12.9850, Lon: 77.5950},
		Category: models.CategorySedan,
	}, func() error {
		if err := svc.ActivateSurge(1.5); err != nil {
			return err
		}
		fmt.Fprintln(out, "\n--- Surge pricing activated (1.5x) ---")
		return nil
	}); err != nil {
		return err
	}
	PrintAvailable(out, svc)

	fmt.Fprintln(out, "\n--- Switching to best-rated matching ---")
	svc.SetMatchingStrategy(matcher.BestRated{})

	frank := models.Rider{ID: "r2", Name: "Frank", Phone: "8888880002", Location: models.Location{Lat: 12.9740, Lon: 77.5960}}
	if err := svc.RegisterRider(frank); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n=== Rider %s requests a %s ride ===\n", frank.Name, models.CategorySUV)
	if err := runRide(ctx, svc, out, models.RideRequest{
		RiderID:  frank.ID,
		Pickup:   frank.Location,
		Drop:     models.Location{Lat: 12.9800, Lon: 77.6000},
		Category: models.CategorySUV,
	}, nil); err != nil {
		return err
	}
	PrintAvailable(out, svc)
	return nil
}

// runRide requests a ride and walks it to completion; beforeComplete runs
// after the rider is picked up.
func runRide(ctx context.Context, svc *dispatch.Service, out io.Writer, req models.RideRequest, beforeComplete func() error) error {
	snap, err := svc.RequestRide(ctx, req)
	if err != nil {
		return err
	}
	if snap.Status == models.StatusCancelled {
		fmt.Fprintf(out, "No available drivers for Ride %s. Ride cancelled.\n", snap.ID)
		return nil
	}
	fmt.Fprintf(out, "Ride %s assigned to driver %s\n", snap.ID, snap.DriverID)
	for _, s := range []models.RideStatus{models.StatusEnRouteToPickup, models.StatusInProgress} {
		if _, err := svc.UpdateRideStatus(ctx, snap.ID, s); err != nil {
			return err
		}
	}
	if beforeComplete != nil {
		if err := beforeComplete(); err != nil {
			return err
		}
	}
	done, err := svc.CompleteRide(ctx, snap.ID)
	if err != nil && !errors.Is(err, dispatch.ErrPaymentFailed) {
		return err
	}
	fare := 0.0
	if done.Fare != nil {
		fare = *done.Fare
	}
	fmt.Fprintf(out, "Ride %s completed: fare %.2f, paid %t\n", done.ID, fare, done.Paid)
	return nil
}

func PrintAvailable(out io.Writer, svc *dispatch.Service) {
	fmt.Fprintln(out, "\n--- Available Drivers ---")
	for _, d := range svc.AvailableDrivers() {
		fmt.Fprintln(out, d)
	}
	fmt.Fprintln(out, "-------------------------")
}

// Stats counts crowd outcomes.
type Stats struct {
	Requested int64
	Matched   int64
	Unmatched int64
	Completed int64
}

var crowdCategories = []models.Category{models.CategorySedan, models.CategorySUV, models.CategoryAuto}

// Crowd registers n riders and has them request and complete rides concurrently,
// at most limit at a time. seed makes pickup points reproducible.
func Crowd(ctx context.Context, svc *dispatch.Service, n, limit int, seed uint64) (Stats, error) {
	var st Stats
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	reqs := make([]models.RideRequest, n)
	for i := range reqs {
		id := fmt.Sprintf("sim-%d", i+1)
		pickup := models.Location{Lat: 12.96 + rng.Float64()*0.03, Lon: 77.58 + rng.Float64()*0.03}
		if err := svc.RegisterRider(models.Rider{ID: id, Name: "Rider " + id, Location: pickup}); err != nil {
			return st, err
		}
		reqs[i] = models.RideRequest{
			RiderID:  id,
			Pickup:   pickup,
			Drop:     models.Location{Lat: pickup.Lat + 0.01, Lon: pickup.Lon + 0.01},
			Category: crowdCategories[rng.IntN(len(crowdCategories))],
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, req := range reqs {
		g.Go(func() error {
			atomic.AddInt64(&st.Requested, 1)
			snap, err := svc.RequestRide(ctx, req)
			if err != nil {
				return err
			}
			if snap.Status == models.StatusCancelled {
				atomic.AddInt64(&st.Unmatched, 1)
				return nil
			}
			atomic.AddInt64(&st.Matched, 1)
			for _, s := range []models.RideStatus{models.StatusEnRouteToPickup, models.StatusInProgress} {
				if _, err := svc.UpdateRideStatus(ctx, snap.ID, s); err != nil {
					return err
				}
			}
			if _, err := svc.CompleteRide(ctx, snap.ID); err != nil && !errors.Is(err, dispatch.ErrPaymentFailed) {
				return err
			}
			atomic.AddInt64(&st.Completed, 1)
			return nil
		})
	}
	err := g.Wait()
	return st, err
}
