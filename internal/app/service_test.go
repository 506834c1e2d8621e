package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/pitchside/internal/adapters/location"
	"github.com/okian/pitchside/internal/adapters/repository"
	service "github.com/okian/pitchside/internal/app"
	"github.com/okian/pitchside/internal/domain/distance"
	"github.com/okian/pitchside/internal/domain/geo"
	"github.com/okian/pitchside/internal/domain/model"
	"github.com/okian/pitchside/internal/domain/proximity"
	"github.com/okian/pitchside/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)} }

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// countingMatrix answers every destination with the same remote distance.
type countingMatrix struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (m *countingMatrix) Matrix(_ context.Context, req distance.MatrixRequest) (distance.MatrixResponse, error) {
	m.calls.Add(1)
	if m.fail.Load() {
		return distance.MatrixResponse{}, errors.New("rate limited")
	}
	row := distance.MatrixRow{Elements: make([]distance.MatrixElement, len(req.Destinations))}
	for i := range row.Elements {
		row.Elements[i] = distance.MatrixElement{
			Status:   distance.StatusOK,
			Distance: &distance.TextValue{Text: "1.2 km", Value: 1234},
			Duration: &distance.TextValue{Text: "2 mins", Value: 120},
		}
	}
	return distance.MatrixResponse{Status: distance.StatusOK, Rows: []distance.MatrixRow{row}}, nil
}

type memSnapshots struct {
	mu      sync.Mutex
	entries map[string]proximity.Entry
}

func newMemSnapshots() *memSnapshots { return &memSnapshots{entries: map[string]proximity.Entry{}} }

func (m *memSnapshots) Save(_ context.Context, key string, e proximity.Entry, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

func (m *memSnapshots) Load(_ context.Context, key string) (proximity.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *memSnapshots) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func ptr(v float64) *float64 { return &v }

func event(id, sport, status string, lat, lng float64, created time.Time) model.RawEvent {
	return model.RawEvent{
		ID:        id,
		SportID:   sport,
		Status:    status,
		EventDate: created.Add(72 * time.Hour),
		CreatedAt: created,
		Latitude:  ptr(lat),
		Longitude: ptr(lng),
	}
}

func fixtures(c *clock) *repository.MemoryStore {
	created := c.now().Add(-24 * time.Hour)
	store := repository.NewMemoryStore(
		event("near-tennis", "tennis", "ACTIVE", 41.0090, 28.9790, created),
		event("far-football", "football", "ACTIVE", 41.5, 29.0, created),
		model.RawEvent{ID: "broken", SportID: "football", Status: "ACTIVE", EventDate: created, CreatedAt: created},
	)
	store.SetSkillPreferences(context.Background(), "u1", []model.SkillPreference{{SportID: "football", Level: model.SkillAdvanced}})
	return store
}

func update(userID string, lat, lng float64) model.LocationUpdate {
	return model.LocationUpdate{UserID: userID, Sample: geo.LocationSample{Coordinate: geo.MustCoordinate(lat, lng)}}
}

func ids(events []model.RankedEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Event.ID
	}
	return out
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should report defaults in stats", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldBeFalse)
			So(stats["matrixConfigured"], ShouldBeFalse)
			So(stats["cacheTTLSeconds"], ShouldEqual, 300)
			So(stats["movementThresholdKm"], ShouldEqual, 0.1)
			So(stats["activeSessions"], ShouldEqual, 0)
		})
	})

	Convey("Given a service that is not started", t, func() {
		svc := service.New()
		ctx := context.Background()

		So(errors.Is(svc.Submit(ctx, update("u1", 41, 29)), service.ErrNotStarted), ShouldBeTrue)
		So(errors.Is(svc.Submit(ctx, update(" ", 41, 29)), service.ErrMissingUser), ShouldBeTrue)
		_, err := svc.Nearby(ctx, "")
		So(errors.Is(err, service.ErrMissingUser), ShouldBeTrue)
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithShardCount(2), service.WithQueueSize(8))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		So(svc.Start(ctx), ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)

		stats := svc.GetStats()
		So(stats["started"], ShouldBeTrue)
		So(stats["shardCount"], ShouldEqual, 2)
		So(stats["queueLength"], ShouldEqual, 0)

		svc.Stop()
		svc.Stop()
		So(svc.GetStats()["started"], ShouldBeFalse)
		So(errors.Is(svc.Submit(ctx, update("u1", 41, 29)), service.ErrNotStarted), ShouldBeTrue)
	})
}

func TestService_Refresh(t *testing.T) {
	Convey("Given a service with a matrix service and fixed clock", t, func() {
		ctx := context.Background()
		c := newClock()
		matrix := &countingMatrix{}
		svc := service.New(
			service.WithMatrixService(matrix),
			service.WithEventSource(fixtures(c)),
			service.WithSkillSource(fixtures(c)),
			service.WithClock(c.now),
			service.WithRetryPolicy(distance.NoRetry()),
		)

		Convey("Before any location the ranking has no distances", func() {
			res, err := svc.Nearby(ctx, "u1")
			So(err, ShouldBeNil)
			So(res.CacheValid, ShouldBeFalse)
			So(ids(res.Events), ShouldResemble, []string{"far-football", "near-tennis"})
			So(res.Events[0].Distance, ShouldBeNil)
		})

		Convey("When the first sample arrives", func() {
			So(svc.HandleUpdate(ctx, update("u1", 41.0082, 28.9784)), ShouldBeNil)
			So(int(matrix.calls.Load()), ShouldEqual, 1)

			res, err := svc.Nearby(ctx, "u1")
			So(err, ShouldBeNil)
			So(res.CacheValid, ShouldBeTrue)
			So(res.ComputedAt, ShouldEqual, c.now())

			Convey("Skill affinity outranks distance and malformed events are skipped", func() {
				So(ids(res.Events), ShouldResemble, []string{"far-football", "near-tennis"})
				So(res.Events[0].SkillPriority, ShouldEqual, 3)
				So(res.Events[0].Distance, ShouldNotBeNil)
				So(res.Events[0].Distance.Source, ShouldEqual, model.SourceRemote)
				So(res.Events[0].Distance.DistanceMeters, ShouldEqual, 1234)
			})

			Convey("A small move reuses the cache", func() {
				So(svc.HandleUpdate(ctx, update("u1", 41.0085, 28.9786)), ShouldBeNil)
				So(int(matrix.calls.Load()), ShouldEqual, 1)
			})

			Convey("A move beyond the threshold refreshes", func() {
				So(svc.HandleUpdate(ctx, update("u1", 41.02, 28.9784)), ShouldBeNil)
				So(int(matrix.calls.Load()), ShouldEqual, 2)
			})

			Convey("An expired entry is neither read nor kept", func() {
				c.advance(5*time.Minute + time.Second)
				res, err := svc.Nearby(ctx, "u1")
				So(err, ShouldBeNil)
				So(res.CacheValid, ShouldBeFalse)
				So(res.Events[0].Distance, ShouldBeNil)

				So(svc.HandleUpdate(ctx, update("u1", 41.0082, 28.9784)), ShouldBeNil)
				So(int(matrix.calls.Load()), ShouldEqual, 2)
			})

			Convey("At exactly the TTL the entry is still valid", func() {
				c.advance(5 * time.Minute)
				res, _ := svc.Nearby(ctx, "u1")
				So(res.CacheValid, ShouldBeTrue)
			})

			Convey("Invalidate forces the next sample to refresh", func() {
				So(svc.Invalidate(ctx, "u1"), ShouldBeNil)
				res, _ := svc.Nearby(ctx, "u1")
				So(res.CacheValid, ShouldBeFalse)

				So(svc.HandleUpdate(ctx, update("u1", 41.0082, 28.9784)), ShouldBeNil)
				So(int(matrix.calls.Load()), ShouldEqual, 2)
			})

			Convey("A matrix outage degrades to estimates", func() {
				matrix.fail.Store(true)
				So(svc.HandleUpdate(ctx, update("u1", 41.05, 28.9784)), ShouldBeNil)
				res, _ := svc.Nearby(ctx, "u1")
				So(res.CacheValid, ShouldBeTrue)
				for _, e := range res.Events {
					So(e.Distance, ShouldNotBeNil)
					So(e.Distance.Source, ShouldEqual, model.SourceEstimated)
				}
			})

			Convey("Sessions are per user", func() {
				res, _ := svc.Nearby(ctx, "u2")
				So(res.CacheValid, ShouldBeFalse)
				So(svc.GetStats()["activeSessions"], ShouldEqual, 1)
			})
		})
	})
}

func TestService_Snapshots(t *testing.T) {
	Convey("Given two services sharing a snapshot store", t, func() {
		ctx := context.Background()
		c := newClock()
		snaps := newMemSnapshots()
		first := &countingMatrix{}
		second := &countingMatrix{}
		build := func(m distance.MatrixService) *service.Service {
			return service.New(
				service.WithMatrixService(m),
				service.WithEventSource(fixtures(c)),
				service.WithSnapshotStore(snaps),
				service.WithClock(c.now),
			)
		}

		So(build(first).HandleUpdate(ctx, update("u1", 41.0082, 28.9784)), ShouldBeNil)
		So(int(first.calls.Load()), ShouldEqual, 1)

		Convey("A restarted session resumes from the snapshot", func() {
			svc := build(second)
			So(svc.HandleUpdate(ctx, update("u1", 41.0083, 28.9784)), ShouldBeNil)
			So(int(second.calls.Load()), ShouldEqual, 0)

			res, _ := svc.Nearby(ctx, "u1")
			So(res.CacheValid, ShouldBeTrue)
		})

		Convey("An expired snapshot is ignored", func() {
			c.advance(6 * time.Minute)
			svc := build(second)
			So(svc.HandleUpdate(ctx, update("u1", 41.0083, 28.9784)), ShouldBeNil)
			So(int(second.calls.Load()), ShouldEqual, 1)
		})

		Convey("Invalidate without a live session deletes the snapshot", func() {
			svc := build(second)
			So(svc.Invalidate(ctx, "u1"), ShouldBeNil)
			_, ok, _ := snaps.Load(ctx, "u1")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestService_Distance(t *testing.T) {
	Convey("Given a service without a matrix service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithRetryPolicy(distance.NoRetry()))

		Convey("Coordinates resolve to a geodesic estimate", func() {
			est, err := svc.Distance(ctx, "41.0082,28.9784", "41.0090,28.9790", "")
			So(err, ShouldBeNil)
			So(est.Source, ShouldEqual, model.SourceEstimated)
			So(est.DistanceMeters, ShouldBeBetween, 90.0, 120.0)
			So(est.FormattedDistance, ShouldEndWith, " m")
		})

		Convey("Place names cannot be estimated", func() {
			_, err := svc.Distance(ctx, "Kadikoy", "Besiktas", "walking")
			So(errors.Is(err, distance.ErrUnresolvable), ShouldBeTrue)
		})

		Convey("Unknown modes are rejected", func() {
			_, err := svc.Distance(ctx, "41,29", "41.1,29", "hovercraft")
			So(errors.Is(err, distance.ErrInvalidMode), ShouldBeTrue)
		})
	})

	Convey("Given a service whose matrix service is down and a two-attempt retry policy", t, func() {
		ctx := context.Background()
		matrix := &countingMatrix{}
		matrix.fail.Store(true)
		svc := service.New(
			service.WithMatrixService(matrix),
			service.WithRetryPolicy(distance.RetryPolicy{MaxAttempts: 2}),
		)

		Convey("Place names that cannot be estimated are not retried", func() {
			_, err := svc.Distance(ctx, "Kadikoy", "Besiktas", "driving")
			So(errors.Is(err, distance.ErrUnresolvable), ShouldBeTrue)
			So(int(matrix.calls.Load()), ShouldEqual, 1)
		})
	})
}

func TestService_Report(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithQueueSize(1), service.WithShardCount(1))

		Convey("Readings without permission never reach the queue", func() {
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()
			err := svc.Report(ctx, "u1", location.Reading{Latitude: 41, Longitude: 29, ServicesEnabled: true})
			So(errors.Is(err, location.ErrPermissionDenied), ShouldBeTrue)

			err = svc.Report(ctx, "u1", location.Reading{Latitude: 41, Longitude: 29, PermissionGranted: true})
			So(errors.Is(err, location.ErrServiceDisabled), ShouldBeTrue)

			err = svc.Report(ctx, "u1", location.Reading{Latitude: 141, Longitude: 29, PermissionGranted: true, ServicesEnabled: true})
			So(errors.Is(err, geo.ErrInvalidCoordinate), ShouldBeTrue)
		})
	})
}

// gatedMatrix holds its first call until release is closed.
type gatedMatrix struct {
	countingMatrix
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedMatrix() *gatedMatrix {
	return &gatedMatrix{entered: make(chan struct{}), release: make(chan struct{})}
}

func (m *gatedMatrix) Matrix(ctx context.Context, req distance.MatrixRequest) (distance.MatrixResponse, error) {
	first := false
	m.once.Do(func() { first = true })
	if first {
		close(m.entered)
		select {
		case <-m.release:
		case <-ctx.Done():
			return distance.MatrixResponse{}, ctx.Err()
		}
	}
	return m.countingMatrix.Matrix(ctx, req)
}

// recordingSnapshots remembers the sample location of every saved entry.
type recordingSnapshots struct {
	*memSnapshots
	mu    sync.Mutex
	saved []geo.Coordinate
}

func (r *recordingSnapshots) Save(ctx context.Context, key string, e proximity.Entry, ttl time.Duration) error {
	r.mu.Lock()
	r.saved = append(r.saved, e.SampleLocation)
	r.mu.Unlock()
	return r.memSnapshots.Save(ctx, key, e, ttl)
}

func (r *recordingSnapshots) locations() []geo.Coordinate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]geo.Coordinate(nil), r.saved...)
}

func TestService_NewerSampleSupersedesRefresh(t *testing.T) {
	Convey("Given a refresh in flight for the user's first sample", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c := newClock()
		matrix := newGatedMatrix()
		snaps := &recordingSnapshots{memSnapshots: newMemSnapshots()}
		svc := service.New(
			service.WithMatrixService(matrix),
			service.WithEventSource(fixtures(c)),
			service.WithSkillSource(fixtures(c)),
			service.WithSnapshotStore(snaps),
			service.WithClock(c.now),
			service.WithRetryPolicy(distance.NoRetry()),
			service.WithShardCount(1),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		first := update("u1", 41.0082, 28.9784)
		So(svc.Submit(ctx, first), ShouldBeNil)
		<-matrix.entered

		Convey("When a sample far away is submitted before it finishes", func() {
			second := update("u1", 41.5, 29.5)
			So(svc.Submit(ctx, second), ShouldBeNil)

			Convey("Then nearby stops serving distances right away", func() {
				res, err := svc.Nearby(ctx, "u1")
				So(err, ShouldBeNil)
				So(res.CacheValid, ShouldBeFalse)
				close(matrix.release)
			})

			Convey("Then only the newer sample's entry is ever committed", func() {
				close(matrix.release)
				res, err := waitForValid(ctx, svc, "u1")
				So(err, ShouldBeNil)
				So(res.CacheValid, ShouldBeTrue)

				var saved []geo.Coordinate
				for deadline := time.Now().Add(5 * time.Second); time.Now().Before(deadline); time.Sleep(5 * time.Millisecond) {
					if saved = snaps.locations(); len(saved) > 0 {
						break
					}
				}
				So(len(saved), ShouldEqual, 1)
				So(saved[0].Equal(second.Sample.Coordinate), ShouldBeTrue)
				So(int(matrix.calls.Load()), ShouldEqual, 2)
			})
		})
	})
}

func TestService_RemoteDownScenario(t *testing.T) {
	Convey("Given a user at 41.00,29.00 and two ACTIVE events a day out with the remote service down", t, func() {
		ctx := context.Background()
		c := newClock()
		created := c.now().Add(-time.Hour)
		e1 := model.RawEvent{ID: "e1", SportID: "football", Status: "ACTIVE", EventDate: c.now().Add(24 * time.Hour), CreatedAt: created, Latitude: ptr(41.001), Longitude: ptr(29.001)}
		e2 := model.RawEvent{ID: "e2", SportID: "football", Status: "ACTIVE", EventDate: c.now().Add(24 * time.Hour), CreatedAt: created, Latitude: ptr(41.5), Longitude: ptr(29.5)}
		matrix := &countingMatrix{}
		matrix.fail.Store(true)

		build := func(tieBreak bool, events ...model.RawEvent) *service.Service {
			store := repository.NewMemoryStore(events...)
			return service.New(
				service.WithMatrixService(matrix),
				service.WithEventSource(store),
				service.WithSkillSource(store),
				service.WithClock(c.now),
				service.WithRetryPolicy(distance.NoRetry()),
				service.WithDistanceTieBreak(tieBreak),
			)
		}
		nearby := func(svc *service.Service) model.NearbyResult {
			So(svc.HandleUpdate(ctx, update("u1", 41.00, 29.00)), ShouldBeNil)
			res, err := svc.Nearby(ctx, "u1")
			So(err, ShouldBeNil)
			So(res.CacheValid, ShouldBeTrue)
			return res
		}

		Convey("Then both events get estimated distances and keep input order", func() {
			res := nearby(build(false, e1, e2))
			So(ids(res.Events), ShouldResemble, []string{"e1", "e2"})
			for _, e := range res.Events {
				So(e.Distance, ShouldNotBeNil)
				So(e.Distance.Source, ShouldEqual, model.SourceEstimated)
			}
			So(res.Events[0].Distance.DistanceMeters, ShouldBeBetween, 100.0, 200.0)
			So(res.Events[1].Distance.DistanceMeters, ShouldBeBetween, 60000.0, 75000.0)
		})

		Convey("Then distance does not reorder tied events by default", func() {
			res := nearby(build(false, e2, e1))
			So(ids(res.Events), ShouldResemble, []string{"e2", "e1"})
		})

		Convey("Then the opt-in distance tie-break puts the nearer event first", func() {
			res := nearby(build(true, e2, e1))
			So(ids(res.Events), ShouldResemble, []string{"e1", "e2"})
		})
	})
}
