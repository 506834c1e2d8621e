package simulate

import (
	"math"
	"testing"
	"time"

	"github.com/okian/pitchside/internal/domain/geo"
	"github.com/okian/pitchside/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGenerateWalk(t *testing.T) {
	Convey("Given a walk configuration", t, func() {
		center := geo.MustCoordinate(41.0082, 28.9784)
		cfg := &Config{Steps: 4, StepMeters: 60, Center: center, RadiusKm: 2}
		end := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

		w := generateWalk("sim-1", cfg, end)

		Convey("Then it has one reading per step, ending at end", func() {
			So(len(w.Readings), ShouldEqual, 4)
			So(w.Last().CapturedAt, ShouldEqual, end)
			So(w.Readings[0].CapturedAt, ShouldEqual, end.Add(-3*stepInterval))
			for _, r := range w.Readings {
				So(r.UserID, ShouldEqual, "sim-1")
				So(r.PermissionGranted, ShouldBeTrue)
				So(r.ServicesEnabled, ShouldBeTrue)
			}
		})

		Convey("Then it starts inside the radius and moves one step per reading", func() {
			first := geo.MustCoordinate(w.Readings[0].Latitude, w.Readings[0].Longitude)
			So(geo.DistanceKm(center, first), ShouldBeLessThanOrEqualTo, 2.01)

			for i := 1; i < len(w.Readings); i++ {
				a := geo.MustCoordinate(w.Readings[i-1].Latitude, w.Readings[i-1].Longitude)
				b := geo.MustCoordinate(w.Readings[i].Latitude, w.Readings[i].Longitude)
				So(geo.DistanceKm(a, b)*1000, ShouldAlmostEqual, 60, 0.6)
			}
		})
	})
}

func TestOffset(t *testing.T) {
	Convey("Offset moves north and east by the requested distance", t, func() {
		lat, lng := offset(0, 0, 1000, 0)
		So(lng, ShouldEqual, 0)
		So(geo.DistanceKm(geo.MustCoordinate(0, 0), geo.MustCoordinate(lat, lng)), ShouldAlmostEqual, 1, 0.01)

		lat, lng = offset(0, 0, 1000, math.Pi/2)
		So(lat, ShouldAlmostEqual, 0, 1e-9)
		So(lng, ShouldBeGreaterThan, 0)
	})

	Convey("Offset wraps longitude and clamps latitude", t, func() {
		_, lng := offset(0, 179.9999, 1000, math.Pi/2)
		So(lng, ShouldBeLessThan, -179)

		lat, _ := offset(89.9999, 0, 1000, 0)
		So(lat, ShouldEqual, 90)
	})
}

func TestOrderViolation(t *testing.T) {
	Convey("Given nearby events", t, func() {
		day := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
		preferred := NearbyEvent{ID: "pref", Status: "COMPLETED", SkillPriority: 3}
		soon := NearbyEvent{ID: "soon", Status: "ACTIVE", EventDate: day}
		later := NearbyEvent{ID: "later", Status: "ACTIVE", EventDate: day.Add(24 * time.Hour)}
		draft := NearbyEvent{ID: "draft", Status: "DRAFT", EventDate: day}

		Convey("A ranked list has no violation", func() {
			So(orderViolation([]NearbyEvent{preferred, soon, later, draft}), ShouldEqual, 0)
			So(orderViolation(nil), ShouldEqual, 0)
		})

		Convey("The first misplaced event is reported", func() {
			So(orderViolation([]NearbyEvent{preferred, later, soon, draft}), ShouldEqual, 2)
			So(orderViolation([]NearbyEvent{draft, preferred}), ShouldEqual, 1)
		})
	})
}

func TestEstimateDrift(t *testing.T) {
	Convey("Drift compares an estimate with the geodesic distance from origin", t, func() {
		origin := geo.MustCoordinate(41.0082, 28.9784)
		ev := &NearbyEvent{Latitude: 41.0090, Longitude: 28.9790}
		exact := geo.DistanceKm(origin, geo.MustCoordinate(ev.Latitude, ev.Longitude)) * 1000

		ev.Distance = &model.DistanceEstimate{DistanceMeters: exact, Source: model.SourceEstimated}
		So(estimateDrift(origin, ev), ShouldAlmostEqual, 0, 1e-6)

		ev.Distance.DistanceMeters = exact + 250
		So(estimateDrift(origin, ev), ShouldAlmostEqual, 250, 1e-6)

		ev.Latitude = 123
		So(math.IsInf(estimateDrift(origin, ev), 1), ShouldBeTrue)
	})
}
