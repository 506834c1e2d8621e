package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/pitchside/internal/adapters/http/api"
	"github.com/okian/pitchside/internal/adapters/location"
	"github.com/okian/pitchside/internal/adapters/mq/queue"
	service "github.com/okian/pitchside/internal/app"
	"github.com/okian/pitchside/internal/domain/distance"
	"github.com/okian/pitchside/internal/domain/geo"
	"github.com/okian/pitchside/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDependencies struct {
	reportErr   error
	reported    []location.Reading
	reportedFor []string

	nearby    model.NearbyResult
	nearbyErr error

	invalidated   []string
	invalidateErr error

	estimate    model.DistanceEstimate
	distanceErr error
	lastMode    string
}

func (m *mockDependencies) Report(_ context.Context, userID string, r location.Reading) error {
	if m.reportErr != nil {
		return m.reportErr
	}
	m.reported = append(m.reported, r)
	m.reportedFor = append(m.reportedFor, userID)
	return nil
}

func (m *mockDependencies) Nearby(context.Context, string) (model.NearbyResult, error) {
	return m.nearby, m.nearbyErr
}

func (m *mockDependencies) Invalidate(_ context.Context, userID string) error {
	m.invalidated = append(m.invalidated, userID)
	return m.invalidateErr
}

func (m *mockDependencies) Distance(_ context.Context, _, _, mode string) (model.DistanceEstimate, error) {
	m.lastMode = mode
	return m.estimate, m.distanceErr
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps *mockDependencies) *http.ServeMux {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}})
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func serve(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body.Code
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(&mockDependencies{})

		Convey("Health and metrics expose Prometheus text", func() {
			for _, path := range []string{"/healthz", "/metrics"} {
				w := serve(mux, http.MethodGet, path, "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "pitchside_")
			}
		})

		Convey("Every routed response carries a request id", func() {
			w := serve(mux, http.MethodGet, "/stats", "")
			So(w.Header().Get(api.RequestIDHeader), ShouldNotBeEmpty)

			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			req.Header.Set(api.RequestIDHeader, "req-42")
			w = httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "req-42")
		})

		Convey("Stats returns the provider's map", func() {
			w := serve(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
			So(w.Body.String(), ShouldContainSubstring, `"apiUptimeSeconds":`)
		})

		Convey("Wrong methods are not found", func() {
			So(serve(mux, http.MethodGet, "/location", "").Code, ShouldEqual, http.StatusNotFound)
			So(serve(mux, http.MethodPost, "/events/nearby?user_id=u1", "").Code, ShouldEqual, http.StatusNotFound)
			So(serve(mux, http.MethodGet, "/cache/invalidate?user_id=u1", "").Code, ShouldEqual, http.StatusNotFound)
			So(serve(mux, http.MethodPost, "/stats", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Unknown paths are not found", func() {
			So(serve(mux, http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestPostLocation(t *testing.T) {
	Convey("Given the location endpoint", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)
		valid := `{"user_id":"u1","latitude":41.0082,"longitude":28.9784,"captured_at":"2026-10-18T12:00:00Z","address":"Sultanahmet","permission_granted":true,"services_enabled":true}`

		Convey("A valid reading is accepted", func() {
			w := serve(mux, http.MethodPost, "/location", valid)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.reportedFor, ShouldResemble, []string{"u1"})
			r := deps.reported[0]
			So(r.Latitude, ShouldEqual, 41.0082)
			So(r.CapturedAt.Equal(time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)), ShouldBeTrue)
			So(r.PermissionGranted, ShouldBeTrue)
		})

		Convey("Malformed or incomplete bodies are bad requests", func() {
			for _, body := range []string{
				`{`,
				`{"latitude":41,"longitude":29}`,
				`{"user_id":"u1","longitude":29}`,
			} {
				w := serve(mux, http.MethodPost, "/location", body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "bad_request")
			}
			So(deps.reported, ShouldBeEmpty)
		})

		Convey("Reported errors map to status codes", func() {
			cases := []struct {
				err    error
				status int
				code   string
			}{
				{location.ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
				{location.ErrServiceDisabled, http.StatusForbidden, "location_services_disabled"},
				{fmt.Errorf("%w: lat", geo.ErrInvalidCoordinate), http.StatusBadRequest, "bad_request"},
				{queue.ErrQueueFull, http.StatusTooManyRequests, "backpressure"},
				{service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
				{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
			}
			for _, tc := range cases {
				deps.reportErr = tc.err
				w := serve(mux, http.MethodPost, "/location", valid)
				So(w.Code, ShouldEqual, tc.status)
				So(errorCode(w), ShouldEqual, tc.code)
			}
		})
	})
}

func TestGetNearby(t *testing.T) {
	Convey("Given the nearby endpoint", t, func() {
		computed := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
		est := model.DistanceEstimate{
			DistanceMeters:    850,
			DurationSeconds:   102,
			Source:            model.SourceEstimated,
			FormattedDistance: "850 m",
			FormattedDuration: "2 min",
		}
		deps := &mockDependencies{nearby: model.NearbyResult{
			CacheValid: true,
			ComputedAt: computed,
			Events: []model.RankedEvent{
				{
					Event:         model.EventCandidate{ID: "e1", SportID: "football", Status: model.StatusActive, Coordinate: geo.MustCoordinate(41, 29)},
					Distance:      &est,
					SkillPriority: 3,
				},
				{
					Event: model.EventCandidate{ID: "e2", SportID: "tennis", Status: model.StatusCompleted, Coordinate: geo.MustCoordinate(41.1, 29)},
				},
			},
		}}
		mux := newMux(deps)

		Convey("Ranked events keep order and carry distance annotations", func() {
			w := serve(mux, http.MethodGet, "/events/nearby?user_id=u1", "")
			So(w.Code, ShouldEqual, http.StatusOK)

			var body struct {
				UserID     string     `json:"user_id"`
				CacheValid bool       `json:"cache_valid"`
				ComputedAt *time.Time `json:"computed_at"`
				Events     []struct {
					ID            string                  `json:"id"`
					SkillPriority int                     `json:"skill_priority"`
					Distance      *model.DistanceEstimate `json:"distance"`
				} `json:"events"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body.UserID, ShouldEqual, "u1")
			So(body.CacheValid, ShouldBeTrue)
			So(body.ComputedAt.Equal(computed), ShouldBeTrue)
			So(len(body.Events), ShouldEqual, 2)
			So(body.Events[0].ID, ShouldEqual, "e1")
			So(body.Events[0].Distance.Source, ShouldEqual, model.SourceEstimated)
			So(body.Events[0].Distance.FormattedDistance, ShouldEqual, "850 m")
			So(body.Events[1].Distance, ShouldBeNil)
			So(w.Body.String(), ShouldContainSubstring, `"distance_meters":850`)
		})

		Convey("A missing user id is a bad request", func() {
			So(serve(mux, http.MethodGet, "/events/nearby", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("An invalid cache omits computed_at", func() {
			deps.nearby = model.NearbyResult{}
			w := serve(mux, http.MethodGet, "/events/nearby?user_id=u1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldNotContainSubstring, "computed_at")
			So(w.Body.String(), ShouldContainSubstring, `"events":[]`)
		})
	})
}

func TestInvalidate(t *testing.T) {
	Convey("Given the invalidate endpoint", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		w := serve(mux, http.MethodPost, "/cache/invalidate?user_id=u1", "")
		So(w.Code, ShouldEqual, http.StatusNoContent)
		So(deps.invalidated, ShouldResemble, []string{"u1"})

		So(serve(mux, http.MethodPost, "/cache/invalidate", "").Code, ShouldEqual, http.StatusBadRequest)
	})
}

func TestGetDistance(t *testing.T) {
	Convey("Given the distance endpoint", t, func() {
		deps := &mockDependencies{estimate: model.DistanceEstimate{
			Origin:            "41,29",
			Destination:       "41.1,29",
			DistanceMeters:    11120,
			Source:            model.SourceRemote,
			FormattedDistance: "11.1 km",
		}}
		mux := newMux(deps)

		Convey("A resolved pair is returned as JSON", func() {
			w := serve(mux, http.MethodGet, "/distance?origin=41,29&destination=41.1,29&mode=walking", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastMode, ShouldEqual, "walking")
			var got model.DistanceEstimate
			So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
			So(got, ShouldResemble, deps.estimate)
		})

		Convey("Missing ends are bad requests", func() {
			So(serve(mux, http.MethodGet, "/distance?destination=41,29", "").Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, http.MethodGet, "/distance?origin=41,29", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Resolver errors map to status codes", func() {
			cases := []struct {
				err    error
				status int
			}{
				{distance.NewKind("distance.Resolve", distance.ErrUnresolvable), http.StatusUnprocessableEntity},
				{distance.NewKind("distance.ParseMode", distance.ErrInvalidMode), http.StatusBadRequest},
				{distance.WrapKind("distance.ResolveBulk", distance.ErrBulkResolution, errors.New("down")), http.StatusBadGateway},
				{distance.NewKind("distance.Resolve", distance.ErrTransient), http.StatusBadGateway},
			}
			for _, tc := range cases {
				deps.distanceErr = tc.err
				So(serve(mux, http.MethodGet, "/distance?origin=a&destination=b", "").Code, ShouldEqual, tc.status)
			}
		})
	})
}
