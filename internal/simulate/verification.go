package simulate

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/pitchside/internal/domain/geo"
	"github.com/okian/pitchside/internal/domain/model"
	"github.com/okian/pitchside/internal/domain/ranking"
	"github.com/okian/pitchside/pkg/logger"
)

// verifyResults checks that every response is ranked and that estimated
// distances were computed near the user's last reported location.
func verifyResults(ctx context.Context, config *Config, walks []Walk, responses []NearbyResponse, stats *Stats) error {
	log := logger.Get()
	log.Info(ctx, "verifying results")

	if stats.NearbyRetrieved == 0 {
		return fmt.Errorf("no nearby responses to verify")
	}

	for i := range responses {
		resp := &responses[i]
		if resp.UserID == "" {
			continue
		}

		if at := orderViolation(resp.Events); at > 0 {
			stats.OrderViolations++
			log.Warn(ctx, "events out of order",
				logger.String("user_id", resp.UserID),
				logger.String("before", resp.Events[at-1].ID),
				logger.String("after", resp.Events[at].ID))
		}

		last := walks[i].Last()
		origin, err := geo.NewCoordinate(last.Latitude, last.Longitude)
		if err != nil {
			return fmt.Errorf("walk %s: %w", walks[i].UserID, err)
		}
		for j := range resp.Events {
			ev := &resp.Events[j]
			if ev.Distance == nil {
				continue
			}
			switch ev.Distance.Source {
			case model.SourceRemote:
				stats.RemoteDistances++
			case model.SourceEstimated:
				stats.EstimatedDistances++
				if drift := estimateDrift(origin, ev); drift > config.ToleranceMeters {
					stats.DistanceViolations++
					if config.Verbose {
						log.Warn(ctx, "estimated distance drifted from last reading",
							logger.String("user_id", resp.UserID),
							logger.String("event_id", ev.ID),
							logger.Float64("driftMeters", drift))
					}
				}
			default:
				stats.DistanceViolations++
				log.Warn(ctx, "distance without a known source",
					logger.String("user_id", resp.UserID),
					logger.String("event_id", ev.ID),
					logger.String("source", string(ev.Distance.Source)))
			}
		}
	}

	if stats.OrderViolations > 0 || stats.DistanceViolations > 0 {
		return fmt.Errorf("%d ordering and %d distance violations", stats.OrderViolations, stats.DistanceViolations)
	}
	log.Info(ctx, "result verification completed")
	return nil
}

// orderViolation returns the index of the first event ranked ahead of its
// predecessor, or 0 when the list is ordered.
func orderViolation(events []NearbyEvent) int {
	for i := 1; i < len(events); i++ {
		if ranking.Compare(toRanked(&events[i-1]), toRanked(&events[i])) > 0 {
			return i
		}
	}
	return 0
}

func toRanked(ev *NearbyEvent) model.RankedEvent {
	return model.RankedEvent{
		Event: model.EventCandidate{
			ID:        ev.ID,
			SportID:   ev.SportID,
			Status:    model.ParseStatus(ev.Status),
			EventDate: ev.EventDate,
			CreatedAt: ev.CreatedAt,
		},
		Distance:      ev.Distance,
		SkillPriority: ev.SkillPriority,
	}
}

// estimateDrift is how far an estimated distance is from the geodesic
// distance between origin and the event.
func estimateDrift(origin geo.Coordinate, ev *NearbyEvent) float64 {
	dest, err := geo.NewCoordinate(ev.Latitude, ev.Longitude)
	if err != nil {
		return math.Inf(1)
	}
	return math.Abs(geo.DistanceKm(origin, dest)*1000 - ev.Distance.DistanceMeters)
}
