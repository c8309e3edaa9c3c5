package worker

import (
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/loadpulse/loadpulse/pkg/pipeline"
)

// Simulate returns a StatusFunc that emits a plausible load-test lifecycle:
// ramp-up, a long steady state with jittered response times and the
// occasional slow request, then ramp-down. Used for demo deployments where
// no real load engine is attached.
func Simulate(totalUsers int, rng *rand.Rand) StatusFunc {
	var tick atomic.Int64

	return func() pipeline.WorkerEnvelope {
		t := tick.Add(1)
		now := time.Now().UnixMilli()

		var phase string
		var users int
		switch {
		case t <= 10:
			phase = "ramp-up"
			users = int(t) * totalUsers / 10
		case t <= 310:
			phase = "running"
			users = totalUsers
		case t <= 320:
			phase = "ramp-down"
			users = (320 - int(t)) * totalUsers / 10
		default:
			phase = "cleanup"
			users = 0
		}

		responseTime := 80 + rng.Float64()*40 + float64(users)/4
		if rng.Intn(50) == 0 {
			responseTime *= 8 // an occasional slow request
		}
		throughput := float64(users) * (8 + rng.Float64()*2)
		errorRate := rng.Float64() * 2

		return pipeline.WorkerEnvelope{
			RealTimeData: []pipeline.RawPoint{{
				Timestamp:    float64(now),
				ResponseTime: responseTime,
				RPS:          throughput,
				ActiveUsers:  float64(users),
				ErrorRate:    errorRate,
				Phase:        phase,
				Success:      errorRate < 1.5,
			}},
		}
	}
}
