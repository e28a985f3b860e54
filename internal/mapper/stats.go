package mapper

import (
	"fmt"
	"time"
)

// Statistics accumulates the time spent remapping frames.
type Statistics struct {
	Duration time.Duration
	Calls    uint64
}

func (s *Statistics) add(d time.Duration) {
	// clock resolution can round a short call down to zero
	if d <= 0 {
		d = time.Nanosecond
	}
	s.Duration += d
	s.Calls++
}

// Mean is the average duration per call, zero before the first call.
func (s Statistics) Mean() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.Duration / time.Duration(s.Calls)
}

func (s Statistics) String() string {
	return fmt.Sprintf("map_channels:\n"+
		"  sum duration:  %10fs\n"+
		"  sum calls:     %10d\n"+
		"  duration/call: %10.2fms/call\n",
		s.Duration.Seconds(),
		s.Calls,
		float64(s.Mean())/float64(time.Millisecond),
	)
}
