// Package ratelimit caps how many copies per second the duplicator sends to
// each destination.
//
// Two backends share the KeyedLimiter interface. The local backend keeps a
// golang.org/x/time/rate token bucket per destination. The distributed
// backend counts copies in a Redis sliding window so that several
// duplicator instances share one budget per destination.
//
//	limiter, err := ratelimit.New(ratelimit.Config{
//		RequestsPerSecond: 50,
//		BurstSize:         10,
//		Enabled:           true,
//		Type:              ratelimit.BackendLocal,
//	}, nil)
//	if err != nil {
//		return err
//	}
//
//	if !limiter.TryAcquireForKey("host1:8080") {
//		// over budget, skip this copy
//	}
//
// A disabled limiter allows everything. The distributed backend fails open
// when Redis is unreachable.
package ratelimit
