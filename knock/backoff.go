package knock

import (
	mathrand "math/rand"
	"time"
)

type BackoffSettings struct {
	// floor for the returned delay
	BaseDelay time.Duration
	// hard ceiling for the returned delay
	MaxDelay time.Duration
}

func DefaultBackoffSettings() *BackoffSettings {
	return &BackoffSettings{
		BaseDelay: 250 * time.Millisecond,
		MaxDelay:  10 * time.Second,
	}
}

// JitteredBackoffDelay returns a full-jitter exponential backoff delay for the
// given try count (starting at 1). The effective ceiling doubles on each try
// until it reaches MaxDelay; the returned delay is uniformly random within
// [BaseDelay, ceiling].
func JitteredBackoffDelay(tries int, settings *BackoffSettings) time.Duration {
	baseMillis := settings.BaseDelay.Milliseconds()
	maxMillis := settings.MaxDelay.Milliseconds()
	if maxMillis < baseMillis {
		maxMillis = baseMillis
	}
	if tries < 1 {
		tries = 1
	}

	ceilingMillis := baseMillis
	for i := 0; i < tries; i += 1 {
		ceilingMillis *= 2
		if maxMillis <= ceilingMillis {
			ceilingMillis = maxMillis
			break
		}
	}

	delayMillis := baseMillis
	if baseMillis < ceilingMillis {
		delayMillis += mathrand.Int63n(ceilingMillis - baseMillis + 1)
	}
	if maxMillis < delayMillis {
		delayMillis = maxMillis
	}
	return time.Duration(delayMillis) * time.Millisecond
}
