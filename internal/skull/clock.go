package skull

import (
	"math/rand"
	"time"
)

// SystemClock reports milliseconds since it was created. The value wraps
// after about 49 days, which the controller tolerates.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() SystemClock { return SystemClock{start: time.Now()} }

func (c SystemClock) NowMillis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// Random draws from the process-wide generator.
type Random struct{}

func (Random) NextInt(minInclusive, maxExclusive int) int {
	if maxExclusive <= minInclusive {
		return minInclusive
	}
	return minInclusive + rand.Intn(maxExclusive-minInclusive)
}
