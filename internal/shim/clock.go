package shim

import "github.com/bywater/sandlibc/internal/trace"

// ClocksPerSec is the tick rate of Clock, matching CLOCKS_PER_SEC in the
// guest's time.h.
const ClocksPerSec = 1000000

func init() {
	register(Symbol{Name: "clock", Category: trace.Clock, Results: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			return uint64(s.Clock()), nil
		}})
	register(Symbol{Name: "time", Category: trace.Clock, Params: 1, Results: 1,
		Invoke: func(s *Shim, a []uint64) (uint64, error) {
			return uint64(s.Time(Ptr(a[0]))), nil
		}})
}

// Clock returns the monotonic tick count from the host time capability, or
// zero when the capability is absent. The guest only uses timing for
// diagnostics, never for correctness.
func (s *Shim) Clock() int64 {
	var ticks int64
	if s.host.Time != nil {
		ticks = s.host.Time.Ticks()
	}
	s.trace(trace.Clock, "clock", hex(uint64(ticks)))
	return ticks
}

// Time returns coarse wall-clock seconds, storing them through tloc when it
// is non-null. Without a host time capability it reports the fixed epoch.
func (s *Shim) Time(tloc Ptr) int64 {
	var secs int64
	if s.host.Time != nil {
		secs = s.host.Time.WallSeconds()
	}
	if tloc != 0 {
		_ = s.mem.WriteU64(tloc, uint64(secs))
	}
	s.trace(trace.Clock, "time", ptrPair("tloc", uint64(tloc), "sec", uint64(secs)))
	return secs
}
