package proctable

// pidPool hands out process identifiers. Retired identifiers are reused in
// the order they were retired; fresh ones come from a counter that never
// goes backwards.
type pidPool struct {
	min, max int
	next     int
	free     []int
	pooled   map[int]struct{}
}

func newPIDPool(lo, hi int) pidPool {
	return pidPool{
		min:    lo,
		max:    hi,
		next:   lo,
		pooled: make(map[int]struct{}),
	}
}

func (p *pidPool) inRange(pid int) bool {
	return pid >= p.min && pid <= p.max
}

// take returns a pid, or false when both the pool and the counter are
// exhausted.
func (p *pidPool) take() (int, bool) {
	if len(p.free) > 0 {
		pid := p.free[0]
		p.free = p.free[1:]
		delete(p.pooled, pid)
		return pid, true
	}
	if p.next > p.max {
		return 0, false
	}
	pid := p.next
	p.next++
	return pid, true
}

// put retires pid. Retiring a pid twice, or one the counter never issued,
// is a no-op.
func (p *pidPool) put(pid int) {
	if !p.inRange(pid) || pid >= p.next {
		return
	}
	if _, ok := p.pooled[pid]; ok {
		return
	}
	p.pooled[pid] = struct{}{}
	p.free = append(p.free, pid)
}

// outstanding reports whether pid has been handed out and not retired.
func (p *pidPool) outstanding(pid int) bool {
	if !p.inRange(pid) || pid >= p.next {
		return false
	}
	_, pooled := p.pooled[pid]
	return !pooled
}

func (p *pidPool) size() int {
	return len(p.free)
}

// issued is the number of pids ever handed out by the counter.
func (p *pidPool) issued() int {
	return p.next - p.min
}
