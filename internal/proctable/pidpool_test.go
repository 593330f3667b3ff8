package proctable

import "testing"

func TestPIDPool_CounterThenFIFO(t *testing.T) {
	p := newPIDPool(2, 5)

	for want := 2; want <= 5; want++ {
		got, ok := p.take()
		if !ok || got != want {
			t.Fatalf("take() = %d, %v; want %d, true", got, ok, want)
		}
	}
	if _, ok := p.take(); ok {
		t.Fatal("take() should fail when the range is exhausted")
	}

	p.put(4)
	p.put(2)
	p.put(4) // duplicate
	if p.size() != 2 {
		t.Fatalf("size() = %d, want 2", p.size())
	}

	for _, want := range []int{4, 2} {
		got, ok := p.take()
		if !ok || got != want {
			t.Errorf("take() = %d, %v; want %d, true", got, ok, want)
		}
	}
}

func TestPIDPool_PutIgnoresUnissued(t *testing.T) {
	p := newPIDPool(10, 20)
	p.put(9)
	p.put(15)
	if p.size() != 0 {
		t.Errorf("size() = %d, want 0", p.size())
	}
}

func TestPIDPool_Outstanding(t *testing.T) {
	p := newPIDPool(2, 10)
	pid, _ := p.take()

	if !p.outstanding(pid) {
		t.Errorf("outstanding(%d) = false after take", pid)
	}
	if p.outstanding(pid + 1) {
		t.Errorf("outstanding(%d) = true for a pid never issued", pid+1)
	}
	p.put(pid)
	if p.outstanding(pid) {
		t.Errorf("outstanding(%d) = true after put", pid)
	}
	if p.issued() != 1 {
		t.Errorf("issued() = %d, want 1", p.issued())
	}
}
