package cache

// freeList tracks which slot indices of a fixed pool are free.
// Indices are handed out lowest first on a fresh pool and LIFO afterwards.
type freeList struct {
	free  []int
	inUse []bool
}

func newFreeList(capacity int) freeList {
	fl := freeList{
		free:  make([]int, capacity),
		inUse: make([]bool, capacity),
	}
	for i := range fl.free {
		fl.free[i] = capacity - 1 - i
	}
	return fl
}

func (fl *freeList) take() (int, bool) {
	n := len(fl.free)
	if n == 0 {
		return 0, false
	}
	idx := fl.free[n-1]
	fl.free = fl.free[:n-1]
	fl.inUse[idx] = true
	return idx, true
}

// put marks idx free again. It returns false for an index that is out of range
// or already free.
func (fl *freeList) put(idx int) bool {
	if idx < 0 || idx >= len(fl.inUse) || !fl.inUse[idx] {
		return false
	}
	fl.inUse[idx] = false
	fl.free = append(fl.free, idx)
	return true
}

func (fl *freeList) available() int {
	return len(fl.free)
}
