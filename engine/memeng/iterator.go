package memeng

import "bytes"

func (itr *iterator) inRange(k []byte) bool {
	if itr.lo != nil && bytes.Compare(k, itr.lo) < 0 {
		return false
	}
	if itr.hi != nil && bytes.Compare(k, itr.hi) >= 0 {
		return false
	}
	return true
}

func (itr *iterator) SeekToFirst() {
	itr.valid = false
	itr.t.AscendGreaterOrEqual(item{k: itr.lo}, func(it item) bool {
		if itr.hi != nil && bytes.Compare(it.k, itr.hi) >= 0 {
			return false
		}
		itr.cur, itr.valid = it, true
		return false
	})
}

func (itr *iterator) SeekToLast() {
	itr.valid = false
	walk := func(it item) bool {
		if !itr.inRange(it.k) {
			return bytes.Compare(it.k, itr.lo) >= 0 // skip only keys above hi
		}
		itr.cur, itr.valid = it, true
		return false
	}
	if itr.hi == nil {
		itr.t.Descend(walk)
	} else {
		itr.t.DescendLessOrEqual(item{k: itr.hi}, walk)
	}
}

func (itr *iterator) Seek(key []byte) {
	if itr.lo != nil && bytes.Compare(key, itr.lo) < 0 {
		key = itr.lo
	}
	itr.valid = false
	itr.t.AscendGreaterOrEqual(item{k: key}, func(it item) bool {
		if itr.hi != nil && bytes.Compare(it.k, itr.hi) >= 0 {
			return false
		}
		itr.cur, itr.valid = it, true
		return false
	})
}

func (itr *iterator) Next() {
	if !itr.valid {
		return
	}
	prev := itr.cur.k
	itr.valid = false
	itr.t.AscendGreaterOrEqual(item{k: prev}, func(it item) bool {
		if bytes.Equal(it.k, prev) {
			return true
		}
		if itr.hi != nil && bytes.Compare(it.k, itr.hi) >= 0 {
			return false
		}
		itr.cur, itr.valid = it, true
		return false
	})
}

func (itr *iterator) Prev() {
	if !itr.valid {
		return
	}
	prev := itr.cur.k
	itr.valid = false
	itr.t.DescendLessOrEqual(item{k: prev}, func(it item) bool {
		if bytes.Equal(it.k, prev) {
			return true
		}
		if itr.lo != nil && bytes.Compare(it.k, itr.lo) < 0 {
			return false
		}
		itr.cur, itr.valid = it, true
		return false
	})
}

func (itr *iterator) Valid() bool {
	return itr.valid
}

func (itr *iterator) Key() []byte {
	if !itr.valid {
		return nil
	}
	return itr.cur.k
}

func (itr *iterator) Value() []byte {
	if !itr.valid {
		return nil
	}
	return itr.cur.v
}

func (itr *iterator) Status() error {
	return nil
}

func (itr *iterator) Close() error {
	itr.valid = false
	return nil
}
