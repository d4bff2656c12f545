package pebbleng

func (itr *iterator) SeekToFirst() {
	itr.itr.First()
}

func (itr *iterator) SeekToLast() {
	itr.itr.Last()
}

func (itr *iterator) Seek(key []byte) {
	itr.itr.SeekGE(key)
}

func (itr *iterator) Next() {
	itr.itr.Next()
}

func (itr *iterator) Prev() {
	itr.itr.Prev()
}

func (itr *iterator) Valid() bool {
	return itr.itr.Valid()
}

func (itr *iterator) Key() []byte {
	return itr.itr.Key()
}

func (itr *iterator) Value() []byte {
	return itr.itr.Value()
}

func (itr *iterator) Status() error {
	return itr.itr.Error()
}

func (itr *iterator) Close() error {
	return itr.itr.Close()
}
