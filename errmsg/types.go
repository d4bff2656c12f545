package errmsg

import "errors"

var (
	NotFound      = errors.New("record not found")
	BadValue      = errors.New("bad value")
	Unsupported   = errors.New("unsupported operation")
	NotExclusive  = errors.New("collection not exclusively locked")
	WriteConflict = errors.New("write conflict")
	TxnFinished   = errors.New("transaction already finished")
	OplogOnly     = errors.New("operation requires an oplog collection")
)
