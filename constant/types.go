package constant

import "time"

const (
	MetadataPrefix = "\x00\x00\x00\x00"
)

const (
	MaxCappedDeletesPerPass = 20000
	CappedDeleterTimeout    = 200 * time.Millisecond
	CappedSlackMax          = 16 << 20 // 16MB
	StorageSizeGranularity  = 256
)

const (
	OplogCompactEvery        = 60 * time.Minute
	OplogCompactEveryDeleted = 1000000
	OplogDeleterCycle        = time.Second
)
