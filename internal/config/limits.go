package config

const (
	// MaxFolderNameLength is the maximum length for folder names.
	// Limited to 255 to fit in PostgreSQL VARCHAR(255).
	MaxFolderNameLength = 255

	// MaxFileNameLength is the maximum length for file names.
	// Same as folder names for consistency.
	MaxFileNameLength = 255

	// MaxBulkShareItems caps how many files plus folders a single bulk share
	// request may carry. Clients re-wrap keys in batches below this size.
	MaxBulkShareItems = 1000

	// CascadeBatchSize bounds the id-set passed to one bulk delete during a
	// revoke or purge cascade.
	CascadeBatchSize = 500

	// DefaultSweepBatchSize is how many expired trash items or pending
	// cascade tasks the sweeper handles per tick.
	DefaultSweepBatchSize = 100

	// MaxUploadBytes limits a single ciphertext upload.
	MaxUploadBytes = 5 << 30
)
