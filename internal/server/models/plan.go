package models

// Plan carries the limits of a subscription plan. A nil LibraryLimit means
// unlimited libraries.
type Plan struct {
	Name              string
	LibraryLimit      *int64
	StorageLimitBytes int64
}

// QuotaSnapshot is computed per request and never cached, so plan changes
// take effect immediately.
type QuotaSnapshot struct {
	PlanName                string `json:"plan"`
	LibraryLimit            *int64 `json:"library_limit"`
	StorageLimitBytes       int64  `json:"storage_limit_bytes"`
	CurrentLibraryCount     int64  `json:"library_count"`
	CurrentStorageUsedBytes int64  `json:"storage_used_bytes"`
}

// StorageAvailableBytes returns how many more bytes fit into the plan.
func (q QuotaSnapshot) StorageAvailableBytes() int64 {
	if free := q.StorageLimitBytes - q.CurrentStorageUsedBytes; free > 0 {
		return free
	}
	return 0
}
