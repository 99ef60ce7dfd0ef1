package domain

// ProgressStatus is the per-item state reported during bulk caching
type ProgressStatus string

const (
	StatusDownloading ProgressStatus = "downloading"
	StatusComplete    ProgressStatus = "complete"
	StatusFailed      ProgressStatus = "error"
)

// ProgressFunc reports bulk caching progress.
// Called before each item with StatusDownloading and after it with a terminal status:
// (0, 10, "a", downloading), (1, 10, "a", complete), (1, 10, "b", downloading), ...
type ProgressFunc func(completed, total int, name string, status ProgressStatus)

// CacheProgress is the event form of a ProgressFunc call
type CacheProgress struct {
	Completed int
	Total     int
	Name      string
	Status    ProgressStatus
}

// Done returns true once every item has reached a terminal status
func (p CacheProgress) Done() bool {
	return p.Completed >= p.Total && p.Status != StatusDownloading
}

// ProgressObserver receives progress updates during bulk operations.
type ProgressObserver interface {
	OnProgress(progress CacheProgress)
}

// ObserverFunc adapts an observer into a ProgressFunc
func ObserverFunc(o ProgressObserver) ProgressFunc {
	if o == nil {
		return nil
	}
	return func(completed, total int, name string, status ProgressStatus) {
		o.OnProgress(CacheProgress{Completed: completed, Total: total, Name: name, Status: status})
	}
}
