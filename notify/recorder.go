package notify

import "sync"

// Recorder keeps every event it receives. Tests use it to assert on the
// sequence a component emitted.
type Recorder struct {
	mu          sync.Mutex
	Rejections  [][]Rejection
	Collections [][]FileView
	Totals      []int64
	Progress    []Progress
	Successes   []Success
	Failures    []Failure
}

func (r *Recorder) FilesRejected(rej []Rejection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Rejections = append(r.Rejections, append([]Rejection(nil), rej...))
}

func (r *Recorder) CollectionChanged(v []FileView, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Collections = append(r.Collections, append([]FileView(nil), v...))
	r.Totals = append(r.Totals, total)
}

func (r *Recorder) MergeProgress(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Progress = append(r.Progress, p)
}

func (r *Recorder) MergeSucceeded(s Success) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Successes = append(r.Successes, s)
}

func (r *Recorder) MergeFailed(f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, f)
}

// LastView returns the most recent collection view, or nil.
func (r *Recorder) LastView() []FileView {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Collections) == 0 {
		return nil
	}
	return r.Collections[len(r.Collections)-1]
}

// RejectedNames flattens every rejection batch into file names.
func (r *Recorder) RejectedNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, batch := range r.Rejections {
		for _, rej := range batch {
			names = append(names, rej.Name)
		}
	}
	return names
}
