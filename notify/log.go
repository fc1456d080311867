package notify

import "github.com/wudi/pdfmerge/observability"

// Log writes every event to a structured logger.
type Log struct {
	Logger observability.Logger
}

func (l Log) FilesRejected(rej []Rejection) {
	for _, r := range rej {
		l.Logger.Warn("file rejected",
			observability.String("file", r.Name),
			observability.String("reason", string(r.Reason)),
			observability.String("media_type", r.MediaType))
	}
}

func (l Log) CollectionChanged(v []FileView, total int64) {
	l.Logger.Debug("collection changed",
		observability.Int("files", len(v)),
		observability.Int64("total_bytes", total))
}

func (l Log) MergeProgress(p Progress) {
	l.Logger.Info("merging file",
		observability.String("file", p.FileName),
		observability.Int("index", p.Index),
		observability.Int("total", p.Total))
}

func (l Log) MergeSucceeded(s Success) {
	l.Logger.Info("merge succeeded",
		observability.Int("pages", s.PageCount),
		observability.Int64("bytes", s.SizeBytes),
		observability.String("name", s.SuggestedName),
		observability.Int("skipped", len(s.Skipped)))
}

func (l Log) MergeFailed(f Failure) {
	l.Logger.Error("merge failed",
		observability.String("file", f.FileName),
		observability.String("kind", string(f.Kind)),
		observability.Error("error", f.Err))
}
