package marketplace

// Recorder receives lifecycle and settlement events for metrics.
type Recorder interface {
	TaskTransition(from, to TaskStatus)
	Settlement(kind TransactionType, status TransactionStatus, amount Money)
	SuggestionFailure()
}

type nopRecorder struct{}

func (nopRecorder) TaskTransition(TaskStatus, TaskStatus) {}
func (nopRecorder) Settlement(TransactionType, TransactionStatus, Money) {}
func (nopRecorder) SuggestionFailure() {}
