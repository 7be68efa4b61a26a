package analyze

// Stage identifies where in the pipeline a status update originates.
type Stage string

const (
	StagePreparing   Stage = "preparing"
	StageTagging     Stage = "tagging"
	StageTranslating Stage = "translating"
	StageDone        Stage = "done"
	StageDonePartial Stage = "done_partial"
	StageEmpty       Stage = "empty"
	StageFailed      Stage = "failed"
)

// Notifier receives human-readable status updates for every terminal
// and intermediate pipeline state. The UI subscribes to this stream;
// the orchestrator never touches rendering directly.
type Notifier interface {
	Status(stage Stage, message string)
}

// NopNotifier discards all updates.
type NopNotifier struct{}

func (NopNotifier) Status(Stage, string) {}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(stage Stage, message string)

func (f NotifierFunc) Status(stage Stage, message string) { f(stage, message) }
