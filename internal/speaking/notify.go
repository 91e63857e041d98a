package speaking

// UpdateKind tells a front end what changed.
type UpdateKind int

const (
	UpdateStatus UpdateKind = iota
	UpdateQuestion
	UpdateCueCard
	UpdateRecording
	UpdateTimer
	UpdateTranscript
	UpdateAnswer
	UpdateAlert
	UpdateFinished
	UpdateEvaluation
	UpdateReset
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateStatus:
		return "status"
	case UpdateQuestion:
		return "question"
	case UpdateCueCard:
		return "cue_card"
	case UpdateRecording:
		return "recording"
	case UpdateTimer:
		return "timer"
	case UpdateTranscript:
		return "transcript"
	case UpdateAnswer:
		return "answer"
	case UpdateAlert:
		return "alert"
	case UpdateFinished:
		return "finished"
	case UpdateEvaluation:
		return "evaluation"
	case UpdateReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Update is a single progress notification. Only the fields relevant to Kind
// are set.
type Update struct {
	Kind       UpdateKind
	SessionID  string
	Part       Part
	Index      int
	Status     Status
	Text       string
	Timer      TimerState
	CueCard    *CueCard
	Evaluation *Evaluation
}

// Notifier receives updates from the controller's goroutine in order. It must
// not block for long.
type Notifier interface {
	Notify(Update)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Update)

func (f NotifierFunc) Notify(u Update) { f(u) }

type discardNotifier struct{}

func (discardNotifier) Notify(Update) {}
