package xctrl

// Stage identifies one of the five extension points of a dispatch.
type Stage uint8

const (
	StagePre Stage = iota
	StageOn
	StageAfter
	StageMiddlewarePre
	StageMiddlewareOn

	stageCount = 5
)

// MetaEvent is the envelope event every dispatch is wrapped in when meta-emit is enabled.
const MetaEvent = "emit"

// UnnamedEvent replaces an empty event name at registration.
const UnnamedEvent = "unnamed event"

var stageNames = [stageCount]string{
	StagePre:           "pre",
	StageOn:            "on",
	StageAfter:         "after",
	StageMiddlewarePre: "middleware-pre",
	StageMiddlewareOn:  "middleware-on",
}

func (s Stage) String() string {
	if !s.Valid() {
		return "unknown"
	}
	return stageNames[s]
}

// Valid reports whether s is one of the five known stages.
func (s Stage) Valid() bool { return s < stageCount }

// IsMiddleware reports whether s is a sequential (transforming) stage.
func (s Stage) IsMiddleware() bool {
	return s == StageMiddlewarePre || s == StageMiddlewareOn
}

// AddedEvent is the meta event dispatched when a record is inserted into stage s.
func (s Stage) AddedEvent() string { return "new-" + s.String() + "-listener" }

// RemovedEvent is the meta event dispatched when a record is removed from stage s.
func (s Stage) RemovedEvent() string { return "removed-" + s.String() + "-listener" }

// middlewareStage maps pre/on to their middleware counterparts.
func middlewareStage(s Stage) (Stage, bool) {
	switch s {
	case StagePre, StageMiddlewarePre:
		return StageMiddlewarePre, true
	case StageOn, StageMiddlewareOn:
		return StageMiddlewareOn, true
	}
	return 0, false
}
