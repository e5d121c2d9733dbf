package downloadcfg

import "github.com/tinoosan/quip/internal/data"

// CollisionPolicy defines how to handle an output file that already exists.
// Values: "error" | "overwrite" | "rename".
type CollisionPolicy string

const (
	CollisionError     CollisionPolicy = "error"
	CollisionOverwrite CollisionPolicy = "overwrite"
	CollisionRename    CollisionPolicy = "rename"
)

// ParseCollisionPolicy converts a string to a CollisionPolicy. Unknown values
// fall back to rename, which never loses data.
func ParseCollisionPolicy(s string) CollisionPolicy {
	switch CollisionPolicy(s) {
	case CollisionOverwrite:
		return CollisionOverwrite
	case CollisionError:
		return CollisionError
	case CollisionRename:
		fallthrough
	default:
		return CollisionRename
	}
}

// ResultKind tags how an attempt ended.
type ResultKind int

const (
	ResultCompleted ResultKind = iota + 1
	ResultCancelled
	ResultFailed
)

// Result is handed to OnCompletion exactly once per attempt. Err is set only
// for ResultFailed.
type Result struct {
	Kind ResultKind
	Err  error
}

// StartOptions carries per-call options for starting or resuming a download.
type StartOptions struct {
	// FileName overrides the generated name. Only the base name is used.
	FileName string
	Headers  map[string]string
	// Policy overrides the engine default when set.
	Policy CollisionPolicy

	OnProgress   func(data.Download)
	OnError      func(error)
	OnCompletion func(Result)
}
