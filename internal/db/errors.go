package db

import "errors"

var (
	// ErrKeyNotFound is returned for a missing key or an empty hash.
	ErrKeyNotFound = errors.New("db: key not found")
	// ErrIndexNotFound is returned when FT.* names an unknown index.
	ErrIndexNotFound = errors.New("db: index not found")
	// ErrIndexExists is returned by CreateIndex for a taken index name.
	ErrIndexExists = errors.New("db: index already exists")
	// ErrInvalidQuery is returned for a search query rejected before sending.
	ErrInvalidQuery = errors.New("db: invalid query")
)

// Redis command names used as Error.Op.
const (
	OpPing        = "PING"
	OpCreateIndex = "FT.CREATE"
	OpDropIndex   = "FT.DROPINDEX"
	OpIndexInfo   = "FT.INFO"
	OpSearch      = "FT.SEARCH"
	OpDel         = "DEL"
	OpHGetAll     = "HGETALL"
	OpHSet        = "HSET"
	OpScan        = "SCAN"
	OpGet         = "GET"
	OpSet         = "SET"
)

// Error is a failed server command. Target is the key, index or pattern
// the command addressed and may be empty.
type Error struct {
	Op     string
	Target string
	Err    error
}

func (e *Error) Error() string {
	if e.Target == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Target + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns nil for a nil err and an *Error otherwise.
func Wrap(op, target string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Target: target, Err: err}
}
