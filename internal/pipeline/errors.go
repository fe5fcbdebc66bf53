package pipeline

import (
	"errors"
	"fmt"
)

// Kind names a pipeline failure class. The string form appears verbatim in
// handler error responses as the "type" field.
type Kind string

const (
	KindMissingBody         Kind = "MissingBodyError"
	KindInvalidEncoding     Kind = "InvalidEncodingError"
	KindObjectFetch         Kind = "ObjectFetchError"
	KindExtraction          Kind = "ExtractionError"
	KindAnalysisService     Kind = "AnalysisServiceError"
	KindStoreWrite          Kind = "StoreWriteError"
	KindMalformedChangeFeed Kind = "MalformedChangeFeedEntryError"
	KindEmailDispatch       Kind = "EmailDispatchError"

	// KindInternal is the fallback for errors no stage classified.
	KindInternal Kind = "InternalError"
)

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with a kind. Wrapping nil returns nil so call sites can
// wrap unconditionally.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost tagged error in err's chain,
// or KindInternal when none is found.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
