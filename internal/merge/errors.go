package merge

import (
	"errors"
	"fmt"

	"github.com/local/pdfmerger/internal/registry"
)

var (
	// ErrNoDocumentsSelected means the active set is empty.
	ErrNoDocumentsSelected = errors.New("no documents selected")
	// ErrMergeFailed matches any *Error via errors.Is.
	ErrMergeFailed = errors.New("merge failed")
)

// Phase names the merge step that failed.
type Phase string

const (
	PhaseRead      Phase = "read"
	PhaseCopy      Phase = "copy"
	PhaseSerialize Phase = "serialize"
	PhaseDeliver   Phase = "deliver"
)

// Error is the terminal failure of a merge attempt. Document is nil when the
// failure cannot be attributed to one source.
type Error struct {
	Phase    Phase
	Document *registry.Identity
	Err      error
}

func (e *Error) Error() string {
	if e.Document != nil {
		return fmt.Sprintf("merge failed during %s of %s: %v", e.Phase, e.Document.Name, e.Err)
	}
	return fmt.Sprintf("merge failed during %s: %v", e.Phase, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrMergeFailed }
