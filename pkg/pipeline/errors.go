package pipeline

import (
	ferrors "github.com/vango-dev/framepipe/internal/errors"
	"github.com/vango-dev/framepipe/pkg/node"
)

// Error is the structured error returned by the pipelines.
type Error = ferrors.Error

// Sentinels for errors.Is. Every error the pipelines return with the same
// code matches the sentinel, whatever node or cause it carries.
var (
	ErrNodeMissing   = ferrors.New(ferrors.CodeNodeMissing)
	ErrWrongNodeKind = ferrors.New(ferrors.CodeWrongNodeKind)
	ErrLayoutFailed  = ferrors.New(ferrors.CodeLayoutFailed)
	ErrPaintFailed   = ferrors.New(ferrors.CodePaintFailed)
	ErrRebuildFailed = ferrors.New(ferrors.CodeRebuildFailed)
)

const (
	phaseRebuild = "rebuild"
	phaseLayout  = "layout"
	phasePaint   = "paint"
)

func phaseError(code, phase string, id node.ID, cause error) *Error {
	return ferrors.New(code).WithPhase(phase).WithNode(id).Wrap(cause)
}
