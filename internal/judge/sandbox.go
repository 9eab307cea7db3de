package judge

import (
	"context"

	"github.com/Mapleshade20/online-judge/internal/sandbox"
)

// Sandbox is the subset of the Sandbox Driver the Judger depends on. It is
// an interface, not the concrete *sandbox.Driver, so the case loop can be
// exercised in tests against a fake that never shells out to isolate.
type Sandbox interface {
	Path() string
	CopyIn(srcHostPath, dstName string) error
	CopyOut(srcName, dstHostPath string) error
	Run(ctx context.Context, spec sandbox.RunSpec) (sandbox.RunOutcome, error)
}
