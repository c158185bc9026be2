package profile

import (
	"fmt"

	"github.com/getsentry/vroomscope/internal/errorutil"
)

var (
	ErrInvalidWeight       = fmt.Errorf("profile: %w: invalid weight", errorutil.ErrDataIntegrity)
	ErrOutOfOrderSample    = fmt.Errorf("profile: %w: samples out of order", errorutil.ErrDataIntegrity)
	ErrUnbalancedFrames    = fmt.Errorf("profile: %w: unbalanced frames", errorutil.ErrDataIntegrity)
	ErrEmptyStackUnderflow = fmt.Errorf("profile: %w: no frame is open", errorutil.ErrDataIntegrity)
	ErrUnterminatedStack   = fmt.Errorf("profile: %w: frames are still open", errorutil.ErrDataIntegrity)
	ErrBufferConsistency   = fmt.Errorf("profile: %w: inconsistent frame events", errorutil.ErrDataIntegrity)
)
