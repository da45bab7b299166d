package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type sessionFlusher interface {
	FlushDirty(ctx context.Context) (int, error)
}

type SessionFlushJob struct {
	sessions sessionFlusher
}

func NewSessionFlushJob(sessions sessionFlusher) *SessionFlushJob {
	return &SessionFlushJob{sessions: sessions}
}

func (j *SessionFlushJob) Name() string {
	return "session_flush"
}

func (j *SessionFlushJob) Run(ctx context.Context) error {
	flushed, err := j.sessions.FlushDirty(ctx)
	if flushed > 0 {
		logutil.GetLogger(ctx).Info("dirty sessions flushed", zap.Int("count", flushed))
	}
	return err
}
