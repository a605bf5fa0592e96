package faces

import (
	"context"

	"github.com/your-org/lastseen/internal/models"
)

// TaskPublisher is implemented by queue.Producer.
type TaskPublisher interface {
	PublishFaceTask(ctx context.Context, task models.FaceTask) error
}

// Dispatcher queues recognition for committed uploads.
type Dispatcher struct {
	pub TaskPublisher
}

func NewDispatcher(pub TaskPublisher) *Dispatcher {
	return &Dispatcher{pub: pub}
}

func (d *Dispatcher) Dispatch(ctx context.Context, task models.FaceTask) error {
	return d.pub.PublishFaceTask(ctx, task)
}
