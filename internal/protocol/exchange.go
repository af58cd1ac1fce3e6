package protocol

import (
	"context"

	"github.com/danmuck/adbtp/internal/protocol/deadline"
	"github.com/danmuck/adbtp/internal/protocol/wire"
)

// Exchange writes req and reads the reply under one shared budget, so time spent
// writing reduces the time left for reading.
func (p *Blocking) Exchange(req wire.Message, b deadline.Budget) (wire.Message, error) {
	d := deadline.Wrap(b)
	defer d.Scope()()
	if err := p.Write(req, d); err != nil {
		return wire.Message{}, err
	}
	return p.Read(d)
}

func (p *Cooperative) Exchange(ctx context.Context, req wire.Message, b deadline.Budget) (wire.Message, error) {
	d := deadline.Wrap(b)
	defer d.Scope()()
	if err := p.Write(ctx, req, d); err != nil {
		return wire.Message{}, err
	}
	return p.Read(ctx, d)
}
