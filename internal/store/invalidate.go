package store

import (
	"context"
)

type Invalidator interface {
	Invalidate(context.Context, []string) error
}

// Publisher mirrors saved images to a remote store. A zero Publisher does nothing.
type Publisher struct {
	Uploader    Uploader
	Invalidator Invalidator
}

func (p *Publisher) Enabled() bool {
	return p != nil && p.Uploader != nil
}

// Publish uploads params and, when an invalidator is configured, invalidates the
// object path together with latest.png, which is overwritten on every publish.
func (p *Publisher) Publish(ctx context.Context, params UploadParams) error {
	if !p.Enabled() {
		return nil
	}
	latest := params
	latest.Name = "latest.png"
	for _, u := range []UploadParams{params, latest} {
		if err := p.Uploader.Upload(ctx, u); err != nil {
			return err
		}
	}
	if p.Invalidator == nil {
		return nil
	}
	return p.Invalidator.Invalidate(ctx, []string{ObjectPath(params.Name), ObjectPath(latest.Name)})
}
