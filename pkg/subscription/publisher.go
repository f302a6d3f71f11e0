package subscription

import (
	"context"

	"github.com/core-tools/hsu-keeper/pkg/errors"
	"github.com/core-tools/hsu-keeper/pkg/logging"
	"github.com/core-tools/hsu-keeper/pkg/workdir"
)

// Server receives the payload once it exists.
type Server interface {
	SetSubscription(payload string)
}

// Publisher runs link generation once a hostname is known: build links,
// persist sub.txt, expose them over HTTP, then register the subscription.
type Publisher struct {
	node     Node
	meta     *MetaResolver
	layout   workdir.Layout
	server   Server
	uploader *Uploader
	logger   logging.Logger
}

func NewPublisher(node Node, meta *MetaResolver, layout workdir.Layout, server Server, uploader *Uploader, logger logging.Logger) *Publisher {
	return &Publisher{
		node:     node,
		meta:     meta,
		layout:   layout,
		server:   server,
		uploader: uploader,
		logger:   logger,
	}
}

func (p *Publisher) Publish(ctx context.Context, hostname string) (Links, error) {
	isp := p.meta.Resolve(ctx)

	links, err := Build(hostname, p.node, isp)
	if err != nil {
		return Links{}, errors.NewInternalError("failed to build links", err)
	}
	payload := links.Payload()

	if err := p.layout.WriteFile(workdir.SubscriptionFile, []byte(payload)); err != nil {
		return links, err
	}
	p.logger.Infof("Subscription written, path: %s", p.layout.Path(workdir.SubscriptionFile))

	if p.server != nil {
		p.server.SetSubscription(payload)
	}

	if err := p.uploader.UploadSubscription(ctx); err != nil {
		p.logger.Warnf("Subscription upload failed: %v", err)
	}
	return links, nil
}
