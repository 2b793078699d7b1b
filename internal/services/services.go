// package services routes dispatches to the platform publishers
package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/vidpub/internal/accounts"
	"github.com/desertthunder/vidpub/internal/models"
	"github.com/desertthunder/vidpub/internal/shared"
)

// Dispatcher resolves a target's account and hands the upload to its platform's publisher.
type Dispatcher struct {
	accounts   *accounts.Holder
	publishers map[models.Platform]Publisher
}

// NewDispatcher routes to pubs by [Publisher.Platform], reading accounts from holder on
// every dispatch so reloads take effect immediately.
func NewDispatcher(holder *accounts.Holder, pubs ...Publisher) *Dispatcher {
	d := &Dispatcher{accounts: holder, publishers: make(map[models.Platform]Publisher, len(pubs))}
	for _, p := range pubs {
		d.publishers[p.Platform()] = p
	}
	return d
}

// NewPlatformDispatcher builds a Dispatcher with every platform publisher configured from cfg.
func NewPlatformDispatcher(holder *accounts.Holder, cfg shared.PlatformsConfig, client *http.Client) *Dispatcher {
	return NewDispatcher(holder,
		NewYouTubePublisher(cfg.YouTube, client),
		NewFacebookPublisher(cfg.Graph, client),
		NewInstagramPublisher(cfg.Graph, client),
		NewTikTokPublisher(cfg.TikTok, client),
	)
}

// Dispatch publishes req.Target. Every failure is returned as a [*PublishError]. Accounts that
// are not usable fail without any network call: invalid configuration is terminal, the rest
// need an operator.
func (d *Dispatcher) Dispatch(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	target := req.Target

	pub, ok := d.publishers[target.Platform]
	if !ok {
		return nil, NonRetryable(fmt.Sprintf("no publisher for platform %q", target.Platform), nil)
	}

	spec, err := d.accounts.Current().Resolve(target.Platform, target.AccountID, req.Job.Kind)
	if err != nil {
		return nil, NonRetryable(err.Error(), err)
	}

	switch spec.Status {
	case accounts.StatusUsable:
	case accounts.StatusInvalidConfig:
		return nil, NonRetryable(fmt.Sprintf("account %s/%s: %s", spec.Platform, spec.ID, spec.Message), nil)
	default:
		return nil, ManualRequired(fmt.Sprintf("account %s/%s: %s", spec.Platform, spec.ID, spec.Message), nil)
	}

	req.Account = spec
	result, err := pub.Publish(ctx, req)
	if err != nil {
		return nil, Classify(err)
	}
	return result, nil
}
