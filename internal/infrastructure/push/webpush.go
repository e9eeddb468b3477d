package push

import (
	"context"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/painelvendas/ingest-service/internal/models"
	pkgerrors "github.com/painelvendas/ingest-service/pkg/errors"
)

// Transport delivers an encrypted payload to one push endpoint. A returned
// pkgerrors.ErrEndpointGone means the endpoint will never accept delivery
// again and must be pruned; any other error is transient.
type Transport interface {
	Send(ctx context.Context, ep models.PushEndpoint, payload []byte) error
}

type WebPushTransport struct {
	subscriber      string
	vapidPublicKey  string
	vapidPrivateKey string
	ttl             int
}

func NewWebPushTransport(subscriber, vapidPublicKey, vapidPrivateKey string) *WebPushTransport {
	return &WebPushTransport{
		subscriber:      subscriber,
		vapidPublicKey:  vapidPublicKey,
		vapidPrivateKey: vapidPrivateKey,
		ttl:             60,
	}
}

func (t *WebPushTransport) Send(ctx context.Context, ep models.PushEndpoint, payload []byte) error {
	sub := &webpush.Subscription{
		Endpoint: ep.Endpoint,
		Keys: webpush.Keys{
			P256dh: ep.P256dh,
			Auth:   ep.Auth,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		Subscriber:      t.subscriber,
		VAPIDPublicKey:  t.vapidPublicKey,
		VAPIDPrivateKey: t.vapidPrivateKey,
		TTL:             t.ttl,
	})
	if err != nil {
		return fmt.Errorf("push delivery failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return pkgerrors.ErrEndpointGone
	case resp.StatusCode >= 300:
		return fmt.Errorf("push delivery failed: unexpected status %d", resp.StatusCode)
	}
	return nil
}
