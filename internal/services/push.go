package services

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"
	"github.com/sideshow/apns2/payload"
)

// PushNotifier delivers best-effort APNs alerts to recipients who are not
// connected to the hub. Delivery failures are logged, never propagated:
// the message or image is already persisted and will be picked up by the
// recipient's next poll.
type PushNotifier struct {
	client *apns2.Client
	topic  string
}

// NewPushNotifier creates an APNs notifier from a p12 certificate
func NewPushNotifier(certPath, certPassword, topic string, production bool) (*PushNotifier, error) {
	cert, err := certificate.FromP12File(certPath, certPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs certificate: %w", err)
	}

	client := apns2.NewClient(cert)
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &PushNotifier{
		client: client,
		topic:  topic,
	}, nil
}

// Notify sends one alert to a device token
func (p *PushNotifier) Notify(deviceToken, alert string) {
	notification := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       p.topic,
		Payload:     payload.NewPayload().Alert(alert).Sound("default"),
	}

	res, err := p.client.Push(notification)
	if err != nil {
		log.Error().Err(err).Msg("APNs push failed")
		return
	}
	if !res.Sent() {
		log.Warn().
			Int("status", res.StatusCode).
			Str("reason", res.Reason).
			Msg("APNs push rejected")
	}
}
