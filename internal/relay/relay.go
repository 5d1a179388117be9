// Package relay forwards packets received over the air to a Redis channel,
// turning a node into a gateway for services that cannot reach the radio.
package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/headblockhead/lorafhss"
)

// publishTimeout bounds each publish. Publishes run on the node's event goroutine.
const publishTimeout = time.Second

// Event is the JSON document published for each received packet.
type Event struct {
	Kind        string    `json:"kind"`
	Source      uint16    `json:"source"`
	Destination uint16    `json:"destination"`
	PacketID    uint16    `json:"packet_id"`
	Payload     []byte    `json:"payload"`
	SNR         float64   `json:"snr"`
	RSSI        float64   `json:"rssi"`
	ReceivedAt  time.Time `json:"received_at"`
}

// NewEvent describes m as received at t.
func NewEvent(m lorafhss.Message, t time.Time) Event {
	return Event{
		Kind:        m.Header.Kind.String(),
		Source:      m.Header.Source,
		Destination: m.Header.Destination,
		PacketID:    m.Header.PacketID,
		Payload:     m.Payload,
		SNR:         m.Quality.SNR,
		RSSI:        m.Quality.RSSI,
		ReceivedAt:  t.UTC(),
	}
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Relay is a lorafhss.Handler that publishes requests and broadcasts.
// Next, if set, is called after each publish.
type Relay struct {
	client  publisher
	channel string
	log     logrus.FieldLogger
	now     func() time.Time

	Next lorafhss.Handler
}

// New connects to the Redis server at addr.
func New(addr, channel string, log logrus.FieldLogger) *Relay {
	return newRelay(redis.NewClient(&redis.Options{Addr: addr}), channel, log)
}

func newRelay(client publisher, channel string, log logrus.FieldLogger) *Relay {
	return &Relay{
		client:  client,
		channel: channel,
		log:     log.WithField("channel", channel),
		now:     time.Now,
	}
}

// Ping checks the server is reachable.
func (r *Relay) Ping(ctx context.Context) error {
	if c, ok := r.client.(*redis.Client); ok {
		return c.Ping(ctx).Err()
	}
	return nil
}

// Close releases the connection.
func (r *Relay) Close() error {
	if c, ok := r.client.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}

func (r *Relay) publish(m lorafhss.Message) {
	data, err := json.Marshal(NewEvent(m, r.now()))
	if err != nil {
		r.log.WithError(err).Error("encode event")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	receivers, err := r.client.Publish(ctx, r.channel, data).Result()
	if err != nil {
		r.log.WithError(err).Warn("publish failed")
		return
	}
	r.log.WithFields(logrus.Fields{"source": m.Header.Source, "receivers": receivers}).Debug("published")
}

func (r *Relay) OnRequestReceived(m lorafhss.Message) {
	r.publish(m)
	if r.Next != nil {
		r.Next.OnRequestReceived(m)
	}
}

func (r *Relay) OnBroadcastReceived(m lorafhss.Message) {
	r.publish(m)
	if r.Next != nil {
		r.Next.OnBroadcastReceived(m)
	}
}

func (r *Relay) OnTransmitComplete() {
	if r.Next != nil {
		r.Next.OnTransmitComplete()
	}
}
