package signaling

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	delivered [][]byte
	err       error
}

func (p *fakePeer) Deliver(payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.delivered = append(p.delivered, payload)
	return nil
}

func TestRelayToConnectedPeer(t *testing.T) {
	r := NewRegistry()
	p := &fakePeer{}
	r.Register(9, p)

	require.True(t, r.Relay(9, []byte(`{"recipient_id":9,"sdp":"offer"}`)))
	require.Len(t, p.delivered, 1)
	require.JSONEq(t, `{"recipient_id":9,"sdp":"offer"}`, string(p.delivered[0]))
}

func TestRelayToAbsentPeerIsNotAnError(t *testing.T) {
	r := NewRegistry()
	require.False(t, r.Relay(9, []byte(`{"recipient_id":9}`)))
}

func TestRegisterReplacesPreviousConnection(t *testing.T) {
	r := NewRegistry()
	old := &fakePeer{}
	r.Register(5, old)

	replacement := &fakePeer{}
	r.Register(5, replacement)

	require.True(t, r.Relay(5, []byte(`x`)))
	require.Empty(t, old.delivered, "replaced connection must no longer be a relay target")
	require.Len(t, replacement.delivered, 1)
}

func TestUnregisterOnlyClearsOwnBinding(t *testing.T) {
	r := NewRegistry()
	old := &fakePeer{}
	r.Register(5, old)

	replacement := &fakePeer{}
	r.Register(5, replacement)

	// The replaced connection's late teardown must not evict its successor.
	r.Unregister(5, old)
	require.True(t, r.Relay(5, []byte(`x`)))
	require.Len(t, replacement.delivered, 1)

	r.Unregister(5, replacement)
	require.False(t, r.Relay(5, []byte(`x`)))
}

func TestRelayFailedDeliveryReportsNotConnected(t *testing.T) {
	r := NewRegistry()
	r.Register(5, &fakePeer{err: errors.New("buffer full")})

	require.False(t, r.Relay(5, []byte(`x`)))
}

func TestRouteDropsPayloadWithoutRecipient(t *testing.T) {
	r := NewRegistry()
	recipient := &fakePeer{}
	r.Register(9, recipient)

	sender := NewClient(r, nil, 5, nil, zerolog.Nop())

	sender.route([]byte(`{"sdp":"offer"}`))
	require.Empty(t, recipient.delivered)

	sender.route([]byte(`not json`))
	require.Empty(t, recipient.delivered)

	sender.route([]byte(`{"recipient_id":9,"sdp":"offer"}`))
	require.Len(t, recipient.delivered, 1)
}

func TestDeliverAfterShutdownFailsWithoutPanic(t *testing.T) {
	r := NewRegistry()
	c := NewClient(r, nil, 5, nil, zerolog.Nop())
	r.Register(5, c)

	c.shutdown()
	require.False(t, r.Relay(5, []byte(`x`)))

	// Idempotent.
	c.shutdown()
}
