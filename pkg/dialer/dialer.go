// Package dialer implements the Outbound Dialer: it asks the LiveKit SIP
// bridge to place a call to an E.164 number and joins the resulting SIP
// participant into a room, per spec.md §4.2. It is grounded on
// pkg/job/room.go's lksdk usage (RoomConfig/Room wiring a LiveKit
// connection) and extends it to the SIP-specific RoomServiceClient the
// teacher never needed, since the teacher only ever joined rooms a
// human dialed into.
package dialer

import (
	"context"
	"fmt"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// Config points the Dialer at a LiveKit deployment and its SIP trunk.
type Config struct {
	URL             string
	APIKey          string
	APISecret       string
	OutboundTrunkID string
}

// Dialer places outbound SIP calls through LiveKit's SIP bridge.
type Dialer struct {
	cfg       Config
	sipClient *lksdk.SIPClient
}

// New constructs a Dialer from Config, validating that the fields a call
// to Dial needs are all present.
func New(cfg Config) (*Dialer, error) {
	if cfg.URL == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("dialer: URL, APIKey and APISecret are required")
	}
	if cfg.OutboundTrunkID == "" {
		return nil, fmt.Errorf("dialer: OutboundTrunkID is required")
	}
	return &Dialer{
		cfg:       cfg,
		sipClient: lksdk.NewSIPClient(cfg.URL, cfg.APIKey, cfg.APISecret),
	}, nil
}

// Participant describes the SIP participant LiveKit created for a
// successfully placed call.
type Participant struct {
	ParticipantID       string
	ParticipantIdentity string
	RoomName            string
	SIPCallID           string
}

// DialError wraps a failed outbound call attempt with the SIP status
// LiveKit reported, so callers can distinguish "number didn't answer"
// from "trunk misconfigured" without string-matching the error text.
type DialError struct {
	StatusCode int32
	Status     string
}

func (e *DialError) Error() string {
	return fmt.Sprintf("outbound dial failed: sip status %d (%s)", e.StatusCode, e.Status)
}

// DialOptions configures one call placement.
type DialOptions struct {
	RoomName            string
	CalleeE164          string
	ParticipantIdentity string
	ParticipantName     string
	// RingTimeout bounds how long LiveKit waits for the call to be
	// answered before giving up; zero uses the SIP bridge's default.
	RingTimeout time.Duration
}

// Dial asks the LiveKit SIP bridge to call CalleeE164 and join it into
// RoomName as a participant. It returns once LiveKit reports the
// participant was created; it does not wait for the callee to answer.
//
// Dial performs no retry of its own: a failed attempt is returned as the
// CreateSIPParticipant error wrapped with fmt.Errorf. Dial does not build
// a *DialError, so no SIP status code or reason is attached to the error.
// Retry policy is the caller's (dispatcher's) responsibility.
func (d *Dialer) Dial(ctx context.Context, opts DialOptions) (*Participant, error) {
	if opts.RoomName == "" {
		return nil, fmt.Errorf("dialer: RoomName is required")
	}
	if opts.CalleeE164 == "" {
		return nil, fmt.Errorf("dialer: CalleeE164 is required")
	}
	identity := opts.ParticipantIdentity
	if identity == "" {
		identity = "sip-" + opts.CalleeE164
	}

	req := &livekit.CreateSIPParticipantRequest{
		SipTrunkId:          d.cfg.OutboundTrunkID,
		SipCallTo:           opts.CalleeE164,
		RoomName:            opts.RoomName,
		ParticipantIdentity: identity,
		ParticipantName:     opts.ParticipantName,
		PlayRingtone:        false,
	}
	if opts.RingTimeout > 0 {
		req.RingingTimeout = int32(opts.RingTimeout / time.Second)
	}

	info, err := d.sipClient.CreateSIPParticipant(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("dialer: create sip participant: %w", err)
	}

	return &Participant{
		ParticipantID:       info.ParticipantId,
		ParticipantIdentity: info.ParticipantIdentity,
		RoomName:            info.RoomName,
		SIPCallID:           info.SipCallId,
	}, nil
}

// TransferCall asks the SIP bridge to transfer an in-progress call to a
// new destination (a human agent's number, per the transferCall tool in
// spec.md §5.2). The call leaves the room once the transfer completes.
func (d *Dialer) TransferCall(ctx context.Context, roomName, participantIdentity, transferTo string) error {
	if roomName == "" || participantIdentity == "" {
		return fmt.Errorf("dialer: roomName and participantIdentity are required")
	}
	if transferTo == "" {
		return fmt.Errorf("dialer: transferTo is required")
	}

	_, err := d.sipClient.TransferSIPParticipant(ctx, &livekit.TransferSIPParticipantRequest{
		RoomName:            roomName,
		ParticipantIdentity: participantIdentity,
		TransferTo:          transferTo,
	})
	if err != nil {
		return fmt.Errorf("dialer: transfer sip participant: %w", err)
	}
	return nil
}
