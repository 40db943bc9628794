package dispatcher

import (
	"context"
	"fmt"
	"sync"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v3"

	"github.com/voiceagent/runtime/pkg/config"
	"github.com/voiceagent/runtime/pkg/job"
)

// roomConn owns the job's LiveKit room connection for the duration of
// one session, queuing audio tracks subscribed before attachAudio wires
// up the bridge.
type roomConn struct {
	room *job.Room

	mu            sync.Mutex
	bridge        *RoomAudioBridge
	pendingTracks []*webrtc.TrackRemote
}

// connectRoom joins the LiveKit room a startJob signal names, using the
// room-join token the control plane minted for the agent participant.
func connectRoom(ctx context.Context, cfg config.Config, roomName, token string) (*roomConn, error) {
	rc := &roomConn{}

	r, err := job.NewRoom(ctx, job.RoomConfig{
		URL:      cfg.LiveKitURL,
		Token:    token,
		RoomName: roomName,
	})
	if err != nil {
		return nil, fmt.Errorf("allocate room: %w", err)
	}
	rc.room = r

	if err := r.Connect(job.RoomConfig{
		URL:          cfg.LiveKitURL,
		Token:        token,
		RoomName:     roomName,
		OnAudioTrack: rc.onAudioTrack,
	}); err != nil {
		return nil, fmt.Errorf("connect room %q: %w", roomName, err)
	}
	return rc, nil
}

// attachAudio wires the room's subscribed caller audio tracks into
// bridge.MicIn and publishes bridge.TTSOut as the assistant's track.
// Any remote audio track subscribed before this call returns is queued
// by onAudioTrack and drained here to avoid a race with fast joiners.
func (rc *roomConn) attachAudio(ctx context.Context, bridge *RoomAudioBridge) {
	rc.mu.Lock()
	rc.bridge = bridge
	pending := rc.pendingTracks
	rc.pendingTracks = nil
	rc.mu.Unlock()

	for _, t := range pending {
		go bridge.AttachRemoteTrack(ctx, t)
	}

	go func() {
		if err := bridge.PublishTo(ctx, rc.room.Raw()); err != nil {
			rc.room.Disconnect()
		}
	}()
}

func (rc *roomConn) onAudioTrack(track *webrtc.TrackRemote, participant *lksdk.RemoteParticipant) {
	rc.mu.Lock()
	bridge := rc.bridge
	if bridge == nil {
		rc.pendingTracks = append(rc.pendingTracks, track)
		rc.mu.Unlock()
		return
	}
	rc.mu.Unlock()
	go bridge.AttachRemoteTrack(context.Background(), track)
}

// Disconnect leaves the room.
func (rc *roomConn) Disconnect() error {
	return rc.room.Disconnect()
}

// watchParticipantLeft drains rc.room.Events until ctx is cancelled or
// the room disconnects (closing Events), calling onLeft the first time
// a remote participant disconnects. Per spec.md §4.4, that is the
// dispatcher's cue to end the session with ReasonParticipantLeft
// rather than leaving it running until the job's context is torn down
// externally.
func (rc *roomConn) watchParticipantLeft(ctx context.Context, onLeft func()) {
	for {
		select {
		case ev, ok := <-rc.room.Events:
			if !ok {
				return
			}
			if ev.Type == job.EventParticipantDisconnected {
				onLeft()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
