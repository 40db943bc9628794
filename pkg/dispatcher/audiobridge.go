// audiobridge.go wires a session's MicIn/TTSOut channel pair to a real
// LiveKit room, grounded on agents/worker.go's
// handleAudioTrack/publishAudioResponse pair — the teacher's RTP ReadRTP
// loop feeding a decoder, and its LocalSampleTrack publish loop for TTS
// playout.
//
// The teacher decodes/encodes Opus via github.com/hraban/opus, which is
// not in the teacher's own go.mod (like github.com/chriscow/minds, it is
// a phantom import with nothing to wire it to — see DESIGN.md). This
// bridge instead negotiates raw linear PCM (audio/L16), a standard RTP
// payload pion/webrtc/v3 already supports natively, so no additional
// codec dependency is needed.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/voiceagent/runtime/pkg/rtc"
)

const bridgeSampleRate = 48000
const bridgeChannels = 1

// l16Capability is the RTP codec capability this bridge publishes and
// expects to receive: 16-bit linear PCM, mono, 48kHz.
var l16Capability = webrtc.RTPCodecCapability{
	MimeType:    "audio/L16",
	ClockRate:   bridgeSampleRate,
	Channels:    bridgeChannels,
	SDPFmtpLine: "",
}

// RoomAudioBridge owns the MicIn/TTSOut channels a Session consumes and
// the goroutines that move audio between them and the LiveKit room's
// published/subscribed tracks.
type RoomAudioBridge struct {
	log *slog.Logger

	micIn  chan rtc.AudioFrame
	ttsOut chan rtc.AudioFrame

	provider *samplesProvider
}

// NewRoomAudioBridge allocates the bridge's channels. Attach subscribed
// remote tracks with AttachRemoteTrack and publish the local track with
// PublishTo once the room is connected.
func NewRoomAudioBridge(log *slog.Logger) *RoomAudioBridge {
	return &RoomAudioBridge{
		log:      log,
		micIn:    make(chan rtc.AudioFrame, 50),
		ttsOut:   make(chan rtc.AudioFrame, 50),
		provider: newSamplesProvider(),
	}
}

// MicIn is the channel the session reads caller audio from.
func (b *RoomAudioBridge) MicIn() <-chan rtc.AudioFrame { return b.micIn }

// TTSOut is the channel the session writes synthesized audio to.
func (b *RoomAudioBridge) TTSOut() chan<- rtc.AudioFrame { return b.ttsOut }

// AttachRemoteTrack starts forwarding RTP from a subscribed caller audio
// track into MicIn, converting each packet's payload into 10ms frames.
// It runs until ctx is cancelled or the track ends.
func (b *RoomAudioBridge) AttachRemoteTrack(ctx context.Context, track *webrtc.TrackRemote) {
	frameBytes := bridgeSampleRate / 100 * bridgeChannels * 2
	buf := make([]byte, 0, frameBytes*2)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			b.log.Debug("remote audio track ended", slog.String("error", err.Error()))
			return
		}
		buf = append(buf, pkt.Payload...)

		for len(buf) >= frameBytes {
			chunk := make([]byte, frameBytes)
			copy(chunk, buf[:frameBytes])
			buf = buf[frameBytes:]

			frame, err := rtc.NewAudioFrame(chunk, bridgeSampleRate, bridgeChannels, 0)
			if err != nil {
				b.log.Warn("dropping malformed audio frame", slog.String("error", err.Error()))
				continue
			}
			select {
			case b.micIn <- *frame:
			case <-ctx.Done():
				return
			default:
				b.log.Warn("mic input buffer full, dropping frame")
			}
		}
	}
}

// PublishTo creates and publishes the assistant's local audio track to
// the room, then forwards TTSOut frames to it until ctx is cancelled.
func (b *RoomAudioBridge) PublishTo(ctx context.Context, room *lksdk.Room) error {
	track, err := lksdk.NewLocalSampleTrack(l16Capability)
	if err != nil {
		return fmt.Errorf("audiobridge: create local track: %w", err)
	}
	if err := track.StartWrite(b.provider, nil); err != nil {
		return fmt.Errorf("audiobridge: start sample writer: %w", err)
	}

	_, err = room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   "assistant-voice",
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		return fmt.Errorf("audiobridge: publish track: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-b.ttsOut:
			if !ok {
				return nil
			}
			b.provider.push(frame)
		}
	}
}

// samplesProvider adapts a pushed stream of rtc.AudioFrame to
// lksdk.SampleProvider's pull-based NextSample, the shape
// lksdk.LocalSampleTrack.StartWrite requires.
type samplesProvider struct {
	frames chan rtc.AudioFrame
}

func newSamplesProvider() *samplesProvider {
	return &samplesProvider{frames: make(chan rtc.AudioFrame, 50)}
}

func (p *samplesProvider) push(frame rtc.AudioFrame) {
	select {
	case p.frames <- frame:
	default:
	}
}

// NextSample blocks for the next pushed frame, satisfying
// webrtc/pkg/media.Writer's pull model.
func (p *samplesProvider) NextSample(ctx context.Context) (media.Sample, error) {
	select {
	case f := <-p.frames:
		return media.Sample{Data: f.Data, Duration: f.Duration()}, nil
	case <-ctx.Done():
		return media.Sample{}, ctx.Err()
	}
}

func (p *samplesProvider) OnBind() error { return nil }

func (p *samplesProvider) OnUnbind() error { return nil }
