package dispatcher

import (
	"context"
	"testing"

	"github.com/matryer/is"

	"github.com/voiceagent/runtime/pkg/job"
)

func TestParseJobPayloadRequiresFields(t *testing.T) {
	is := is.New(t)

	_, err := parseJobPayload(map[string]any{})
	is.True(err != nil)

	_, err = parseJobPayload(map[string]any{"job_id": "j1"})
	is.True(err != nil) // missing room_name

	_, err = parseJobPayload(map[string]any{"job_id": "j1", "room_name": "r1"})
	is.True(err != nil) // missing room_token
}

func TestParseJobPayloadAcceptsComplete(t *testing.T) {
	is := is.New(t)

	p, err := parseJobPayload(map[string]any{
		"job_id":     "j1",
		"room_name":  "r1",
		"room_token": "tok",
		"metadata":   `{"phone_number":"+15551234567"}`,
	})
	is.NoErr(err)
	is.Equal(p.JobID, "j1")
	is.Equal(p.RoomName, "r1")
	is.Equal(p.RoomToken, "tok")
	is.Equal(p.Metadata, `{"phone_number":"+15551234567"}`)
}

func TestParseJobPayloadMetadataOptional(t *testing.T) {
	is := is.New(t)

	p, err := parseJobPayload(map[string]any{
		"job_id":     "j1",
		"room_name":  "r1",
		"room_token": "tok",
	})
	is.NoErr(err)
	is.Equal(p.Metadata, "")
}

func TestNewDefaultsLogger(t *testing.T) {
	is := is.New(t)

	d := New(Deps{})
	is.True(d.log != nil)
	is.Equal(d.ActiveSessions(), 0)
}

func TestDialCalleeRequiresDialer(t *testing.T) {
	is := is.New(t)

	d := New(Deps{})
	err := d.dialCallee(context.Background(), d.log,
		jobPayload{JobID: "j1", RoomName: "r1"},
		job.Metadata{PhoneNumber: "+15551234567"})
	is.True(err != nil) // no dialer configured
}
