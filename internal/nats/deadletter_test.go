package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/SebastienMelki/causality-media/internal/events"
	"github.com/SebastienMelki/causality-media/media"
)

type fakeMsgPublisher struct {
	msgs []*nats.Msg
	err  error
}

func (f *fakeMsgPublisher) PublishMsg(_ context.Context, msg *nats.Msg, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, msg)
	return &jetstream.PubAck{Stream: "CAUSALITY_MEDIA_DLQ", Sequence: uint64(len(f.msgs))}, nil
}

func TestDeadLetter_PublishesWithHeaders(t *testing.T) {
	js := &fakeMsgPublisher{}
	d := NewDeadLetterPublisher(js, "", "app", nil, nil)

	env := testEnvelope(events.KindMedia, media.EventPlay)
	if err := d.DeadLetter(context.Background(), env, 10, "max attempts"); err != nil {
		t.Fatalf("DeadLetter: %v", err)
	}

	if len(js.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(js.msgs))
	}
	msg := js.msgs[0]
	if msg.Subject != "dlq.media.app.media.play" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if msg.Subject != d.Subject(env) {
		t.Errorf("Subject() = %q, published to %q", d.Subject(env), msg.Subject)
	}
	if got := msg.Header.Get(HeaderDLQOriginalSubject); got != "media.app.media.play" {
		t.Errorf("original subject header = %q", got)
	}
	if got := msg.Header.Get(HeaderDLQAttempts); got != "10" {
		t.Errorf("attempts header = %q", got)
	}
	if got := msg.Header.Get(HeaderDLQReason); got != "max attempts" {
		t.Errorf("reason header = %q", got)
	}

	decoded, err := Decode(msg.Data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded["id"] != "evt-1" {
		t.Errorf("decoded id = %v", decoded["id"])
	}
}

func TestDeadLetter_PublishError(t *testing.T) {
	d := NewDeadLetterPublisher(&fakeMsgPublisher{err: errors.New("no responders")}, "media", "app", nil, nil)
	if err := d.DeadLetter(context.Background(), testEnvelope(events.KindCustom, media.SummaryAd), 3, "x"); err == nil {
		t.Fatal("expected error")
	}
}
