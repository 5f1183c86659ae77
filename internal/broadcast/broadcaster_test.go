package broadcast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	telebot "gopkg.in/telebot.v3"
)

type fakeSender struct {
	failFor map[int64]bool
	sentTo  []int64
}

func (f *fakeSender) Send(to telebot.Recipient, _ interface{}, _ ...interface{}) (*telebot.Message, error) {
	id, ok := to.(telebot.ChatID)
	if !ok {
		return nil, errors.New("unexpected recipient type")
	}

	if f.failFor[int64(id)] {
		return nil, errors.New("Forbidden: bot was blocked by the user")
	}

	f.sentTo = append(f.sentTo, int64(id))
	return &telebot.Message{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendToAll_FailureIsolation(t *testing.T) {
	sender := &fakeSender{failFor: map[int64]bool{2: true}}
	b := New(sender, testLogger())

	report := b.SendToAll(context.Background(), []int64{1, 2, 3}, "hello")

	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Failed)
	// users after the failing one still receive the message
	assert.Equal(t, []int64{1, 3}, sender.sentTo)
}

func TestSendToAll_EmptyRecipientList(t *testing.T) {
	b := New(&fakeSender{}, testLogger())

	report := b.SendToAll(context.Background(), nil, "hello")

	assert.Zero(t, report.Sent)
	assert.Zero(t, report.Failed)
}

func TestSendToAll_AllFail(t *testing.T) {
	sender := &fakeSender{failFor: map[int64]bool{1: true, 2: true}}
	b := New(sender, testLogger())

	report := b.SendToAll(context.Background(), []int64{1, 2}, "hello")

	assert.Zero(t, report.Sent)
	assert.Equal(t, 2, report.Failed)
}

func TestSendToAll_CancelledContextCountsRestAsFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := New(&fakeSender{}, testLogger())
	report := b.SendToAll(ctx, []int64{1, 2, 3}, "hello")

	assert.Zero(t, report.Sent)
	assert.Equal(t, 3, report.Failed)
}
