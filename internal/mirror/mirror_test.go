package mirror

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/clearcut-bot/clearcut-bot/internal/domain"
)

type fakeChannel struct {
	sends     int
	edits     int
	nextMsgID int

	sendErr  error
	editErrs []error // consumed in order, nil means success
}

func (f *fakeChannel) Send(telebot.Recipient, interface{}, ...interface{}) (*telebot.Message, error) {
	f.sends++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextMsgID++
	return &telebot.Message{ID: f.nextMsgID}, nil
}

func (f *fakeChannel) Edit(telebot.Editable, interface{}, ...interface{}) (*telebot.Message, error) {
	f.edits++
	if len(f.editErrs) == 0 {
		return &telebot.Message{}, nil
	}
	err := f.editErrs[0]
	f.editErrs = f.editErrs[1:]
	if err != nil {
		return nil, err
	}
	return &telebot.Message{}, nil
}

type fakeStore struct {
	ids      map[int64]int64
	storeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{ids: make(map[int64]int64)}
}

func (f *fakeStore) SetMirrorMessageID(_ context.Context, telegramID, messageID int64) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.ids[telegramID] = messageID
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSync_CreatesOnFirstPublish(t *testing.T) {
	api := &fakeChannel{}
	store := newFakeStore()
	m := New(api, store, -100, testLogger())

	rec := &domain.UserRecord{TelegramID: 42, FirstName: "Alice"}

	require.NoError(t, m.Sync(context.Background(), rec))

	assert.Equal(t, 1, api.sends)
	assert.Zero(t, api.edits)
	assert.Equal(t, int64(1), rec.MirrorMessageID)
	assert.Equal(t, int64(1), store.ids[42])
}

func TestSync_EditsExistingMessage(t *testing.T) {
	api := &fakeChannel{}
	store := newFakeStore()
	m := New(api, store, -100, testLogger())

	rec := &domain.UserRecord{TelegramID: 42, MirrorMessageID: 7}

	require.NoError(t, m.Sync(context.Background(), rec))

	assert.Zero(t, api.sends)
	assert.Equal(t, 1, api.edits)
	assert.Equal(t, int64(7), rec.MirrorMessageID)
}

func TestSync_NotModifiedIsSuccess(t *testing.T) {
	api := &fakeChannel{editErrs: []error{
		&telebot.Error{Code: 400, Description: "Bad Request: message is not modified"},
	}}
	store := newFakeStore()
	m := New(api, store, -100, testLogger())

	rec := &domain.UserRecord{TelegramID: 42, MirrorMessageID: 7}

	require.NoError(t, m.Sync(context.Background(), rec))
	assert.Equal(t, int64(7), rec.MirrorMessageID)
	assert.Zero(t, api.sends)
}

func TestSync_RecreatesWhenMessageGone(t *testing.T) {
	api := &fakeChannel{
		nextMsgID: 100,
		editErrs: []error{
			&telebot.Error{Code: 400, Description: "Bad Request: message to edit not found"},
		},
	}
	store := newFakeStore()
	m := New(api, store, -100, testLogger())

	rec := &domain.UserRecord{TelegramID: 42, MirrorMessageID: 7}

	require.NoError(t, m.Sync(context.Background(), rec))

	assert.Equal(t, 1, api.edits)
	assert.Equal(t, 1, api.sends)
	assert.Equal(t, int64(101), rec.MirrorMessageID)
	assert.Equal(t, int64(101), store.ids[42])
}

func TestSync_RecreateIsBoundedToOneAttempt(t *testing.T) {
	// edit fails with "gone", then the replacement create fails too;
	// Sync must stop instead of retrying forever
	api := &fakeChannel{
		sendErr: errors.New("channel unavailable"),
		editErrs: []error{
			&telebot.Error{Code: 400, Description: "Bad Request: message to edit not found"},
		},
	}
	store := newFakeStore()
	m := New(api, store, -100, testLogger())

	rec := &domain.UserRecord{TelegramID: 42, MirrorMessageID: 7}

	err := m.Sync(context.Background(), rec)
	require.Error(t, err)

	assert.Equal(t, 1, api.edits)
	assert.Equal(t, 1, api.sends)
	assert.Equal(t, int64(0), rec.MirrorMessageID)
}

func TestSync_EditFailurePropagates(t *testing.T) {
	api := &fakeChannel{editErrs: []error{
		&telebot.Error{Code: 429, Description: "Too Many Requests: retry after 5"},
	}}
	m := New(api, newFakeStore(), -100, testLogger())

	rec := &domain.UserRecord{TelegramID: 42, MirrorMessageID: 7}

	err := m.Sync(context.Background(), rec)
	require.Error(t, err)
	assert.Equal(t, int64(7), rec.MirrorMessageID)
	assert.Zero(t, api.sends)
}

func TestLogEvent_NeverPropagatesFailure(t *testing.T) {
	api := &fakeChannel{sendErr: errors.New("chat not found")}
	m := New(api, newFakeStore(), -100, testLogger())

	// must not panic and has no error to return
	m.LogEvent(context.Background(), "Admin 1 banned user 42")
	assert.Equal(t, 1, api.sends)
}

func TestSnapshot(t *testing.T) {
	tests := []struct {
		name string
		rec  domain.UserRecord
		want []string
	}{
		{
			name: "with username",
			rec:  domain.UserRecord{TelegramID: 42, FirstName: "Alice", Username: "alice", Credits: 2, Violations: 1},
			want: []string{"<b>User:</b> Alice", "@alice", "<code>42</code>", "<b>Credits Left:</b> 2", "<b>Violations:</b> 1", "<b>Banned:</b> No"},
		},
		{
			name: "without username",
			rec:  domain.UserRecord{TelegramID: 42, FirstName: "Bob"},
			want: []string{"No Username"},
		},
		{
			name: "banned",
			rec:  domain.UserRecord{TelegramID: 42, FirstName: "Mallory", Banned: true},
			want: []string{"<b>Banned:</b> Yes"},
		},
		{
			name: "html escaped",
			rec:  domain.UserRecord{TelegramID: 42, FirstName: "<script>"},
			want: []string{"&lt;script&gt;"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Snapshot(&tt.rec)
			for _, fragment := range tt.want {
				assert.Contains(t, got, fragment)
			}
		})
	}
}
