package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/clearcut-bot/clearcut-bot/internal/broadcast"
	"github.com/clearcut-bot/clearcut-bot/internal/domain"
	apperrors "github.com/clearcut-bot/clearcut-bot/internal/errors"
	"github.com/clearcut-bot/clearcut-bot/internal/mirror"
	"github.com/clearcut-bot/clearcut-bot/internal/registry"
	"github.com/clearcut-bot/clearcut-bot/pkg/config"
)

type fakeContext struct {
	telebot.Context

	sender    *telebot.User
	args      []string
	message   *telebot.Message
	callback  *telebot.Callback
	sent      []interface{}
	responses []*telebot.CallbackResponse
}

func (f *fakeContext) Sender() *telebot.User       { return f.sender }
func (f *fakeContext) Args() []string              { return f.args }
func (f *fakeContext) Message() *telebot.Message   { return f.message }
func (f *fakeContext) Callback() *telebot.Callback { return f.callback }

func (f *fakeContext) Send(what interface{}, _ ...interface{}) error {
	f.sent = append(f.sent, what)
	return nil
}

func (f *fakeContext) Respond(resp ...*telebot.CallbackResponse) error {
	f.responses = append(f.responses, resp...)
	return nil
}

type fakeChannel struct {
	sent    []string
	failFor map[int64]bool
}

func (f *fakeChannel) Send(to telebot.Recipient, what interface{}, _ ...interface{}) (*telebot.Message, error) {
	if id, ok := to.(telebot.ChatID); ok && f.failFor[int64(id)] {
		return nil, errors.New("Forbidden: bot was blocked by the user")
	}

	if text, ok := what.(string); ok {
		f.sent = append(f.sent, text)
	}
	return &telebot.Message{ID: 1}, nil
}

func (f *fakeChannel) Edit(telebot.Editable, interface{}, ...interface{}) (*telebot.Message, error) {
	return &telebot.Message{}, nil
}

type fakeRepo struct {
	records map[int64]*domain.UserRecord
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[int64]*domain.UserRecord)}
}

func (r *fakeRepo) FindByID(_ context.Context, telegramID int64) (*domain.UserRecord, error) {
	rec, ok := r.records[telegramID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *rec
	return &copied, nil
}

func (r *fakeRepo) Create(_ context.Context, rec *domain.UserRecord) error {
	copied := *rec
	r.records[rec.TelegramID] = &copied
	return nil
}

func (r *fakeRepo) Update(_ context.Context, rec *domain.UserRecord) error {
	copied := *rec
	r.records[rec.TelegramID] = &copied
	return nil
}

func (r *fakeRepo) SetMirrorMessageID(_ context.Context, telegramID, messageID int64) error {
	if rec, ok := r.records[telegramID]; ok {
		rec.MirrorMessageID = messageID
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type adminFixture struct {
	handler *AdminHandler
	banList *registry.BanList
	reg     *registry.Registry
	repo    *fakeRepo
	channel *fakeChannel
}

func setupAdmin(t *testing.T) *adminFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := testLogger()
	banList := registry.NewBanList(client, log)
	reg := registry.NewRegistry(client, log)
	repo := newFakeRepo()
	channel := &fakeChannel{failFor: make(map[int64]bool)}
	m := mirror.New(channel, repo, -100, log)
	broadcaster := broadcast.New(channel, log)
	botCfg := &config.BotConfig{AdminIDs: []int64{1}, DailyCredits: 3}

	return &adminFixture{
		handler: NewAdminHandler(banList, reg, repo, m, broadcaster, channel, botCfg, log),
		banList: banList,
		reg:     reg,
		repo:    repo,
		channel: channel,
	}
}

func adminCtx(args ...string) *fakeContext {
	return &fakeContext{sender: &telebot.User{ID: 1}, args: args}
}

func TestAdminOnly_DropsNonAdminsSilently(t *testing.T) {
	f := setupAdmin(t)

	called := false
	wrapped := f.handler.AdminOnly(func(telebot.Context) error {
		called = true
		return nil
	})

	c := &fakeContext{sender: &telebot.User{ID: 999}, args: []string{"42"}}
	require.NoError(t, wrapped(c))
	assert.False(t, called)
	assert.Empty(t, c.sent)
}

func TestHandleBan(t *testing.T) {
	f := setupAdmin(t)
	f.repo.records[42] = &domain.UserRecord{TelegramID: 42, FirstName: "Alice"}

	c := adminCtx("42")
	require.NoError(t, f.handler.HandleBan(c))

	banned, err := f.banList.Contains(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, banned)

	assert.True(t, f.repo.records[42].Banned)
	require.Len(t, c.sent, 1)
	assert.Equal(t, "User 42 has been added to the ban list.", c.sent[0])

	// the admin action was logged to the channel
	assert.Contains(t, f.channel.sent, "Admin 1 banned user 42")
}

func TestHandleBan_UserWithoutRecord(t *testing.T) {
	f := setupAdmin(t)

	c := adminCtx("77")
	require.NoError(t, f.handler.HandleBan(c))

	banned, err := f.banList.Contains(context.Background(), 77)
	require.NoError(t, err)
	assert.True(t, banned)
}

func TestHandleBan_Usage(t *testing.T) {
	f := setupAdmin(t)

	for _, args := range [][]string{nil, {"not-a-number"}, {"1", "2"}} {
		err := f.handler.HandleBan(adminCtx(args...))
		require.Error(t, err)

		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "Usage: /ban <user_id>", appErr.UserMessage)
	}
}

func TestHandleUnban(t *testing.T) {
	f := setupAdmin(t)
	f.repo.records[42] = &domain.UserRecord{TelegramID: 42, Banned: true}
	require.NoError(t, f.banList.Add(context.Background(), 42))

	c := adminCtx("42")
	require.NoError(t, f.handler.HandleUnban(c))

	banned, err := f.banList.Contains(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, banned)
	assert.False(t, f.repo.records[42].Banned)

	require.Len(t, c.sent, 1)
	assert.Contains(t, c.sent[0], "User 42 has been removed from the ban list.")
}

func TestHandleSendMsg(t *testing.T) {
	f := setupAdmin(t)

	c := adminCtx("42", "hello", "there")
	require.NoError(t, f.handler.HandleSendMsg(c))

	assert.Contains(t, f.channel.sent, "hello there")
	require.Len(t, c.sent, 1)
	assert.Equal(t, "Message sent successfully.", c.sent[0])
}

func TestHandleSendMsg_DeliveryFailureReported(t *testing.T) {
	f := setupAdmin(t)
	f.channel.failFor[42] = true

	c := adminCtx("42", "hello")
	require.NoError(t, f.handler.HandleSendMsg(c))

	require.Len(t, c.sent, 1)
	assert.Contains(t, c.sent[0], "Could not send message:")
}

func TestHandleSendMsgAll(t *testing.T) {
	f := setupAdmin(t)
	ctx := context.Background()

	for _, id := range []int64{10, 11, 12} {
		require.NoError(t, f.reg.Add(ctx, id))
	}
	f.channel.failFor[11] = true

	c := adminCtx("big", "announcement")
	require.NoError(t, f.handler.HandleSendMsgAll(c))

	require.Len(t, c.sent, 2)
	assert.Equal(t, "Starting broadcast to 3 users. This may take time.", c.sent[0])
	assert.Equal(t, fmt.Sprintf("Broadcast complete.\nSuccessfully sent: %d\nFailed: %d", 2, 1), c.sent[1])
}

func TestHandleSendMsgAll_Usage(t *testing.T) {
	f := setupAdmin(t)

	err := f.handler.HandleSendMsgAll(adminCtx())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Usage: /sendmsgall <message>", appErr.UserMessage)
}
