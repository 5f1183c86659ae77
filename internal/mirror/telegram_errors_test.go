package mirror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	telebot "gopkg.in/telebot.v3"
)

func TestIsNotModified(t *testing.T) {
	assert.True(t, IsNotModified(&telebot.Error{Code: 400, Description: "Bad Request: message is not modified"}))
	assert.True(t, IsNotModified(errors.New("telegram: message is not modified (400)")))
	assert.False(t, IsNotModified(&telebot.Error{Code: 400, Description: "Bad Request: message to edit not found"}))
	assert.False(t, IsNotModified(nil))
}

func TestIsMessageGone(t *testing.T) {
	tests := []struct {
		desc string
		want bool
	}{
		{"Bad Request: message to edit not found", true},
		{"Bad Request: chat not found", true},
		{"Forbidden: bot was kicked from the channel chat", true},
		{"Bad Request: message is not modified", false},
		{"Too Many Requests: retry after 5", false},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			err := &telebot.Error{Code: 400, Description: tt.desc}
			assert.Equal(t, tt.want, IsMessageGone(err))
		})
	}
}

func TestIsMessageGone_Wrapped(t *testing.T) {
	cause := &telebot.Error{Code: 400, Description: "Bad Request: message to edit not found"}
	assert.True(t, IsMessageGone(fmt.Errorf("edit mirror message: %w", cause)))
}
