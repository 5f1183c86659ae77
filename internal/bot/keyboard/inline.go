// Package keyboard builds the inline keyboards used by the bot.
package keyboard

import (
	"fmt"

	telebot "gopkg.in/telebot.v3"
)

// CallbackDataLimitBytes is the Bot API ceiling for callback payloads.
const CallbackDataLimitBytes = 64

// InlineButton is a lightweight inline keyboard button definition used by the builder.
type InlineButton struct {
	Text string
	Data string
}

// InlineKeyboardBuilder accumulates rows of InlineButton definitions before rendering telebot markup.
type InlineKeyboardBuilder struct {
	rows [][]InlineButton
}

// NewInlineKeyboard creates an empty builder.
func NewInlineKeyboard() *InlineKeyboardBuilder {
	return &InlineKeyboardBuilder{rows: make([][]InlineButton, 0)}
}

// AddRow appends a new row of buttons.
func (b *InlineKeyboardBuilder) AddRow(buttons ...InlineButton) *InlineKeyboardBuilder {
	if len(buttons) == 0 {
		return b
	}

	row := make([]InlineButton, len(buttons))
	copy(row, buttons)
	b.rows = append(b.rows, row)
	return b
}

// Build renders telebot markup, rejecting callback payloads over the API limit.
func (b *InlineKeyboardBuilder) Build() (*telebot.ReplyMarkup, error) {
	inline := make([][]telebot.InlineButton, len(b.rows))
	for i, row := range b.rows {
		inline[i] = make([]telebot.InlineButton, len(row))
		for j, btn := range row {
			if len(btn.Data) > CallbackDataLimitBytes {
				return nil, fmt.Errorf("callback data %q exceeds %d bytes", btn.Data, CallbackDataLimitBytes)
			}
			inline[i][j] = telebot.InlineButton{
				Text: btn.Text,
				Data: btn.Data,
			}
		}
	}

	return &telebot.ReplyMarkup{InlineKeyboard: inline}, nil
}
