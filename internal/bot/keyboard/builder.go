package keyboard

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"
)

// Builder creates the keyboards attached to bot replies.
type Builder struct {
	log *slog.Logger
}

// NewBuilder returns a new Builder instance.
func NewBuilder(log *slog.Logger) *Builder {
	return &Builder{log: log}
}

// FormatButtons offers the output format choices for an uploaded photo.
func (b *Builder) FormatButtons() *telebot.ReplyMarkup {
	markup, err := NewInlineKeyboard().
		AddRow(
			InlineButton{Text: "Transparent PNG 🖼", Data: "convert_png"},
			InlineButton{Text: "White JPG 📄", Data: "convert_jpg"},
		).
		Build()
	if err != nil {
		if b.log != nil {
			b.log.Error("failed to build format keyboard", slog.Any("error", err))
		}
		return &telebot.ReplyMarkup{}
	}

	return markup
}

// ResultButtons is attached to a delivered result message.
func (b *Builder) ResultButtons() *telebot.ReplyMarkup {
	markup, err := NewInlineKeyboard().
		AddRow(InlineButton{Text: "Credits left 💳", Data: "show_credits"}).
		Build()
	if err != nil {
		if b.log != nil {
			b.log.Error("failed to build result keyboard", slog.Any("error", err))
		}
		return &telebot.ReplyMarkup{}
	}

	return markup
}
