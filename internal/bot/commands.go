package bot

// Command constants for Telegram bot commands.
const (
	CommandStart  = "/start"
	CommandHelp   = "/help"
	CommandStatus = "/status"

	CommandBan        = "/ban"
	CommandUnban      = "/unban"
	CommandSendMsg    = "/sendmsg"
	CommandSendMsgAll = "/sendmsgall"
)

// Callback prefix constants for inline button interactions.
const (
	CallbackShowCredits   = "show_credits"
	CallbackConvertPrefix = "convert_"
)
