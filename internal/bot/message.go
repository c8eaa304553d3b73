package bot

import (
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngguard/internal/db"
)

// ClassifyMedia returns the first matching lockable type of the message, or "" for plain text.
func ClassifyMedia(msg *api.Message) db.MediaType {
	if msg == nil {
		return ""
	}
	switch {
	case len(msg.Photo) > 0:
		return db.MediaPhoto
	case msg.Video != nil:
		return db.MediaVideo
	case msg.Document != nil && msg.Animation == nil:
		return db.MediaDocument
	case msg.Sticker != nil:
		return db.MediaSticker
	case msg.Voice != nil:
		return db.MediaVoice
	case msg.VideoNote != nil:
		return db.MediaVideoNote
	case msg.Animation != nil:
		return db.MediaAnimation
	case msg.Contact != nil:
		return db.MediaContact
	case msg.Location != nil:
		return db.MediaLocation
	case msg.Poll != nil:
		return db.MediaPoll
	case msg.ForwardOrigin != nil:
		return db.MediaForward
	case msg.ReplyToMessage != nil && !isTopicRoot(msg):
		return db.MediaReply
	default:
		return ""
	}
}

// In forum chats every message replies to the topic's root; that is not a user reply.
func isTopicRoot(msg *api.Message) bool {
	return msg.IsTopicMessage && msg.ReplyToMessage != nil && msg.ReplyToMessage.MessageID == msg.MessageThreadID
}

// MessageText returns the text or caption of a message.
func MessageText(msg *api.Message) string {
	if msg == nil {
		return ""
	}
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func GetUN(user *api.User) string {
	if user == nil {
		return ""
	}
	userName := user.UserName
	if len(userName) == 0 {
		userName = strings.TrimSpace(user.FirstName + " " + user.LastName)
	}
	return userName
}

func GetFullName(user *api.User) string {
	if user == nil {
		return ""
	}
	fullName := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if len(fullName) == 0 {
		fullName = user.UserName
	}
	return fullName
}

// Mention renders an HTML mention link for the user.
func Mention(user *api.User) string {
	if user == nil {
		return ""
	}
	return MentionID(user.ID, GetFullName(user))
}

func MentionID(userID int64, name string) string {
	if name == "" {
		name = "user"
	}
	return `<a href="tg://user?id=` + strconv.FormatInt(userID, 10) + `">` + EscapeHTML(name) + `</a>`
}

func EscapeHTML(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
