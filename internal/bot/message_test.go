package bot

import (
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngguard/internal/db"
)

func TestClassifyMediaFirstMatchWins(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  *api.Message
		want db.MediaType
	}{
		{name: "text", msg: &api.Message{Text: "hi"}, want: ""},
		{name: "photo with reply", msg: &api.Message{Photo: []api.PhotoSize{{}}, ReplyToMessage: &api.Message{}}, want: db.MediaPhoto},
		{name: "video", msg: &api.Message{Video: &api.Video{}}, want: db.MediaVideo},
		{name: "document", msg: &api.Message{Document: &api.Document{}}, want: db.MediaDocument},
		{name: "gif", msg: &api.Message{Document: &api.Document{}, Animation: &api.Animation{}}, want: db.MediaAnimation},
		{name: "sticker", msg: &api.Message{Sticker: &api.Sticker{}}, want: db.MediaSticker},
		{name: "voice", msg: &api.Message{Voice: &api.Voice{}}, want: db.MediaVoice},
		{name: "video note", msg: &api.Message{VideoNote: &api.VideoNote{}}, want: db.MediaVideoNote},
		{name: "contact", msg: &api.Message{Contact: &api.Contact{}}, want: db.MediaContact},
		{name: "location", msg: &api.Message{Location: &api.Location{}}, want: db.MediaLocation},
		{name: "poll", msg: &api.Message{Poll: &api.Poll{}}, want: db.MediaPoll},
		{name: "forward", msg: &api.Message{Text: "x", ForwardOrigin: &api.MessageOrigin{}}, want: db.MediaForward},
		{name: "reply", msg: &api.Message{Text: "x", ReplyToMessage: &api.Message{MessageID: 3}}, want: db.MediaReply},
		{name: "topic root", msg: &api.Message{Text: "x", IsTopicMessage: true, MessageThreadID: 3, ReplyToMessage: &api.Message{MessageID: 3}}, want: ""},
	}

	for _, tt := range tests {
		if got := ClassifyMedia(tt.msg); got != tt.want {
			t.Fatalf("%s: got %q want %q", tt.name, got, tt.want)
		}
	}
}

func TestMentionEscapesName(t *testing.T) {
	t.Parallel()

	got := Mention(&api.User{ID: 5, FirstName: "<b>"})
	want := `<a href="tg://user?id=5">&lt;b&gt;</a>`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
