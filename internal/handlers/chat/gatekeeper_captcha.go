package chat

import (
	"math/rand"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pborman/uuid"
)

const (
	captchaCallbackPrefix = "cap"
	captchaOptions        = 3
	captchaMaxOperand     = 10
	captchaMaxOffset      = 5
)

type challenge struct {
	A, B    int
	Answer  int
	Options []int
}

// newChallenge builds an a+b question with the answer and distinct positive decoys, shuffled.
func newChallenge() challenge {
	a := tool.RandInt(1, captchaMaxOperand)
	b := tool.RandInt(1, captchaMaxOperand)
	answer := a + b

	options := []int{answer}
	seen := map[int]struct{}{answer: {}}
	for len(options) < captchaOptions {
		offset := tool.RandInt(1, captchaMaxOffset)
		if tool.RandInt(0, 1) == 0 {
			offset = -offset
		}
		decoy := answer + offset
		if decoy <= 0 {
			continue
		}
		if _, ok := seen[decoy]; ok {
			continue
		}
		seen[decoy] = struct{}{}
		options = append(options, decoy)
	}
	rand.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	return challenge{A: a, B: b, Answer: answer, Options: options}
}

func newCaptchaToken() string {
	return strings.ReplaceAll(uuid.New(), "-", "")
}

func captchaCallbackData(userID int64, token string, choice int) string {
	return strings.Join([]string{
		captchaCallbackPrefix,
		strconv.FormatInt(userID, 10),
		token,
		strconv.Itoa(choice),
	}, ";")
}

type captchaAnswer struct {
	UserID int64
	Token  string
	Choice int
}

func parseCaptchaCallback(data string) (captchaAnswer, bool) {
	parts := strings.Split(data, ";")
	if len(parts) != 4 || parts[0] != captchaCallbackPrefix || parts[2] == "" {
		return captchaAnswer{}, false
	}
	userID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return captchaAnswer{}, false
	}
	choice, err := strconv.Atoi(parts[3])
	if err != nil {
		return captchaAnswer{}, false
	}
	return captchaAnswer{UserID: userID, Token: parts[2], Choice: choice}, true
}

func captchaKeyboard(userID int64, token string, c challenge) api.InlineKeyboardMarkup {
	row := make([]api.InlineKeyboardButton, 0, len(c.Options))
	for _, opt := range c.Options {
		row = append(row, api.NewInlineKeyboardButtonData(strconv.Itoa(opt), captchaCallbackData(userID, token, opt)))
	}
	return api.NewInlineKeyboardMarkup(row)
}
