package reader

import (
	"time"

	"github.com/yuanying/epubrsvp/internal/book"
)

// PreviousWords is how many words of context the paused view shows.
const PreviousWords = 50

// Frame is everything the RSVP view draws for one word.
type Frame struct {
	Mode     Mode          `json:"mode"`
	Index    int           `json:"index"`
	Total    int           `json:"total"`
	Word     string        `json:"word"`
	ORP      int           `json:"orp"`
	Split    Split         `json:"split"`
	Previous []string      `json:"previous,omitempty"`
	Progress int           `json:"progress"`
	TimeLeft time.Duration `json:"timeLeft"`
}

// FrameOptions controls how a frame is derived.
type FrameOptions struct {
	MaxChars       int  // width of the RSVP line in characters, 0 if unknown
	Middle         bool // split at the middle instead of the ORP
	ShowPrevious   bool
	WordsPerMinute int
}

// DeriveFrame computes the RSVP frame for words at idx in mode.
func DeriveFrame(words []string, idx int, mode Mode, opts FrameOptions) Frame {
	f := Frame{Mode: mode, Total: len(words)}
	if len(words) == 0 {
		return f
	}
	idx = min(max(idx, 0), len(words)-1)

	f.Index = idx
	f.Word = words[idx]
	f.ORP = ORP(f.Word)
	if opts.Middle {
		f.Split = SplitMiddle(f.Word)
	} else {
		f.Split = SplitORP(f.Word, opts.MaxChars)
	}
	if mode == ModePause && opts.ShowPrevious {
		f.Previous = words[max(idx-PreviousWords, 0):idx]
	}
	f.Progress = book.CompletionRate(idx, len(words))
	f.TimeLeft = book.TimeToRead(idx, len(words), opts.WordsPerMinute)
	return f
}
