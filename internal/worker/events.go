package worker

import "github.com/book-expert/events"

// SynthesisRequestedEvent asks the worker to speak Text (or the object stored
// under TextKey) in the cloned Voice.
type SynthesisRequestedEvent struct {
	Header  events.EventHeader `json:"header"`
	Text    string             `json:"text,omitempty"`
	TextKey string             `json:"text_key,omitempty"`
	Voice   string             `json:"voice"`
	Quality string             `json:"quality,omitempty"`
	Seed    *int               `json:"seed,omitempty"`
	Emotion string             `json:"emotion,omitempty"`
}

// SynthesisCompletedEvent is the reply to a SynthesisRequestedEvent. Error is
// set when the request failed; the header is always echoed.
type SynthesisCompletedEvent struct {
	Header   events.EventHeader `json:"header"`
	AudioKey string             `json:"audio_key,omitempty"`
	Rung     string             `json:"rung,omitempty"`
	Attempts int                `json:"attempts,omitempty"`
	Cached   bool               `json:"cached"`
	Error    string             `json:"error,omitempty"`
}
