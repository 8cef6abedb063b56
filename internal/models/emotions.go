package models

import "fmt"

// Emotion is one of the seven emotional states a user can broadcast.
type Emotion string

const (
	EmotionLoving  Emotion = "loving"
	EmotionNormal  Emotion = "normal"
	EmotionSad     Emotion = "sad"
	EmotionAngry   Emotion = "angry"
	EmotionNeedy   Emotion = "needy"
	EmotionSpicy   Emotion = "spicy"
	EmotionDistant Emotion = "distant"
)

// Emotions lists every valid emotional state.
var Emotions = []Emotion{
	EmotionLoving,
	EmotionNormal,
	EmotionSad,
	EmotionAngry,
	EmotionNeedy,
	EmotionSpicy,
	EmotionDistant,
}

// Valid reports whether e is one of the seven known states.
func (e Emotion) Valid() bool {
	switch e {
	case EmotionLoving, EmotionNormal, EmotionSad, EmotionAngry,
		EmotionNeedy, EmotionSpicy, EmotionDistant:
		return true
	}
	return false
}

// ParseEmotion converts a raw string into an Emotion.
func ParseEmotion(s string) (Emotion, error) {
	e := Emotion(s)
	if !e.Valid() {
		return "", fmt.Errorf("unknown emotion %q", s)
	}
	return e, nil
}
