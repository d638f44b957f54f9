package hume

// The tracked emotion sets mirror the coaching model: a session's
// sentiment is the positive share of the combined tracked scores.

var positiveEmotions = map[string]bool{
	"Calmness":      true,
	"Gratitude":     true,
	"Determination": true,
	"Triumph":       true,
	"Joy":           true,
	"Enthusiasm":    true,
	"Contentment":   true,
}

var negativeEmotions = map[string]bool{
	"Shame":         true,
	"Guilt":         true,
	"Embarrassment": true,
	"Anxiety":       true,
	"Doubt":         true,
	"Anger":         true,
	"Sadness":       true,
}

func isTracked(name string) bool {
	return positiveEmotions[name] || negativeEmotions[name]
}

// NeutralSentiment is returned when no tracked emotion was detected.
const NeutralSentiment = 50.0

// SentimentScore maps tracked emotion scores to a 0-100 scale: the
// positive total as a share of all tracked signal.
func SentimentScore(emotions map[string]float64) float64 {
	var pos, neg float64
	for name, score := range emotions {
		switch {
		case positiveEmotions[name]:
			pos += score
		case negativeEmotions[name]:
			neg += score
		}
	}
	total := pos + neg
	if total == 0 {
		return NeutralSentiment
	}
	return pos / total * 100
}
