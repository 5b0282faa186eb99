// Package perception turns raw interaction input into a bounded
// EmotionalDelta plus a detected-emotion label, an urgency class, and an
// alignment score. Classification is a pluggable boundary: the default
// classifier is keyword-based, and an external NLP collaborator can be
// injected behind the same interface.
package perception

import (
	"math"
	"sort"
	"strings"

	"warden/pkg/protocol"
)

// Detection is a classifier's verdict on one input.
type Detection struct {
	Emotion   string
	Intensity float64 // [0,1]
	Urgency   protocol.Urgency
}

// Classifier detects the dominant emotion in an input. Implementations must
// return an emotion from Vocabulary and an intensity in [0,1].
type Classifier interface {
	Classify(input, context string) Detection
}

// Vocabulary is the fixed emotion label set. Classifiers must not invent
// labels outside it.
func Vocabulary() []string {
	return []string{
		"joy", "gratitude", "affection", "excitement", "calm",
		"sadness", "anger", "fear", "frustration", "distress", "neutral",
	}
}

// emotionValence maps each label to a nominal valence position, used for
// the alignment score.
var emotionValence = map[string]float64{
	"joy":         0.9,
	"gratitude":   0.85,
	"affection":   0.8,
	"excitement":  0.75,
	"calm":        0.6,
	"neutral":     0.5,
	"sadness":     0.25,
	"frustration": 0.25,
	"anger":       0.15,
	"fear":        0.15,
	"distress":    0.1,
}

// deltaTemplates holds the unit delta per emotion; Process scales them by
// intensity and clamps every component to the per-event maximum step.
var deltaTemplates = map[string]protocol.EmotionalDelta{
	"joy":         {Warmth: 0.6, Valence: 0.8, Arousal: 0.3, Humor: 0.3},
	"gratitude":   {Trust: 0.3, Warmth: 0.8, Valence: 0.6, Empathy: 0.3},
	"affection":   {Trust: 0.2, Warmth: 1.0, Valence: 0.5, Empathy: 0.4},
	"excitement":  {Valence: 0.5, Arousal: 0.9, Creativity: 0.4},
	"calm":        {Valence: 0.3, Arousal: -0.8, Wisdom: 0.2},
	"sadness":     {Valence: -0.7, Arousal: -0.3, Empathy: 0.4},
	"anger":       {Trust: -0.3, Warmth: -0.5, Valence: -0.8, Arousal: 0.9},
	"fear":        {Valence: -0.6, Arousal: 0.8, Intuition: 0.3},
	"frustration": {Warmth: -0.3, Valence: -0.6, Arousal: 0.5},
	"distress":    {Valence: -1.0, Arousal: 1.0, Empathy: 0.5},
	"neutral":     {},
}

// Result is the processor's full output for one input.
type Result struct {
	Delta     protocol.EmotionalDelta
	Emotion   string
	Urgency   protocol.Urgency
	Alignment float64
}

// Processor maps classifier detections to bounded deltas.
type Processor struct {
	classifier Classifier
	maxStep    float64
}

// DefaultMaxStep bounds how far a single perception event can move any
// scalar.
const DefaultMaxStep = 0.08

// New creates a Processor. A nil classifier falls back to the keyword
// default; maxStep <= 0 falls back to DefaultMaxStep.
func New(classifier Classifier, maxStep float64) *Processor {
	if classifier == nil {
		classifier = KeywordClassifier{}
	}
	if maxStep <= 0 {
		maxStep = DefaultMaxStep
	}
	return &Processor{classifier: classifier, maxStep: maxStep}
}

// Process classifies the input and produces a bounded delta. currentValence
// is the actor's valence before the input, used for the alignment score.
func (p *Processor) Process(input, context string, currentValence float64) Result {
	det := p.classifier.Classify(input, context)

	emotion := det.Emotion
	if _, known := deltaTemplates[emotion]; !known {
		emotion = "neutral"
	}
	intensity := math.Max(0, math.Min(1, det.Intensity))

	tpl := deltaTemplates[emotion]
	delta := protocol.EmotionalDelta{
		Trust:      p.bound(tpl.Trust * intensity),
		Warmth:     p.bound(tpl.Warmth * intensity),
		Arousal:    p.bound(tpl.Arousal * intensity),
		Valence:    p.bound(tpl.Valence * intensity),
		Empathy:    p.bound(tpl.Empathy * intensity),
		Intuition:  p.bound(tpl.Intuition * intensity),
		Creativity: p.bound(tpl.Creativity * intensity),
		Wisdom:     p.bound(tpl.Wisdom * intensity),
		Humor:      p.bound(tpl.Humor * intensity),
	}

	urgency := det.Urgency
	if urgency == "" {
		urgency = protocol.UrgencyLow
	}

	// Alignment: how consistent the detected emotion is with the current
	// valence position.
	alignment := 1 - math.Abs(emotionValence[emotion]-currentValence)

	return Result{
		Delta:     delta,
		Emotion:   emotion,
		Urgency:   urgency,
		Alignment: alignment,
	}
}

// bound clamps one delta component to [-maxStep, maxStep].
func (p *Processor) bound(v float64) float64 {
	return math.Max(-p.maxStep, math.Min(p.maxStep, v))
}

// --- Default keyword classifier ---

// KeywordClassifier is the built-in fallback classifier. It matches lexicon
// entries and grades intensity from match density and punctuation emphasis.
type KeywordClassifier struct{}

var lexicon = map[string][]string{
	"joy":         {"happy", "wonderful", "great news", "amazing", "delighted", "glad"},
	"gratitude":   {"thank", "grateful", "appreciate"},
	"affection":   {"love", "miss you", "care about", "proud of you"},
	"excitement":  {"excited", "can't wait", "finally", "let's go"},
	"calm":        {"calm", "relaxed", "peaceful", "no rush", "take your time"},
	"sadness":     {"sad", "lonely", "miss", "lost", "grief", "crying"},
	"anger":       {"angry", "furious", "hate", "how dare", "unacceptable"},
	"fear":        {"afraid", "scared", "worried", "terrified", "anxious"},
	"frustration": {"frustrated", "annoyed", "again?", "why won't", "stuck"},
	"distress":    {"help me", "emergency", "can't cope", "breaking down", "desperate", "panic"},
}

// lexiconOrder fixes the scan order so equal-score ties always resolve to
// the same label.
var lexiconOrder = func() []string {
	out := make([]string, 0, len(lexicon))
	for emotion := range lexicon {
		out = append(out, emotion)
	}
	sort.Strings(out)
	return out
}()

var crisisMarkers = []string{"emergency", "crisis", "suicid", "hurt myself", "can't go on", "911"}

var highUrgencyMarkers = []string{"urgent", "asap", "right now", "immediately", "help me"}

// Classify implements Classifier.
func (KeywordClassifier) Classify(input, context string) Detection {
	lower := strings.ToLower(input)

	best := "neutral"
	bestHits := 0
	for _, emotion := range lexiconOrder {
		hits := 0
		for _, w := range lexicon[emotion] {
			if strings.Contains(lower, w) {
				hits++
			}
		}
		if hits > bestHits {
			best = emotion
			bestHits = hits
		}
	}

	intensity := 0.0
	if bestHits > 0 {
		intensity = 0.5 + 0.2*float64(bestHits-1)
		if strings.Contains(input, "!") {
			intensity += 0.2
		}
		intensity = math.Min(1, intensity)
	}

	urgency := protocol.UrgencyLow
	for _, m := range crisisMarkers {
		if strings.Contains(lower, m) {
			return Detection{Emotion: "distress", Intensity: 1, Urgency: protocol.UrgencyCrisis}
		}
	}
	for _, m := range highUrgencyMarkers {
		if strings.Contains(lower, m) {
			urgency = protocol.UrgencyHigh
			break
		}
	}
	if urgency == protocol.UrgencyLow && bestHits >= 2 {
		urgency = protocol.UrgencyMedium
	}

	return Detection{Emotion: best, Intensity: intensity, Urgency: urgency}
}
