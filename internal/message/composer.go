package message

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sabihealth/outreach/internal/risk"
)

// ResponsePrompt closes every script that expects a fever or fine answer
const ResponsePrompt = "If anybody for your house get fever, press 1. If everybody dey fine, press 2."

// script carries the substitutions for one template
type script struct {
	greeting string
	location string
	reasons  []string
	org      string
	persona  string
}

type template func(s script) string

var greetings = []func(name string) string{
	func(name string) string { return fmt.Sprintf("Good evening %s!", name) },
	func(name string) string { return fmt.Sprintf("Hello %s, how you dey?", name) },
	func(name string) string { return fmt.Sprintf("%s, good day o!", name) },
}

var templates = map[risk.Level][]template{
	risk.LevelHigh: {
		func(s script) string {
			return fmt.Sprintf("%s I be %s, I dey call you from %s. We don see say %s dey inside serious health alert now. %s. Make you take extra care o! Cover your food well well so rat no go touch am. Use mosquito net every night. Make you wash hand regularly with soap.",
				s.greeting, s.persona, s.org, s.location, strings.Join(s.reasons, ". "))
		},
		func(s script) string {
			return fmt.Sprintf("%s This na %s from %s. We get important health message for you. For %s now, %s. You need to dey very careful. Make sure say you boil water before you drink am. Sleep under treated mosquito net. If you see rat for your house, chase am comot and cover all your food.",
				s.greeting, s.persona, s.org, s.location, strings.Join(s.reasons, ", "))
		},
		func(s script) string {
			return fmt.Sprintf("%s %s here with urgent message. %s dey face some health challenge now: %s. Please, take these steps. Clean your environment well, use mosquito repellent, cover all food containers, and boil drinking water.",
				s.greeting, s.org, s.location, strings.Join(s.reasons, " and "))
		},
	},
	risk.LevelMedium: {
		func(s script) string {
			return fmt.Sprintf("%s I dey call from %s to give you small health update. For %s, %s. Make you use mosquito net when you wan sleep and cover your food properly. E no too serious, but prevention better pass cure.",
				s.greeting, s.org, s.location, strings.Join(s.reasons, ". "))
		},
		func(s script) string {
			return fmt.Sprintf("%s This na %s. We just wan remind you say for %s, %s. Make you dey careful small: wash hand regularly, use net for night, and keep your compound clean.",
				s.greeting, s.org, s.location, strings.Join(s.reasons, " and "))
		},
		func(s script) string {
			return fmt.Sprintf("%s Quick health reminder from %s: %s get %s. Nothing too serious, but make you just stay alert. Use your mosquito net and maintain good hygiene.",
				s.greeting, s.org, s.location, strings.Join(s.reasons, ", "))
		},
	},
	risk.LevelLow: {
		func(s script) string {
			return fmt.Sprintf("%s This na your regular health check from %s. Good news: %s for %s right now! Just continue to maintain good hygiene, use mosquito net, and keep your environment clean. Stay well.",
				s.greeting, s.org, strings.Join(s.reasons, ". "), s.location)
		},
		func(s script) string {
			return fmt.Sprintf("%s %s here. Everything calm for %s this week, %s. Keep washing your hands, sleep under your net, and drink clean water. We go check on you again soon.",
				s.greeting, s.org, s.location, strings.Join(s.reasons, ", "))
		},
		func(s script) string {
			return fmt.Sprintf("%s Na %s from %s. For %s today, %s. Make you keep your compound clean and cover your food. Take care of yourself and your family.",
				s.greeting, s.persona, s.org, s.location, strings.Join(s.reasons, " and "))
		},
	},
}

// Composer builds advisory scripts. Template and greeting choice is random
// for variety; inject a seeded source for reproducible output.
type Composer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewComposer creates a composer. A nil source seeds from the clock.
func NewComposer(src rand.Source) *Composer {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>1)
	}
	return &Composer{rnd: rand.New(src)}
}

// NewSeededComposer creates a composer with deterministic output for seed
func NewSeededComposer(seed uint64) *Composer {
	return NewComposer(rand.NewPCG(seed, seed))
}

// Compose produces the advisory script for a recipient. Scripts for MEDIUM
// and HIGH end with ResponsePrompt. An assessment without reasons is
// composed as LOW.
func (c *Composer) Compose(recipientName, locationName string, assessment risk.Assessment, persona Persona) string {
	level := assessment.Level
	if len(assessment.Reasons) == 0 {
		level = risk.LevelLow
	}
	variants, ok := templates[level]
	if !ok {
		variants = templates[risk.LevelLow]
		level = risk.LevelLow
	}

	if persona.Name == "" {
		persona = DefaultPersona
	}
	if persona.Organization == "" {
		persona.Organization = DefaultPersona.Organization
	}
	name := strings.TrimSpace(recipientName)
	if name == "" {
		name = "my friend"
	}
	location := strings.TrimSpace(locationName)
	if location == "" {
		location = "your area"
	}

	reasons := assessment.Reasons
	if len(reasons) == 0 {
		reasons = []string{risk.NoRiskReason}
	}

	c.mu.Lock()
	g := c.rnd.IntN(len(greetings))
	t := c.rnd.IntN(len(variants))
	c.mu.Unlock()

	text := variants[t](script{
		greeting: greetings[g](name),
		location: location,
		reasons:  reasons,
		org:      persona.Organization,
		persona:  persona.Name,
	})
	if level == risk.LevelLow {
		return text
	}
	return text + " " + ResponsePrompt
}
