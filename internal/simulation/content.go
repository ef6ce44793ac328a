package simulation

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/noah-isme/gema-chat/internal/models"
)

var localLines = []string{
	"Hey, how are you?",
	"Can we meet tomorrow to discuss the project?",
	"I've finished the task you assigned me.",
	"What do you think about the new design?",
	"Are you free this weekend?",
	"I'll send you the files in a moment.",
	"Let me know when you're available for a call.",
}

var peerLines = []string{
	"I'm doing well, thanks for asking!",
	"Yes, I'm available tomorrow. What time works for you?",
	"Great job on completing that task!",
	"The new design looks fantastic.",
	"I'm free on Saturday, but busy on Sunday.",
	"Thanks, I'll review them as soon as possible.",
	"I can talk now if you're free.",
}

var incomingLines = []string{
	"Hey, how are you?",
	"Did you get my last message?",
	"Just checking in!",
	"Are you available for a call later?",
	"Have you seen the news?",
	"Can you help me with something?",
	"I was thinking about what you said earlier.",
	"Let me know when you're free.",
}

var statuses = []models.MessageStatus{models.StatusSent, models.StatusDelivered, models.StatusRead}

// ContentGenerator produces filler text and values for synthetic traffic.
// It is safe for concurrent use.
type ContentGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewContentGenerator seeds a generator. A zero seed picks a random one.
func NewContentGenerator(seed int64) *ContentGenerator {
	if seed == 0 {
		return &ContentGenerator{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
	}
	return &ContentGenerator{rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1))}
}

// Int returns a value in [min, max].
func (g *ContentGenerator) Int(min, max int) int {
	if max <= min {
		return min
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return min + g.rng.IntN(max-min+1)
}

// Chance reports true with probability p.
func (g *ContentGenerator) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64() < p
}

// Duration returns a value in [min, max].
func (g *ContentGenerator) Duration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return min + time.Duration(g.rng.Int64N(int64(max-min)+1))
}

// LocalMessage returns something the local user might write.
func (g *ContentGenerator) LocalMessage() string {
	return localLines[g.Int(0, len(localLines)-1)]
}

// PeerMessage returns a plausible reply from a peer.
func (g *ContentGenerator) PeerMessage() string {
	return peerLines[g.Int(0, len(peerLines)-1)]
}

// IncomingLine returns an unprompted opener from a peer.
func (g *ContentGenerator) IncomingLine() string {
	return incomingLines[g.Int(0, len(incomingLines)-1)]
}

// RandomStatus returns any delivery status.
func (g *ContentGenerator) RandomStatus() models.MessageStatus {
	return statuses[g.Int(0, len(statuses)-1)]
}
