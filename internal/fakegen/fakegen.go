// Package fakegen produces placeholder search results so the results page is
// not empty before the user has searched.
package fakegen

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wesm/mailsaver/internal/config"
	"github.com/wesm/mailsaver/internal/model"
)

var words = []string{
	"alex", "sam", "info", "contact", "hello", "team",
	"sales", "support", "jordan", "casey", "office", "press",
}

// Generator builds fake items. It is safe for concurrent use.
type Generator struct {
	settings config.FakeSettings
	clock    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Generator. A zero seed picks a random one.
func New(settings config.FakeSettings) *Generator {
	seed := settings.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	if len(settings.Domains) == 0 {
		settings.Domains = []string{"example.com"}
	}
	return &Generator{
		settings: settings,
		clock:    time.Now,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// WithClock overrides the creation timestamp source.
func (g *Generator) WithClock(clock func() time.Time) *Generator {
	g.clock = clock
	return g
}

// Generate returns between MinResults and MaxResults fake items for key.
func (g *Generator) Generate(key string, engine model.Engine) []*model.Item {
	g.mu.Lock()
	defer g.mu.Unlock()

	lo, hi := g.settings.MinResults, g.settings.MaxResults
	n := lo
	if hi > lo {
		n += g.rng.IntN(hi - lo + 1)
	}

	now := g.clock()
	slug := strings.ToLower(strings.Join(strings.Fields(key), "-"))
	if slug == "" {
		slug = "welcome"
	}
	items := make([]*model.Item, n)
	for i := range items {
		domain := g.settings.Domains[g.rng.IntN(len(g.settings.Domains))]
		word := words[g.rng.IntN(len(words))]
		items[i] = &model.Item{
			ID:        uuid.NewString(),
			Address:   fmt.Sprintf("%s%d@%s", word, g.rng.IntN(1000), domain),
			Source:    fmt.Sprintf("https://%s/%s", domain, url.PathEscape(slug)),
			CreatedAt: now,
			Engine:    engine,
			SearchKey: key,
			Kind:      model.KindFake,
			Action:    model.ActionCreated,
		}
	}
	return items
}
