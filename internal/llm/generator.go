package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/talgya/tilecity/internal/city"
)

// GoalRequest is the city summary sent with a goal request.
type GoalRequest struct {
	Stats  city.CityStats
	Counts map[city.BuildingType]int
	Costs  map[city.BuildingType]int
}

// NewsRequest is the city summary sent with a headline request.
type NewsRequest struct {
	Stats  city.CityStats
	Counts map[city.BuildingType]int
}

// Generator produces goals and headlines, from the API when a client is
// configured and from local templates otherwise. Both paths go through the
// same response contracts.
type Generator struct {
	client *Client

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a generator. A nil client selects the local templates.
func NewGenerator(client *Client, rng *rand.Rand) *Generator {
	return &Generator{client: client, rng: rng}
}

const goalSystem = `You are the planning advisor of a small tile-based city. Suggest exactly one achievable short-term objective for the mayor.

Respond ONLY with a single JSON object:
- "description": 5-150 characters, addressed to the mayor
- "targetType": one of "money", "population", "building_count"
- "targetValue": positive integer
- "buildingType": required only for "building_count"; one of "road", "residential", "commercial", "industrial", "park"
- "reward": positive integer, in dollars`

const newsSystem = `You write one-line headlines for the local paper of a small tile-based city.

Respond ONLY with a single JSON object:
- "text": 5-100 characters
- "type": one of "positive", "negative", "neutral"`

// GenerateGoal asks for a new goal. The error is a *ValidationError when the
// response broke the contract.
func (g *Generator) GenerateGoal(ctx context.Context, req GoalRequest) (*city.Goal, error) {
	if !g.client.Enabled() {
		return ParseGoal(g.fallbackGoal(req))
	}
	raw, err := g.client.Complete(ctx, goalSystem, buildGoalPrompt(req), 300)
	if err != nil {
		return nil, fmt.Errorf("goal generation: %w", err)
	}
	return ParseGoal(raw)
}

// GenerateHeadline asks for a news item.
func (g *Generator) GenerateHeadline(ctx context.Context, req NewsRequest) (*Headline, error) {
	if !g.client.Enabled() {
		return ParseHeadline(g.fallbackHeadline(req))
	}
	raw, err := g.client.Complete(ctx, newsSystem, buildNewsPrompt(req), 150)
	if err != nil {
		return nil, fmt.Errorf("news generation: %w", err)
	}
	return ParseHeadline(raw)
}

func buildGoalPrompt(req GoalRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Day %d. Treasury: $%d. Population: %d.\n\n", req.Stats.Day, req.Stats.Money, req.Stats.Population)
	b.WriteString("Buildings:\n")
	for _, t := range city.PlaceableTypes {
		fmt.Fprintf(&b, "- %s: %d built, costs $%d\n", t, req.Counts[t], req.Costs[t])
	}
	b.WriteString("\nWhat should the mayor aim for next? Respond with a single JSON object.")
	return b.String()
}

func buildNewsPrompt(req NewsRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Day %d. Treasury: $%d. Population: %d.\n", req.Stats.Day, req.Stats.Money, req.Stats.Population)
	for _, t := range city.PlaceableTypes {
		if n := req.Counts[t]; n > 0 {
			fmt.Fprintf(&b, "- %d %s\n", n, t)
		}
	}
	b.WriteString("\nWrite today's headline. Respond with a single JSON object.")
	return b.String()
}

func (g *Generator) intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Intn(n)
}

// fallbackGoal builds a goal from the city's current numbers.
func (g *Generator) fallbackGoal(req GoalRequest) string {
	var out map[string]any
	switch g.intn(3) {
	case 0:
		target := roundUp(req.Stats.Money+500, 250)
		out = map[string]any{
			"description": fmt.Sprintf("Grow the treasury to $%d.", target),
			"targetType":  city.TargetMoney,
			"targetValue": target,
			"reward":      target / 10,
		}
	case 1:
		target := roundUp(req.Stats.Population+20, 10)
		out = map[string]any{
			"description": fmt.Sprintf("Reach a population of %d residents.", target),
			"targetType":  city.TargetPopulation,
			"targetValue": target,
			"reward":      target * 5,
		}
	default:
		b := city.PlaceableTypes[g.intn(len(city.PlaceableTypes))]
		target := req.Counts[b] + 2 + g.intn(3)
		out = map[string]any{
			"description":  fmt.Sprintf("Build up to %d %s tiles across the city.", target, b),
			"targetType":   city.TargetBuildingCount,
			"targetValue":  target,
			"buildingType": b.String(),
			"reward":       req.Costs[b]*target/2 + 50,
		}
	}
	raw, _ := json.Marshal(out)
	return string(raw)
}

var fallbackHeadlines = map[city.NewsType][]string{
	city.NewsPositive: {
		"Shops report a brisk week on Main Street.",
		"New families settle in the growing suburbs.",
		"Mayor praised for steady city finances.",
	},
	city.NewsNegative: {
		"Treasury running thin, council urges caution.",
		"Residents complain about empty lots downtown.",
		"Commuters grumble about the lack of roads.",
	},
	city.NewsNeutral: {
		"Council meets to discuss zoning plans.",
		"Local park hosts a quiet weekend market.",
		"Weather stays mild across the city.",
	},
}

func (g *Generator) fallbackHeadline(req NewsRequest) string {
	tone := city.NewsNeutral
	switch {
	case req.Stats.Money < 100:
		tone = city.NewsNegative
	case req.Counts[city.Commercial]+req.Counts[city.Industrial] > req.Counts[city.Residential] && req.Stats.Population > 0:
		tone = city.NewsPositive
	case req.Counts[city.Road] == 0 && req.Stats.Day > 10:
		tone = city.NewsNegative
	}
	choices := fallbackHeadlines[tone]
	raw, _ := json.Marshal(Headline{Text: choices[g.intn(len(choices))], Type: tone})
	return string(raw)
}

func roundUp(v, step int) int {
	if v <= 0 {
		return step
	}
	return ((v + step - 1) / step) * step
}
