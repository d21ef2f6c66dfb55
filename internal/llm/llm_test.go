package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/talgya/tilecity/internal/city"
)

func TestParseGoal_Contract(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"money", `{"description":"Save up for a new city hall.","targetType":"money","targetValue":2000,"reward":500}`, true},
		{"money null building", `{"description":"Save up for a new city hall.","targetType":"money","targetValue":2000,"buildingType":null,"reward":500}`, true},
		{"count", `{"description":"Build three parks.","targetType":"building_count","targetValue":3,"buildingType":"park","reward":150}`, true},
		{"fenced", "```json\n{\"description\":\"Reach 50 residents.\",\"targetType\":\"population\",\"targetValue\":50,\"reward\":100}\n```", true},
		{"prose around", `Sure! {"description":"Reach 50 residents.","targetType":"population","targetValue":50,"reward":100} Good luck.`, true},
		{"count without building", `{"description":"Build three parks.","targetType":"building_count","targetValue":3,"reward":150}`, false},
		{"count with none", `{"description":"Clear three lots.","targetType":"building_count","targetValue":3,"buildingType":"none","reward":150}`, false},
		{"building on money goal", `{"description":"Save up for a new city hall.","targetType":"money","targetValue":2000,"buildingType":"park","reward":500}`, false},
		{"short description", `{"description":"Go","targetType":"money","targetValue":2000,"reward":500}`, false},
		{"long description", `{"description":"` + strings.Repeat("a", 151) + `","targetType":"money","targetValue":2000,"reward":500}`, false},
		{"zero target", `{"description":"Save up for a hall.","targetType":"money","targetValue":0,"reward":500}`, false},
		{"fractional target", `{"description":"Save up for a hall.","targetType":"money","targetValue":10.5,"reward":500}`, false},
		{"negative reward", `{"description":"Save up for a hall.","targetType":"money","targetValue":10,"reward":-1}`, false},
		{"unknown target", `{"description":"Make people happy.","targetType":"happiness","targetValue":10,"reward":5}`, false},
		{"missing reward", `{"description":"Save up for a hall.","targetType":"money","targetValue":10}`, false},
		{"not json", `I cannot help with that.`, false},
	}
	for _, tc := range cases {
		goal, err := ParseGoal(tc.raw)
		if tc.ok {
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", tc.name, err)
			}
			if goal.Completed {
				t.Fatalf("%s: parsed goal must start open", tc.name)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%s: expected validation error, got goal %+v", tc.name, goal)
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: error %T is not a ValidationError", tc.name, err)
		}
	}
}

func TestParseGoal_Fields(t *testing.T) {
	goal, err := ParseGoal(`{"description":"Build three parks.","targetType":"building_count","targetValue":3,"buildingType":"park","reward":150}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if goal.TargetType != city.TargetBuildingCount || goal.TargetValue != 3 || goal.Reward != 150 {
		t.Fatalf("goal=%+v", goal)
	}
	if goal.BuildingType == nil || *goal.BuildingType != city.Park {
		t.Fatalf("buildingType=%v want=park", goal.BuildingType)
	}
}

func TestParseHeadline_Contract(t *testing.T) {
	cases := []struct {
		raw string
		ok  bool
	}{
		{`{"text":"Shops boom downtown.","type":"positive"}`, true},
		{`{"text":"Hi","type":"positive"}`, false},
		{`{"text":"` + strings.Repeat("x", 101) + `","type":"neutral"}`, false},
		{`{"text":"Shops boom downtown.","type":"ecstatic"}`, false},
		{`{"text":"Shops boom downtown."}`, false},
	}
	for _, tc := range cases {
		_, err := ParseHeadline(tc.raw)
		if (err == nil) != tc.ok {
			t.Fatalf("ParseHeadline(%s) err=%v ok=%v", tc.raw, err, tc.ok)
		}
	}
}

func TestGenerator_FallbackSatisfiesContracts(t *testing.T) {
	g := NewGenerator(nil, rand.New(rand.NewSource(7)))
	req := GoalRequest{
		Stats:  city.CityStats{Money: 1000, Population: 12, Day: 4},
		Counts: map[city.BuildingType]int{city.Residential: 2, city.Road: 5},
		Costs:  city.DefaultCatalog().Costs(),
	}
	for i := 0; i < 50; i++ {
		goal, err := g.GenerateGoal(context.Background(), req)
		if err != nil {
			t.Fatalf("fallback goal %d invalid: %v", i, err)
		}
		if err := goal.Check(); err != nil {
			t.Fatalf("fallback goal %d: %v", i, err)
		}
	}
	for _, money := range []int{-50, 50, 5000} {
		h, err := g.GenerateHeadline(context.Background(), NewsRequest{Stats: city.CityStats{Money: money, Day: 20}})
		if err != nil {
			t.Fatalf("fallback headline invalid: %v", err)
		}
		if money < 100 && h.Type != city.NewsNegative {
			t.Fatalf("money=%d headline type=%s want=negative", money, h.Type)
		}
	}
}

func newTestServer(t *testing.T, text string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"text": text}},
			"usage":   map[string]int{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerator_UsesClient(t *testing.T) {
	srv := newTestServer(t, `{"description":"Reach 40 residents.","targetType":"population","targetValue":40,"reward":200}`, http.StatusOK)
	client := NewClient(Config{APIKey: "test-key", URL: srv.URL})
	g := NewGenerator(client, rand.New(rand.NewSource(1)))

	goal, err := g.GenerateGoal(context.Background(), GoalRequest{Costs: city.DefaultCatalog().Costs()})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if goal.TargetType != city.TargetPopulation || goal.TargetValue != 40 {
		t.Fatalf("goal=%+v", goal)
	}
}

func TestGenerator_InvalidResponseIsValidationError(t *testing.T) {
	srv := newTestServer(t, `{"description":"x","targetType":"money","targetValue":1,"reward":1}`, http.StatusOK)
	g := NewGenerator(NewClient(Config{APIKey: "test-key", URL: srv.URL}), rand.New(rand.NewSource(1)))

	_, err := g.GenerateGoal(context.Background(), GoalRequest{})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err=%v want ValidationError", err)
	}
}

func TestClient_ErrorsAndRateLimit(t *testing.T) {
	srv := newTestServer(t, "ignored", http.StatusInternalServerError)
	c := NewClient(Config{APIKey: "test-key", URL: srv.URL, MaxPerMin: 1})

	if _, err := c.Complete(context.Background(), "", "hi", 10); err == nil {
		t.Fatalf("expected API error on 500")
	}
	if _, err := c.Complete(context.Background(), "", "hi", 10); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err=%v want ErrRateLimited", err)
	}

	var disabled *Client
	if disabled.Enabled() {
		t.Fatalf("nil client must be disabled")
	}
	if _, err := disabled.Complete(context.Background(), "", "hi", 10); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err=%v want ErrDisabled", err)
	}
	if NewClient(Config{}) != nil {
		t.Fatalf("empty key must return nil client")
	}
}
