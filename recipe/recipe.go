package recipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultEndpoint = "https://www.themealdb.com/api/json/v1/1/random.php"

	// OfflineMessage is shown instead of a recipe when the API cannot be reached.
	OfflineMessage = "You appear to be offline.\nNew recipes require an internet connection."

	maxIngredients = 20
)

var (
	// ErrOffline means the API could not be reached.
	ErrOffline = errors.New("recipe API unreachable")
	// ErrMalformed means the API answered with something other than a recipe.
	ErrMalformed = errors.New("malformed recipe response")
)

// Doer performs HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

type Recipe struct {
	Name         string   `json:"name"`
	Thumb        string   `json:"thumb"`
	Instructions string   `json:"instructions"`
	Ingredients  []string `json:"ingredients"`
}

type Config struct {
	// Endpoint returning a random meal. Defaults to DefaultEndpoint.
	Endpoint string
	// HTTP client. Defaults to http.DefaultClient.
	Doer Doer
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// Client fetches random recipes from TheMealDB.
type Client struct {
	endpoint string
	doer     Doer
	log      zerolog.Logger
}

func NewClient(config Config) *Client {
	c := &Client{
		endpoint: config.Endpoint,
		doer:     config.Doer,
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.doer == nil {
		c.doer = http.DefaultClient
	}
	if config.Logger == nil {
		c.log = log.Logger
	} else {
		c.log = *config.Logger
	}
	return c
}

// Random fetches one random recipe. There are no retries.
func (c *Client) Random(ctx context.Context) (Recipe, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return Recipe{}, err
	}
	c.log.Trace().Str("url", c.endpoint).Msg("Fetching random recipe")
	res, err := c.doer.Do(req)
	if err != nil {
		return Recipe{}, fmt.Errorf("%w: %w", ErrOffline, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return Recipe{}, fmt.Errorf("%w: status %d", ErrMalformed, res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Recipe{}, fmt.Errorf("%w: %w", ErrOffline, err)
	}
	recipe, err := Parse(body)
	if err != nil {
		return Recipe{}, err
	}
	c.log.Debug().Str("name", recipe.Name).Int("ingredients", len(recipe.Ingredients)).Msg("Got recipe")
	return recipe, nil
}

type meals struct {
	Meals []map[string]any `json:"meals"`
}

// Parse reads the first meal of an API response.
func Parse(body []byte) (Recipe, error) {
	var m meals
	if err := json.Unmarshal(body, &m); err != nil {
		return Recipe{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(m.Meals) == 0 || m.Meals[0] == nil {
		return Recipe{}, fmt.Errorf("%w: no meals", ErrMalformed)
	}
	meal := m.Meals[0]
	recipe := Recipe{
		Name:         field(meal, "strMeal"),
		Thumb:        field(meal, "strMealThumb"),
		Instructions: field(meal, "strInstructions"),
		Ingredients:  []string{},
	}
	for i := 1; i <= maxIngredients; i++ {
		ingredient := field(meal, "strIngredient"+strconv.Itoa(i))
		if strings.TrimSpace(ingredient) == "" {
			continue
		}
		measure := field(meal, "strMeasure"+strconv.Itoa(i))
		recipe.Ingredients = append(recipe.Ingredients, strings.TrimSpace(measure+" "+ingredient))
	}
	return recipe, nil
}

// field returns the string value of a meal field, "" if missing or null.
func field(meal map[string]any, name string) string {
	if s, ok := meal[name].(string); ok {
		return s
	}
	return ""
}

// String renders the recipe as plain text.
func (r Recipe) String() string {
	b := strings.Builder{}
	b.WriteString(r.Name)
	b.WriteString("\n\nIngredients:\n")
	for _, ingredient := range r.Ingredients {
		b.WriteString("- ")
		b.WriteString(ingredient)
		b.WriteString("\n")
	}
	b.WriteString("\nInstructions:\n")
	b.WriteString(r.Instructions)
	b.WriteString("\n")
	return b.String()
}
