// Package composer turns the persona's day into words: feed posts,
// comments on other people's posts, and image prompts to illustrate a
// post.
package composer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/eidolon/internal/provider"
)

// Purposes the composer routes requests under.
const (
	PurposeDiary   = "diary"
	PurposeComment = "comment"
)

const contentMarker = `"""`

// Composer generates persona text through the provider router.
type Composer struct {
	router  *provider.Router
	weather *WeatherClient
	persona string
	model   string
	now     func() time.Time
	logger  *zap.Logger
}

// New returns a composer writing as the given persona description.
func New(router *provider.Router, weather *WeatherClient, persona, model string, logger *zap.Logger) *Composer {
	return &Composer{
		router:  router,
		weather: weather,
		persona: persona,
		model:   model,
		now:     time.Now,
		logger:  logger,
	}
}

// ExtractContent pulls the text between triple-quote markers. Models
// are asked to wrap the post body that way; when they don't, the raw
// reply is used as-is.
func ExtractContent(reply string) string {
	start := strings.Index(reply, contentMarker)
	if start < 0 {
		return strings.TrimSpace(reply)
	}
	start += len(contentMarker)
	end := strings.Index(reply[start:], contentMarker)
	if end < 0 {
		return strings.TrimSpace(reply)
	}
	content := strings.TrimSpace(reply[start : start+end])
	if content == "" {
		return strings.TrimSpace(reply)
	}
	return content
}

// Diary writes a short first-person feed post from recent
// conversation history. topic may be empty; the model then picks one
// from the history.
func (c *Composer) Diary(ctx context.Context, history []provider.Message, topic string) (string, error) {
	now := c.now()
	header := []string{
		fmt.Sprintf("Today is %s (%s).", now.Format("2006-01-02"), now.Weekday()),
		"Write one short first-person feed post sharing a moment or feeling from today.",
		"You are this character. Output only the post itself, no third-person framing, no explanations.",
		"Keep it grounded in ordinary life. Never mention being an AI.",
		"At most two or three sentences.",
	}
	if c.persona != "" {
		header = append(header, "Stay in character: "+c.persona)
	}
	if c.weather != nil {
		if desc := c.weather.Describe(ctx); desc != "" {
			header = append(header, "Local weather right now: "+desc)
		}
	}

	if topic == "" {
		topic = "pick something from the conversation that fits today"
	}
	system := strings.Join(header, "\n") + "\n\n" +
		"# Topic: " + topic + "\n\n" +
		"# Output format:\n" +
		"- Wrap the post body in triple quotes (\"\"\").\n\n" +
		"Style: casual and conversational, the occasional emoji is fine, no long narration."

	messages := append([]provider.Message{{Role: "system", Content: system}}, history...)
	if len(history) == 0 {
		messages = append(messages, provider.Message{Role: "user", Content: "Write today's post."})
	}

	resp, err := c.router.Route(ctx, PurposeDiary, &provider.ChatRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("generate diary: %w", err)
	}

	diary := ExtractContent(resp.Content)
	c.logger.Info("diary generated", zap.Int("length", len(diary)))
	return diary, nil
}

// Post is somebody else's feed post the persona may comment on.
type Post struct {
	Author   string
	Text     string
	Reshared string // body of a reshared post, if any
	Images   []string
}

var whitespaceRe = regexp.MustCompile(`[\s\x{3000}]+`)

// Comment writes a one-line reaction to a post. Whitespace is
// squeezed out and the trailing period dropped so it reads like a
// quick phone reply.
func (c *Composer) Comment(ctx context.Context, post Post) (string, error) {
	content := post.Text
	if post.Reshared != "" {
		content += "\n[reshared]\n" + post.Reshared
	}

	system := "Write one short casual comment reacting to the post below."
	if c.persona != "" {
		system += " Stay in character: " + c.persona
	}

	resp, err := c.router.Route(ctx, PurposeComment, &provider.ChatRequest{
		Model: c.model,
		Messages: []provider.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: "[post]\n" + content},
		},
	})
	if err != nil {
		return "", fmt.Errorf("generate comment: %w", err)
	}

	comment := whitespaceRe.ReplaceAllString(resp.Content, " ")
	comment = strings.TrimSuffix(strings.TrimSpace(comment), ".")
	c.logger.Info("comment generated", zap.String("author", post.Author))
	return comment, nil
}

// ImagePrompt derives an image-generation prompt illustrating a diary
// post.
func (c *Composer) ImagePrompt(ctx context.Context, diary string) (string, error) {
	system := "Turn the feed post below into one concise English image-generation prompt. " +
		"Describe the scene, lighting and mood in plain visual terms. " +
		"Output the prompt only, wrapped in triple quotes (\"\"\")."

	resp, err := c.router.Route(ctx, PurposeDiary, &provider.ChatRequest{
		Model: c.model,
		Messages: []provider.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: diary},
		},
	})
	if err != nil {
		return "", fmt.Errorf("generate image prompt: %w", err)
	}
	return ExtractContent(resp.Content), nil
}
