// Package assist provides the generative helpers behind the app's
// social surface: photo analysis, album naming, reply coaching and the
// companion text chat. Every helper degrades to a canned result when no
// API key is configured or the model call fails, so the app keeps
// working offline.
package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// DefaultModel handles all non-live generation.
const DefaultModel = "gemini-2.5-flash"

// Service wraps the generative model client. A zero-key service is
// valid and serves canned fallbacks only.
type Service struct {
	client *genai.Client
	model  string
	log    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithModel overrides DefaultModel.
func WithModel(model string) Option {
	return func(s *Service) { s.model = model }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// NewService builds a service. An empty apiKey yields an offline
// service that only returns fallbacks.
func NewService(ctx context.Context, apiKey string, opts ...Option) (*Service, error) {
	s := &Service{model: DefaultModel, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if apiKey == "" {
		s.log.Warn("no API key configured, generative helpers run offline")
		return s, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	s.client = client
	return s, nil
}

// Online reports whether real model calls are possible.
func (s *Service) Online() bool { return s.client != nil }

// Ratings scores a photo on three 0-100 axes.
type Ratings struct {
	Authenticity int `json:"authenticity"`
	Beauty       int `json:"beauty"`
	Virality     int `json:"virality"`
}

// PhotoInsights is the structured analysis of one captured photo.
type PhotoInsights struct {
	Caption           string   `json:"caption"`
	Tags              []string `json:"tags"`
	Vibe              string   `json:"vibe"`
	LocationGuess     string   `json:"locationGuess"`
	SuggestedAlbum    string   `json:"suggestedAlbum"`
	SocialComment     string   `json:"socialComment"`
	SocialCommentType string   `json:"socialCommentType"`
	Ratings           Ratings  `json:"ratings"`
}

var photoSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"caption":        {Type: genai.TypeString},
		"tags":           {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"vibe":           {Type: genai.TypeString},
		"locationGuess":  {Type: genai.TypeString},
		"suggestedAlbum": {Type: genai.TypeString},
		"socialComment":  {Type: genai.TypeString},
		"socialCommentType": {
			Type: genai.TypeString,
			Enum: []string{"rizz", "roast", "compliment"},
		},
		"ratings": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"authenticity": {Type: genai.TypeInteger},
				"beauty":       {Type: genai.TypeInteger},
				"virality":     {Type: genai.TypeInteger},
			},
			Required: []string{"authenticity", "beauty", "virality"},
		},
	},
	Required: []string{"caption", "tags", "vibe", "locationGuess", "suggestedAlbum", "socialComment", "socialCommentType", "ratings"},
}

// AnalyzePhoto captions, tags and scores one JPEG. With personality
// set, the social comment gets a playful edge instead of a neutral one.
func (s *Service) AnalyzePhoto(ctx context.Context, jpegData []byte, personality bool) *PhotoInsights {
	if s.client == nil {
		return fallbackInsights()
	}
	tone := "neutral and friendly"
	if personality {
		tone = "playful, either a bold compliment, a light roast or smooth flattery"
	}
	prompt := fmt.Sprintf(
		"Analyze this photo for a social camera app. Write a short catchy caption, "+
			"3-5 tags, a one-word vibe, a location guess, an album name suggestion and "+
			"a short social comment in a %s tone. Rate authenticity, beauty and "+
			"virality from 0 to 100.", tone)

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: jpegData}},
			{Text: prompt},
		},
	}}
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   photoSchema,
	}
	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, cfg)
	if err != nil {
		s.log.Warn("photo analysis failed, using fallback", "error", err)
		return fallbackInsights()
	}
	var out PhotoInsights
	if err := json.Unmarshal([]byte(resp.Text()), &out); err != nil {
		s.log.Warn("photo analysis returned malformed JSON", "error", err)
		return fallbackInsights()
	}
	return &out
}

func fallbackInsights() *PhotoInsights {
	return &PhotoInsights{
		Caption:           "Living in the moment",
		Tags:              []string{"vibes", "flux", "moment"},
		Vibe:              "chill",
		LocationGuess:     "Somewhere cool",
		SuggestedAlbum:    "Daily Moments",
		SocialComment:     "Looking good today!",
		SocialCommentType: "compliment",
		Ratings:           Ratings{Authenticity: 85, Beauty: 75, Virality: 60},
	}
}

// AlbumInfo names a set of related photos.
type AlbumInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var albumSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"name":        {Type: genai.TypeString},
		"description": {Type: genai.TypeString},
	},
	Required: []string{"name", "description"},
}

// GenerateAlbumInfo proposes a name and description for an album built
// around the given theme.
func (s *Service) GenerateAlbumInfo(ctx context.Context, theme string) *AlbumInfo {
	if s.client == nil {
		return fallbackAlbumInfo(theme)
	}
	prompt := fmt.Sprintf(
		"Suggest a short, catchy album name and a one-sentence description for a "+
			"photo album about: %s", theme)
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: prompt}},
	}}
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   albumSchema,
	}
	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, cfg)
	if err != nil {
		s.log.Warn("album naming failed, using fallback", "error", err)
		return fallbackAlbumInfo(theme)
	}
	var out AlbumInfo
	if err := json.Unmarshal([]byte(resp.Text()), &out); err != nil {
		return fallbackAlbumInfo(theme)
	}
	return &out
}

func fallbackAlbumInfo(theme string) *AlbumInfo {
	name := strings.TrimSpace(theme)
	if name == "" {
		name = "New Album"
	}
	return &AlbumInfo{Name: name, Description: "A collection of moments."}
}

var repliesSchema = &genai.Schema{
	Type:  genai.TypeArray,
	Items: &genai.Schema{Type: genai.TypeString},
}

// SuggestReplies drafts three reply options for an incoming message,
// steered by the relationship to the sender, the desired tone and what
// the user wants out of the exchange.
func (s *Service) SuggestReplies(ctx context.Context, message, relationship, tone, motive string) []string {
	if s.client == nil {
		return fallbackReplies()
	}
	prompt := fmt.Sprintf(
		"Someone who is my %s sent me: %q. Suggest exactly 3 short replies in a %s "+
			"tone. My goal: %s. Keep each under 15 words.",
		relationship, message, tone, motive)
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: prompt}},
	}}
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   repliesSchema,
	}
	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, cfg)
	if err != nil {
		s.log.Warn("reply suggestion failed, using fallback", "error", err)
		return fallbackReplies()
	}
	var out []string
	if err := json.Unmarshal([]byte(resp.Text()), &out); err != nil || len(out) == 0 {
		return fallbackReplies()
	}
	return out
}

func fallbackReplies() []string {
	return []string{"Sounds good!", "Haha, love that", "Tell me more"}
}

// ChatWithCompanion answers one text message from the user in the
// companion's voice, given recent chat history as alternating
// user/model lines.
func (s *Service) ChatWithCompanion(ctx context.Context, history []string, message string) string {
	if s.client == nil {
		return fallbackChatReply()
	}
	var sb strings.Builder
	sb.WriteString("You are the user's Flux bestie: warm, witty and brief. " +
		"Answer in one or two sentences.\n\n")
	for i, line := range history {
		if i%2 == 0 {
			sb.WriteString("User: ")
		} else {
			sb.WriteString("You: ")
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("User: ")
	sb.WriteString(message)

	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: sb.String()}},
	}}
	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		s.log.Warn("companion chat failed, using fallback", "error", err)
		return fallbackChatReply()
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return fallbackChatReply()
	}
	return text
}

func fallbackChatReply() string {
	return "I'm here! Tell me what's up."
}

// FilterConfig describes a photo filter as adjustment values the
// editor applies directly.
type FilterConfig struct {
	Name       string  `json:"name"`
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Saturation float64 `json:"saturation"`
	Sepia      float64 `json:"sepia"`
	HueRotate  float64 `json:"hueRotate"`
}

var filterSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"name":       {Type: genai.TypeString},
		"brightness": {Type: genai.TypeNumber},
		"contrast":   {Type: genai.TypeNumber},
		"saturation": {Type: genai.TypeNumber},
		"sepia":      {Type: genai.TypeNumber},
		"hueRotate":  {Type: genai.TypeNumber},
	},
	Required: []string{"name", "brightness", "contrast", "saturation", "sepia", "hueRotate"},
}

// GenerateFilter turns a free-text mood into concrete filter values.
func (s *Service) GenerateFilter(ctx context.Context, mood string) *FilterConfig {
	if s.client == nil {
		return fallbackFilter(mood)
	}
	prompt := fmt.Sprintf(
		"Design a photo filter matching the mood %q. brightness, contrast and "+
			"saturation are multipliers around 1.0; sepia is 0 to 1; hueRotate is "+
			"degrees from 0 to 360.", mood)
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: prompt}},
	}}
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   filterSchema,
	}
	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, cfg)
	if err != nil {
		s.log.Warn("filter generation failed, using fallback", "error", err)
		return fallbackFilter(mood)
	}
	var out FilterConfig
	if err := json.Unmarshal([]byte(resp.Text()), &out); err != nil {
		return fallbackFilter(mood)
	}
	return &out
}

func fallbackFilter(mood string) *FilterConfig {
	name := strings.TrimSpace(mood)
	if name == "" {
		name = "Classic"
	}
	return &FilterConfig{
		Name:       name,
		Brightness: 1.05,
		Contrast:   1.1,
		Saturation: 1.15,
	}
}
