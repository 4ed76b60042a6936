// Package profile drives the persona's outward identity: when a
// strong enough emotion comes through, the nickname, signature and
// avatar follow it, each behind its own cooldown.
package profile

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/eidolon/internal/memory"
	"github.com/nidhogg/eidolon/internal/psyche"
)

const stateKey = "profile.state"

// Setter applies profile changes on a chat platform.
type Setter interface {
	SetNickname(ctx context.Context, nickname string) error
	SetSignature(ctx context.Context, signature string) error
	SetAvatar(ctx context.Context, imageURL string) error
}

// imageGenerator is the slice of imagegen the updater needs.
type imageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type stateStore interface {
	SaveState(key string, value any) error
	LoadState(key string, out any) error
}

// Config gates which parts of the profile may change and how often.
type Config struct {
	PersonaName     string
	EnableNickname  bool
	EnableSignature bool
	EnableAvatar    bool
	Cooldown        time.Duration // per update type
	Threshold       float64       // minimum emotion intensity
}

// state is what survives restarts.
type state struct {
	LastUpdate       map[string]time.Time `json:"last_update,omitempty"`
	CurrentNickname  string               `json:"current_nickname,omitempty"`
	CurrentSignature string               `json:"current_signature,omitempty"`
	EmotionHistory   []emotionRecord      `json:"emotion_history,omitempty"`
	LastAvatarURL    string               `json:"last_avatar_url,omitempty"`
}

type emotionRecord struct {
	Emotion   psyche.Emotion `json:"emotion"`
	Intensity float64        `json:"intensity"`
	At        time.Time      `json:"at"`
}

// Result reports which parts of the profile actually changed.
type Result struct {
	Nickname  bool `json:"nickname"`
	Signature bool `json:"signature"`
	Avatar    bool `json:"avatar"`
}

// Updater checks incoming emotions against the threshold and
// cooldowns and pushes profile changes through the setter.
type Updater struct {
	cfg    Config
	setter Setter
	images imageGenerator
	store  stateStore

	mu    sync.Mutex
	state state

	rng    *rand.Rand
	now    func() time.Time
	logger *zap.Logger
}

// New loads persisted state and returns an updater. images may be nil
// when avatar updates are disabled.
func New(cfg Config, setter Setter, images imageGenerator, store stateStore, logger *zap.Logger) (*Updater, error) {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Minute
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.6
	}
	if cfg.PersonaName == "" {
		cfg.PersonaName = "eidolon"
	}

	u := &Updater{
		cfg:    cfg,
		setter: setter,
		images: images,
		store:  store,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
		logger: logger,
	}

	err := store.LoadState(stateKey, &u.state)
	if err != nil && !errors.Is(err, memory.ErrNotFound) {
		return nil, fmt.Errorf("load profile state: %w", err)
	}
	if u.state.LastUpdate == nil {
		u.state.LastUpdate = make(map[string]time.Time)
	}
	return u, nil
}

// CheckAndUpdate applies profile changes for a detected emotion.
// Intensities below the threshold are ignored entirely.
func (u *Updater) CheckAndUpdate(ctx context.Context, emotion psyche.Emotion, intensity float64) (Result, error) {
	var result Result
	if intensity < u.cfg.Threshold {
		return result, nil
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	u.state.EmotionHistory = append(u.state.EmotionHistory, emotionRecord{
		Emotion: emotion, Intensity: intensity, At: u.now(),
	})
	if len(u.state.EmotionHistory) > 10 {
		u.state.EmotionHistory = u.state.EmotionHistory[len(u.state.EmotionHistory)-10:]
	}

	u.logger.Info("strong emotion detected",
		zap.String("emotion", string(emotion)),
		zap.Float64("intensity", intensity))

	if u.cfg.EnableNickname && u.offCooldown("nickname") {
		nickname := u.nicknameFor(emotion, intensity)
		if nickname != u.state.CurrentNickname {
			if err := u.setter.SetNickname(ctx, nickname); err != nil {
				u.logger.Warn("nickname update failed", zap.Error(err))
			} else {
				u.state.CurrentNickname = nickname
				u.state.LastUpdate["nickname"] = u.now()
				result.Nickname = true
			}
		}
	}

	if u.cfg.EnableSignature && u.offCooldown("signature") {
		signature := u.signatureFor(emotion)
		if signature != u.state.CurrentSignature {
			if err := u.setter.SetSignature(ctx, signature); err != nil {
				u.logger.Warn("signature update failed", zap.Error(err))
			} else {
				u.state.CurrentSignature = signature
				u.state.LastUpdate["signature"] = u.now()
				result.Signature = true
			}
		}
	}

	if u.cfg.EnableAvatar && u.images != nil && u.offCooldown("avatar") {
		url, err := u.images.Generate(ctx, avatarPrompt(emotion, intensity))
		if err != nil {
			u.logger.Warn("avatar generation failed", zap.Error(err))
		} else if err := u.setter.SetAvatar(ctx, url); err != nil {
			u.logger.Warn("avatar update failed", zap.Error(err))
		} else {
			u.state.LastAvatarURL = url
			u.state.LastUpdate["avatar"] = u.now()
			result.Avatar = true
		}
	}

	if err := u.store.SaveState(stateKey, u.state); err != nil {
		return result, fmt.Errorf("save profile state: %w", err)
	}
	return result, nil
}

// Snapshot returns the persisted profile state for inspection.
func (u *Updater) Snapshot() (nickname, signature string, history []psyche.Emotion) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, rec := range u.state.EmotionHistory {
		history = append(history, rec.Emotion)
	}
	return u.state.CurrentNickname, u.state.CurrentSignature, history
}

func (u *Updater) offCooldown(kind string) bool {
	last, ok := u.state.LastUpdate[kind]
	if !ok {
		return true
	}
	return u.now().Sub(last) >= u.cfg.Cooldown
}

var emotionPrefixes = map[psyche.Emotion]string{
	psyche.EmotionHappy:     "😊",
	psyche.EmotionSad:       "😢",
	psyche.EmotionAngry:     "💢",
	psyche.EmotionExcited:   "🎉",
	psyche.EmotionCalm:      "🌸",
	psyche.EmotionConfused:  "🤔",
	psyche.EmotionBored:     "😴",
	psyche.EmotionCurious:   "🔍",
	psyche.EmotionSurprised: "😲",
	psyche.EmotionAnxious:   "😰",
}

// nicknameFor decorates the persona name by intensity: strong
// emotions lead with the emoji, milder ones trail it.
func (u *Updater) nicknameFor(emotion psyche.Emotion, intensity float64) string {
	prefix := emotionPrefixes[emotion]
	switch {
	case intensity >= 0.7:
		return prefix + u.cfg.PersonaName
	case intensity >= 0.5:
		return u.cfg.PersonaName + prefix
	default:
		return u.cfg.PersonaName
	}
}

var signatureTemplates = map[psyche.Emotion][]string{
	psyche.EmotionHappy:     {"feeling great today ✨", "what a good day 😊", "life's being kind 🌟"},
	psyche.EmotionSad:       {"need some quiet time...", "a bit low today 💔", "not the best day"},
	psyche.EmotionAngry:     {"need to cool off 💢", "not in the mood", "taking deep breaths"},
	psyche.EmotionExcited:   {"so excited!! 🎉", "can't sit still ⭐", "best news ever"},
	psyche.EmotionCalm:      {"quiet days are good days 🌸", "taking it slow", "all is calm"},
	psyche.EmotionConfused:  {"still figuring it out 🤔", "a little lost", "need to think"},
	psyche.EmotionBored:     {"so bored... 😴", "nothing going on", "someone entertain me"},
	psyche.EmotionCurious:   {"exploring 🔍", "curious about everything", "want to know more!"},
	psyche.EmotionSurprised: {"did not see that coming 😲", "whoa!", "still processing"},
	psyche.EmotionAnxious:   {"a bit on edge...", "deep breaths 💫", "need to relax"},
}

func (u *Updater) signatureFor(emotion psyche.Emotion) string {
	templates, ok := signatureTemplates[emotion]
	if !ok {
		templates = []string{"keep smiling ~"}
	}
	sig := templates[u.rng.Intn(len(templates))]
	return fmt.Sprintf("%s [%s]", sig, u.now().Format("01/02 15:04"))
}

var emotionExpressions = map[psyche.Emotion]string{
	psyche.EmotionHappy:     "smiling warmly",
	psyche.EmotionSad:       "faintly sad",
	psyche.EmotionAngry:     "visibly annoyed",
	psyche.EmotionExcited:   "beaming with excitement",
	psyche.EmotionCalm:      "serene and composed",
	psyche.EmotionConfused:  "puzzled",
	psyche.EmotionBored:     "listless",
	psyche.EmotionCurious:   "intrigued",
	psyche.EmotionSurprised: "wide-eyed",
	psyche.EmotionAnxious:   "uneasy",
}

func avatarPrompt(emotion psyche.Emotion, intensity float64) string {
	expression, ok := emotionExpressions[emotion]
	if !ok {
		expression = "with a natural expression"
	}
	qualifier := ""
	switch {
	case intensity >= 0.8:
		qualifier = "very "
	case intensity >= 0.6:
		qualifier = "somewhat "
	}
	return fmt.Sprintf(
		"portrait photo, %s%s, front-facing close-up, natural light, photographic detail, square 1:1 avatar",
		qualifier, expression)
}
