package profile

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/eidolon/internal/memory"
	"github.com/nidhogg/eidolon/internal/psyche"
)

type fakeSetter struct {
	nicknames  []string
	signatures []string
	avatars    []string
}

func (f *fakeSetter) SetNickname(_ context.Context, n string) error {
	f.nicknames = append(f.nicknames, n)
	return nil
}

func (f *fakeSetter) SetSignature(_ context.Context, s string) error {
	f.signatures = append(f.signatures, s)
	return nil
}

func (f *fakeSetter) SetAvatar(_ context.Context, u string) error {
	f.avatars = append(f.avatars, u)
	return nil
}

type fakeImages struct{ url string }

func (f *fakeImages) Generate(context.Context, string) (string, error) { return f.url, nil }

func newTestUpdater(t *testing.T, cfg Config) (*Updater, *fakeSetter, *memory.Store) {
	t.Helper()
	store, err := memory.OpenMemory(zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	setter := &fakeSetter{}
	u, err := New(cfg, setter, &fakeImages{url: "https://img.example/avatar.png"}, store, zap.NewNop())
	if err != nil {
		t.Fatalf("new updater: %v", err)
	}
	return u, setter, store
}

func TestBelowThresholdIgnored(t *testing.T) {
	u, setter, _ := newTestUpdater(t, Config{
		PersonaName: "mira", EnableNickname: true, EnableSignature: true,
	})
	res, err := u.CheckAndUpdate(context.Background(), psyche.EmotionHappy, 0.5)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Nickname || res.Signature || res.Avatar {
		t.Errorf("got %+v, want nothing below the threshold", res)
	}
	if len(setter.nicknames) != 0 || len(setter.signatures) != 0 {
		t.Error("setter called despite weak emotion")
	}
}

func TestUpdateAllEnabled(t *testing.T) {
	u, setter, _ := newTestUpdater(t, Config{
		PersonaName: "mira", EnableNickname: true, EnableSignature: true, EnableAvatar: true,
	})
	res, err := u.CheckAndUpdate(context.Background(), psyche.EmotionExcited, 0.9)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !res.Nickname || !res.Signature || !res.Avatar {
		t.Errorf("got %+v, want all updated", res)
	}
	if got := setter.nicknames[0]; got != "🎉mira" {
		t.Errorf("nickname: got %q (high intensity leads with emoji)", got)
	}
	if len(setter.avatars) != 1 || setter.avatars[0] != "https://img.example/avatar.png" {
		t.Errorf("avatars: got %v", setter.avatars)
	}
}

func TestCooldownBlocksSecondUpdate(t *testing.T) {
	u, setter, _ := newTestUpdater(t, Config{
		PersonaName: "mira", EnableSignature: true, Cooldown: 30 * time.Minute,
	})

	base := time.Now()
	u.now = func() time.Time { return base }
	if _, err := u.CheckAndUpdate(context.Background(), psyche.EmotionHappy, 0.9); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Ten minutes later: still cooling down.
	u.now = func() time.Time { return base.Add(10 * time.Minute) }
	res, err := u.CheckAndUpdate(context.Background(), psyche.EmotionSad, 0.9)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Signature {
		t.Error("signature changed inside the cooldown")
	}

	// Past the cooldown it may change again.
	u.now = func() time.Time { return base.Add(31 * time.Minute) }
	res, err = u.CheckAndUpdate(context.Background(), psyche.EmotionSad, 0.9)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !res.Signature {
		t.Error("signature did not change after the cooldown")
	}
	if len(setter.signatures) != 2 {
		t.Errorf("setter called %d times, want 2", len(setter.signatures))
	}
}

func TestNicknameIntensityPlacement(t *testing.T) {
	u, _, _ := newTestUpdater(t, Config{PersonaName: "mira"})
	if got := u.nicknameFor(psyche.EmotionHappy, 0.9); got != "😊mira" {
		t.Errorf("strong: got %q", got)
	}
	if got := u.nicknameFor(psyche.EmotionHappy, 0.55); got != "mira😊" {
		t.Errorf("mild: got %q", got)
	}
	if got := u.nicknameFor(psyche.EmotionHappy, 0.3); got != "mira" {
		t.Errorf("weak: got %q", got)
	}
}

func TestSignatureCarriesTimestamp(t *testing.T) {
	u, _, _ := newTestUpdater(t, Config{PersonaName: "mira"})
	fixed := time.Date(2026, 6, 15, 9, 30, 0, 0, time.UTC)
	u.now = func() time.Time { return fixed }
	sig := u.signatureFor(psyche.EmotionCalm)
	if !strings.HasSuffix(sig, "[06/15 09:30]") {
		t.Errorf("signature %q missing timestamp suffix", sig)
	}
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	u, _, store := newTestUpdater(t, Config{
		PersonaName: "mira", EnableNickname: true,
	})
	if _, err := u.CheckAndUpdate(context.Background(), psyche.EmotionHappy, 0.9); err != nil {
		t.Fatalf("update: %v", err)
	}

	reloaded, err := New(Config{PersonaName: "mira", EnableNickname: true},
		&fakeSetter{}, nil, store, zap.NewNop())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	nickname, _, history := reloaded.Snapshot()
	if nickname != "😊mira" {
		t.Errorf("nickname not persisted: got %q", nickname)
	}
	if len(history) != 1 || history[0] != psyche.EmotionHappy {
		t.Errorf("emotion history not persisted: %v", history)
	}
}

func TestAvatarPromptIntensity(t *testing.T) {
	if got := avatarPrompt(psyche.EmotionHappy, 0.9); !strings.Contains(got, "very smiling warmly") {
		t.Errorf("high intensity: got %q", got)
	}
	if got := avatarPrompt(psyche.EmotionHappy, 0.65); !strings.Contains(got, "somewhat smiling warmly") {
		t.Errorf("mid intensity: got %q", got)
	}
}
