package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/eidolon/internal/command"
	"github.com/nidhogg/eidolon/internal/gateway"
	"github.com/nidhogg/eidolon/internal/imagegen"
	"github.com/nidhogg/eidolon/internal/memory"
	"github.com/nidhogg/eidolon/internal/profile"
	"github.com/nidhogg/eidolon/internal/provider"
	"github.com/nidhogg/eidolon/internal/psyche"
	"github.com/nidhogg/eidolon/internal/recall"
)

type scriptedProvider struct {
	reply   string
	lastReq *provider.ChatRequest
}

func (s *scriptedProvider) ID() string   { return "scripted" }
func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Chat(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	s.lastReq = req
	return &provider.ChatResponse{Content: s.reply}, nil
}

func (s *scriptedProvider) ListModels(context.Context) ([]provider.Model, error) { return nil, nil }
func (s *scriptedProvider) HealthCheck(context.Context) error                    { return nil }

type captureSender struct {
	sent []*gateway.OutboundMessage
}

func (c *captureSender) Send(_ context.Context, msg *gateway.OutboundMessage) error {
	c.sent = append(c.sent, msg)
	return nil
}

func newTestPipeline(t *testing.T, reply string, opts Options) (*Pipeline, *scriptedProvider, *captureSender, *memory.Store) {
	t.Helper()
	store, err := memory.OpenMemory(zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	drives, err := psyche.NewEngine(store, zap.NewNop())
	if err != nil {
		t.Fatalf("psyche: %v", err)
	}

	scripted := &scriptedProvider{reply: reply}
	router := provider.NewRouter(zap.NewNop())
	router.Register(scripted)

	sender := &captureSender{}
	persona := Persona{Name: "Mira", Description: "a quiet night-owl illustrator"}
	return New(persona, router, store, drives, sender, opts, zap.NewNop()), scripted, sender, store
}

func inbound(content string) *gateway.InboundMessage {
	return &gateway.InboundMessage{
		Platform:  "rest",
		ChannelID: "chan-1",
		UserID:    "user-1",
		UserName:  "sam",
		Content:   content,
	}
}

func TestRespondRecordsMemory(t *testing.T) {
	p, _, _, store := newTestPipeline(t, "sounds like a lovely day", Options{})

	reply, images, err := p.Respond(context.Background(), inbound("I went hiking today"))
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply != "sounds like a lovely day" {
		t.Errorf("reply: got %q", reply)
	}
	if images != nil {
		t.Errorf("unexpected images: %v", images)
	}

	stats, err := store.Statistics()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("memories recorded: got %d, want 1", stats.Total)
	}
}

func TestSystemPromptCarriesPersonaAndEmotion(t *testing.T) {
	p, scripted, _, _ := newTestPipeline(t, "yay!", Options{})

	_, _, err := p.Respond(context.Background(), inbound("I'm so happy today, haha 😊"))
	if err != nil {
		t.Fatalf("respond: %v", err)
	}

	if scripted.lastReq == nil || len(scripted.lastReq.Messages) < 2 {
		t.Fatalf("request not captured: %+v", scripted.lastReq)
	}
	system := scripted.lastReq.Messages[0]
	if system.Role != "system" {
		t.Fatalf("first message role: got %q", system.Role)
	}
	for _, want := range []string{"Mira", "night-owl illustrator", "happy", "cheerful"} {
		if !strings.Contains(system.Content, want) {
			t.Errorf("system prompt missing %q:\n%s", want, system.Content)
		}
	}
	last := scripted.lastReq.Messages[len(scripted.lastReq.Messages)-1]
	if last.Role != "user" || !strings.Contains(last.Content, "happy today") {
		t.Errorf("last message: got %+v", last)
	}
}

func TestHandleSendsReply(t *testing.T) {
	p, _, sender, _ := newTestPipeline(t, "hello there", Options{})

	p.Handle(inbound("hi"))

	if len(sender.sent) != 1 {
		t.Fatalf("sent: got %d messages", len(sender.sent))
	}
	got := sender.sent[0]
	if got.Content != "hello there" || got.ChannelID != "chan-1" || got.Platform != "rest" {
		t.Errorf("outbound: %+v", got)
	}
}

func TestSelfieOnExplicitRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"images":[{"url":"https://img.example/selfie.png"}]}`))
	}))
	defer srv.Close()
	images := imagegen.New(srv.URL, "test-key", "test-model", zap.NewNop())

	p, _, _, _ := newTestPipeline(t, "here you go~", Options{Images: images})

	_, urls, err := p.Respond(context.Background(), inbound("can you send a selfie?"))
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(urls) != 1 || urls[0] != "https://img.example/selfie.png" {
		t.Errorf("selfie urls: got %v", urls)
	}
}

func TestSlashCommandBypassesProvider(t *testing.T) {
	store, err := memory.OpenMemory(zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	drives, err := psyche.NewEngine(store, zap.NewNop())
	if err != nil {
		t.Fatalf("psyche: %v", err)
	}

	reg := command.NewRegistry()
	command.RegisterMemoryCommands(reg, store)

	scripted := &scriptedProvider{reply: "should not be used"}
	router := provider.NewRouter(zap.NewNop())
	router.Register(scripted)
	sender := &captureSender{}

	p := New(Persona{Name: "Mira"}, router, store, drives, sender,
		Options{Commands: reg}, zap.NewNop())

	p.Handle(inbound("/stats"))

	if scripted.lastReq != nil {
		t.Error("provider should not be called for commands")
	}
	if len(sender.sent) != 1 || !strings.Contains(sender.sent[0].Content, "Memory:") {
		t.Fatalf("command reply: %+v", sender.sent)
	}
}

type noopSetter struct{}

func (noopSetter) SetNickname(context.Context, string) error  { return nil }
func (noopSetter) SetSignature(context.Context, string) error { return nil }
func (noopSetter) SetAvatar(context.Context, string) error    { return nil }

func TestProfileUpdateUsesEmotionIntensity(t *testing.T) {
	store, err := memory.OpenMemory(zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	drives, err := psyche.NewEngine(store, zap.NewNop())
	if err != nil {
		t.Fatalf("psyche: %v", err)
	}

	// Threshold between happy (0.6) and excited (0.9).
	updater, err := profile.New(profile.Config{PersonaName: "Mira", Threshold: 0.65},
		noopSetter{}, nil, store, zap.NewNop())
	if err != nil {
		t.Fatalf("updater: %v", err)
	}

	scripted := &scriptedProvider{reply: "nice!"}
	router := provider.NewRouter(zap.NewNop())
	router.Register(scripted)

	p := New(Persona{Name: "Mira"}, router, store, drives, &captureSender{},
		Options{Updater: updater}, zap.NewNop())
	ctx := context.Background()

	if _, _, err := p.Respond(ctx, inbound("I'm so happy today, haha 😊")); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if _, _, history := updater.Snapshot(); len(history) != 0 {
		t.Errorf("happy should stay under threshold, history %v", history)
	}

	if _, _, err := p.Respond(ctx, inbound("wow that's amazing, I can't wait 🎉")); err != nil {
		t.Fatalf("respond: %v", err)
	}
	_, _, history := updater.Snapshot()
	if len(history) != 1 || history[0] != psyche.EmotionExcited {
		t.Errorf("excited should register: history %v", history)
	}
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}
func (stubEmbedder) Dimension() int { return 2 }

type stubIndex struct{ hits []recall.Hit }

func (stubIndex) Ensure(context.Context, uint64) error                               { return nil }
func (stubIndex) Upsert(context.Context, string, []float32, map[string]string) error { return nil }
func (s stubIndex) Search(context.Context, []float32, uint64) ([]recall.Hit, error) {
	return s.hits, nil
}

func TestRecalledMemoriesReachPrompt(t *testing.T) {
	store, err := memory.OpenMemory(zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	rec, err := store.Record("user-1", "my cat is named Olive", "cute name", memory.RecordOptions{})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	index := stubIndex{hits: []recall.Hit{{
		ID:    rec.ID,
		Score: 0.9,
		Payload: map[string]string{
			"user_id": "user-1",
			"summary": "my cat is named Olive",
		},
	}}}
	recaller := recall.New(stubEmbedder{}, index, store, zap.NewNop())

	drives, err := psyche.NewEngine(store, zap.NewNop())
	if err != nil {
		t.Fatalf("psyche: %v", err)
	}
	scripted := &scriptedProvider{reply: "how is Olive doing?"}
	router := provider.NewRouter(zap.NewNop())
	router.Register(scripted)

	p := New(Persona{Name: "Mira"}, router, store, drives, &captureSender{},
		Options{Recaller: recaller}, zap.NewNop())

	_, _, err = p.Respond(context.Background(), inbound("any pet advice?"))
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	system := scripted.lastReq.Messages[0].Content
	if !strings.Contains(system, "Olive") {
		t.Errorf("recalled memory missing from prompt:\n%s", system)
	}
}
