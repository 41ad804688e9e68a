package assembler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/chorus-chat/chorus/internal/memory"
	"github.com/chorus-chat/chorus/pkg/types"
)

type stubHistory struct {
	msgs     []*types.Message
	err      error
	gotCtx   types.ChatContext
	gotLimit int
}

func (s *stubHistory) RecentHistory(ctx context.Context, chatCtx types.ChatContext, limit int) ([]*types.Message, error) {
	s.gotCtx = chatCtx
	s.gotLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	msgs := s.msgs
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

type stubTracker struct {
	bumped []string
	err    error
}

func (s *stubTracker) IncrementAccessCount(ctx context.Context, id string) error {
	s.bumped = append(s.bumped, id)
	return s.err
}

type retrieveCall struct {
	entityID, userID, conversationID, query string
}

type stubRetriever struct {
	result *memory.TierResult
	err    error
	calls  []retrieveCall
}

func (s *stubRetriever) RetrieveForPrompt(ctx context.Context, entityID, userID, conversationID, query string) (*memory.TierResult, error) {
	s.calls = append(s.calls, retrieveCall{entityID, userID, conversationID, query})
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func testEntity() *types.AIEntity {
	return &types.AIEntity{
		ID:           "ai-1",
		Username:     "Sokrates",
		SystemPrompt: "You are Sokrates, a relentless questioner.",
	}
}

func convMsg(userID, aiID, name, content string) *types.Message {
	return &types.Message{
		ID:             fmt.Sprintf("msg-%d", time.Now().UnixNano()),
		Content:        content,
		SenderUserID:   userID,
		SenderAIID:     aiID,
		SenderName:     name,
		ConversationID: "conv-1",
		Type:           types.MessageTypeText,
		SentAt:         time.Now().UTC(),
	}
}

func tierResult() *memory.TierResult {
	return &memory.TierResult{
		ShortTerm:   []*types.Memory{{ID: "stm-1", Summary: "Maria mentioned her race is Sunday"}},
		LongTerm:    []*types.Memory{{ID: "ltm-1", Summary: "Maria is training for a marathon"}},
		Personality: []*types.Memory{{ID: "pers-1", Summary: "Believes questions teach better than answers"}},
	}
}

func TestBuildFullContextMessageWindow(t *testing.T) {
	history := &stubHistory{msgs: []*types.Message{
		convMsg("user-1", "", "Maria", "What do you think about virtue?"),
		convMsg("", "ai-1", "Sokrates", "What do you believe virtue is?"),
		convMsg("user-2", "", "Tom", "Sounds circular to me"),
	}}
	a := NewAssembler(history, &stubTracker{}, &stubRetriever{}, 0)

	got, err := a.BuildFullContext(context.Background(), ContextRequest{
		Entity:         testEntity(),
		ConversationID: "conv-1",
	})
	if err != nil {
		t.Fatalf("BuildFullContext failed: %v", err)
	}

	if history.gotLimit != DefaultMaxMessages {
		t.Errorf("expected default window %d, got %d", DefaultMaxMessages, history.gotLimit)
	}
	if history.gotCtx.ConversationID != "conv-1" {
		t.Errorf("wrong history scope: %+v", history.gotCtx)
	}

	want := []string{
		"Maria: What do you think about virtue?",
		"You: What do you believe virtue is?",
		"Tom: Sounds circular to me",
	}
	if len(got.Messages) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got.Messages))
	}
	for i, w := range want {
		if got.Messages[i].Role != "user" {
			t.Errorf("message %d: every entry carries role user, got %q", i, got.Messages[i].Role)
		}
		if got.Messages[i].Content != w {
			t.Errorf("message %d: got %q, want %q", i, got.Messages[i].Content, w)
		}
	}
}

func TestBuildFullContextKeepsNewestWhenOverCap(t *testing.T) {
	history := &stubHistory{}
	for i := 0; i < 30; i++ {
		history.msgs = append(history.msgs, convMsg("user-1", "", "Maria", fmt.Sprintf("message %d", i)))
	}
	a := NewAssembler(history, &stubTracker{}, &stubRetriever{}, 20)

	got, err := a.BuildFullContext(context.Background(), ContextRequest{
		Entity:         testEntity(),
		ConversationID: "conv-1",
	})
	if err != nil {
		t.Fatalf("BuildFullContext failed: %v", err)
	}
	if len(got.Messages) != 20 {
		t.Fatalf("expected 20 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Content != "Maria: message 10" {
		t.Errorf("window should keep the newest messages, first is %q", got.Messages[0].Content)
	}
	if got.Messages[19].Content != "Maria: message 29" {
		t.Errorf("last message should be the newest, got %q", got.Messages[19].Content)
	}
}

func TestBuildFullContextValidation(t *testing.T) {
	a := NewAssembler(&stubHistory{}, &stubTracker{}, &stubRetriever{}, 0)
	ctx := context.Background()

	if _, err := a.BuildFullContext(ctx, ContextRequest{ConversationID: "conv-1"}); err == nil {
		t.Error("expected error for nil entity")
	}
	if _, err := a.BuildFullContext(ctx, ContextRequest{Entity: testEntity()}); err == nil {
		t.Error("expected error when neither room nor conversation is set")
	}
	if _, err := a.BuildFullContext(ctx, ContextRequest{Entity: testEntity(), RoomID: "room-1", ConversationID: "conv-1"}); err == nil {
		t.Error("expected error when both room and conversation are set")
	}
}

func TestBuildFullContextWithMemories(t *testing.T) {
	history := &stubHistory{msgs: []*types.Message{
		convMsg("user-1", "", "Maria", "How is my marathon plan looking?"),
	}}
	tracker := &stubTracker{}
	retriever := &stubRetriever{result: tierResult()}
	a := NewAssembler(history, tracker, retriever, 0)

	got, err := a.BuildFullContext(context.Background(), ContextRequest{
		Entity:          testEntity(),
		ConversationID:  "conv-1",
		UserID:          "user-1",
		IncludeMemories: true,
	})
	if err != nil {
		t.Fatalf("BuildFullContext failed: %v", err)
	}

	if len(retriever.calls) != 1 {
		t.Fatalf("expected one retrieval, got %d", len(retriever.calls))
	}
	call := retriever.calls[0]
	if call.entityID != "ai-1" || call.userID != "user-1" || call.conversationID != "conv-1" {
		t.Errorf("wrong retrieval scope: %+v", call)
	}
	if call.query != "Maria: How is my marathon plan looking?" {
		t.Errorf("query should be the newest context line, got %q", call.query)
	}

	for _, section := range []string{
		"# YOUR MEMORY LAYERS",
		"## Recent Context (this conversation):",
		"- Maria mentioned her race is Sunday",
		"## Past Interactions:",
		"- Maria is training for a marathon",
		"## Your Core Knowledge & Perspective:",
		"- Believes questions teach better than answers",
	} {
		if !strings.Contains(got.MemoryDigest, section) {
			t.Errorf("digest missing %q:\n%s", section, got.MemoryDigest)
		}
	}

	if !strings.Contains(got.SystemPrompt, "You are Sokrates, a relentless questioner.") {
		t.Error("system prompt should start from the persona prompt")
	}
	if !strings.Contains(got.SystemPrompt, got.MemoryDigest) {
		t.Error("system prompt should embed the digest")
	}
	if !strings.Contains(got.SystemPrompt, "NEVER begin your responses with your name 'Sokrates:'") {
		t.Error("system prompt should carry the anti-parroting instruction")
	}

	if len(tracker.bumped) != 3 {
		t.Errorf("expected access bump for all retrieved memories, got %v", tracker.bumped)
	}
}

func TestBuildFullContextSkipsMemoriesWithoutUser(t *testing.T) {
	history := &stubHistory{msgs: []*types.Message{convMsg("user-1", "", "Maria", "hello")}}
	retriever := &stubRetriever{result: tierResult()}
	a := NewAssembler(history, &stubTracker{}, retriever, 0)

	got, err := a.BuildFullContext(context.Background(), ContextRequest{
		Entity:          testEntity(),
		ConversationID:  "conv-1",
		IncludeMemories: true,
	})
	if err != nil {
		t.Fatalf("BuildFullContext failed: %v", err)
	}
	if len(retriever.calls) != 0 {
		t.Error("no retrieval expected without a requesting user")
	}
	if got.MemoryDigest != "" {
		t.Errorf("expected empty digest, got %q", got.MemoryDigest)
	}
}

func TestBuildFullContextSkipsMemoriesWhenDisabled(t *testing.T) {
	history := &stubHistory{msgs: []*types.Message{convMsg("user-1", "", "Maria", "hello")}}
	retriever := &stubRetriever{result: tierResult()}
	a := NewAssembler(history, &stubTracker{}, retriever, 0)

	got, err := a.BuildFullContext(context.Background(), ContextRequest{
		Entity:         testEntity(),
		ConversationID: "conv-1",
		UserID:         "user-1",
	})
	if err != nil {
		t.Fatalf("BuildFullContext failed: %v", err)
	}
	if len(retriever.calls) != 0 {
		t.Error("no retrieval expected when memories are disabled")
	}
	if got.MemoryDigest != "" {
		t.Errorf("expected empty digest, got %q", got.MemoryDigest)
	}
}

func TestBuildFullContextRetrievalFailureDegrades(t *testing.T) {
	history := &stubHistory{msgs: []*types.Message{convMsg("user-1", "", "Maria", "hello")}}
	retriever := &stubRetriever{err: errors.New("embeddings offline")}
	a := NewAssembler(history, &stubTracker{}, retriever, 0)

	got, err := a.BuildFullContext(context.Background(), ContextRequest{
		Entity:          testEntity(),
		ConversationID:  "conv-1",
		UserID:          "user-1",
		IncludeMemories: true,
	})
	if err != nil {
		t.Fatalf("retrieval failure must not fail assembly: %v", err)
	}
	if got.MemoryDigest != "" {
		t.Errorf("expected empty digest after failure, got %q", got.MemoryDigest)
	}
	if len(got.Messages) != 1 {
		t.Error("message window should survive retrieval failure")
	}
	if !strings.Contains(got.SystemPrompt, "NEVER begin your responses") {
		t.Error("system prompt should still be composed")
	}
}

func TestBuildFullContextRoomScope(t *testing.T) {
	history := &stubHistory{msgs: []*types.Message{
		{
			ID: "msg-1", Content: "anyone around?", SenderUserID: "user-1",
			SenderName: "Maria", RoomID: "room-1", Type: types.MessageTypeText,
		},
	}}
	retriever := &stubRetriever{result: &memory.TierResult{}}
	a := NewAssembler(history, &stubTracker{}, retriever, 0)

	_, err := a.BuildFullContext(context.Background(), ContextRequest{
		Entity:          testEntity(),
		RoomID:          "room-1",
		UserID:          "user-1",
		IncludeMemories: true,
	})
	if err != nil {
		t.Fatalf("BuildFullContext failed: %v", err)
	}
	if history.gotCtx.RoomID != "room-1" {
		t.Errorf("wrong history scope: %+v", history.gotCtx)
	}
	if len(retriever.calls) != 1 || retriever.calls[0].conversationID != "" {
		t.Errorf("room retrieval should carry no conversation scope: %+v", retriever.calls)
	}
}

func TestBuildFullContextEmptyHistory(t *testing.T) {
	retriever := &stubRetriever{result: tierResult()}
	a := NewAssembler(&stubHistory{}, &stubTracker{}, retriever, 0)

	got, err := a.BuildFullContext(context.Background(), ContextRequest{
		Entity:          testEntity(),
		ConversationID:  "conv-1",
		UserID:          "user-1",
		IncludeMemories: true,
	})
	if err != nil {
		t.Fatalf("BuildFullContext failed: %v", err)
	}
	if len(got.Messages) != 0 {
		t.Errorf("expected no messages, got %d", len(got.Messages))
	}
	if len(retriever.calls) != 0 {
		t.Error("no retrieval without a query message")
	}
}

func TestComposeSystemPromptWithoutDigest(t *testing.T) {
	got := ComposeSystemPrompt("You are Sokrates.", "", "Sokrates")
	if strings.Contains(got, "# YOUR MEMORY LAYERS") {
		t.Error("no digest section expected")
	}
	if !strings.HasPrefix(got, "You are Sokrates.") {
		t.Errorf("persona prompt should lead, got %q", got)
	}
	if !strings.Contains(got, "'Sokrates:'") {
		t.Error("instruction should name the username")
	}
}

func TestComposeSystemPromptOrdering(t *testing.T) {
	digest := FormatMemoryDigest(tierResult())
	got := ComposeSystemPrompt("You are Sokrates.", digest, "Sokrates")

	persona := strings.Index(got, "You are Sokrates.")
	layers := strings.Index(got, "# YOUR MEMORY LAYERS")
	instruction := strings.Index(got, "IMPORTANT: You respond directly")
	if persona == -1 || layers == -1 || instruction == -1 {
		t.Fatalf("missing sections in composed prompt:\n%s", got)
	}
	if !(persona < layers && layers < instruction) {
		t.Error("expected persona, then digest, then instruction")
	}
}

func TestFormatMemoryDigestEmpty(t *testing.T) {
	if got := FormatMemoryDigest(nil); got != "" {
		t.Errorf("nil result should render empty, got %q", got)
	}
	if got := FormatMemoryDigest(&memory.TierResult{}); got != "" {
		t.Errorf("empty result should render empty, got %q", got)
	}
}

func TestFormatMemoryDigestSingleLayer(t *testing.T) {
	got := FormatMemoryDigest(&memory.TierResult{
		Personality: []*types.Memory{{ID: "p1", Summary: "Loves rhetoric"}},
	})
	if !strings.Contains(got, "## Your Core Knowledge & Perspective:") {
		t.Error("personality section missing")
	}
	if strings.Contains(got, "## Recent Context") || strings.Contains(got, "## Past Interactions") {
		t.Error("empty layers must not render sections")
	}
	if !strings.Contains(got, "- Loves rhetoric") {
		t.Error("summary bullet missing")
	}
}
