package types_test

import (
	"testing"

	"github.com/chorus-chat/chorus/pkg/types"
)

func TestIsValidRoomStrategy(t *testing.T) {
	for _, s := range types.ValidRoomStrategies {
		if !types.IsValidRoomStrategy(s) {
			t.Errorf("IsValidRoomStrategy(%q) = false, want true", s)
		}
	}

	invalid := []types.RoomStrategy{"", "room_unknown", "ROOM_MENTION_ONLY", "conv_smart"}
	for _, s := range invalid {
		if types.IsValidRoomStrategy(s) {
			t.Errorf("IsValidRoomStrategy(%q) = true, want false", s)
		}
	}
}

func TestIsValidConversationStrategy(t *testing.T) {
	for _, s := range types.ValidConversationStrategies {
		if !types.IsValidConversationStrategy(s) {
			t.Errorf("IsValidConversationStrategy(%q) = false, want true", s)
		}
	}

	invalid := []types.ConversationStrategy{"", "conv_unknown", "room_active"}
	for _, s := range invalid {
		if types.IsValidConversationStrategy(s) {
			t.Errorf("IsValidConversationStrategy(%q) = true, want false", s)
		}
	}
}

func TestIsValidMemoryType(t *testing.T) {
	for _, mt := range types.ValidMemoryTypes {
		if !types.IsValidMemoryType(mt) {
			t.Errorf("IsValidMemoryType(%q) = false, want true", mt)
		}
	}
	if types.IsValidMemoryType("episodic") {
		t.Error("IsValidMemoryType(\"episodic\") = true, want false")
	}
}

func TestNewAIEntity_Defaults(t *testing.T) {
	e := types.NewAIEntity("sokrates")

	if e.Username != "sokrates" {
		t.Errorf("Username = %q, want sokrates", e.Username)
	}
	if e.RoomResponseStrategy != types.RoomMentionOnly {
		t.Errorf("RoomResponseStrategy = %q, want %q", e.RoomResponseStrategy, types.RoomMentionOnly)
	}
	if e.ConversationResponseStrategy != types.ConvOnQuestions {
		t.Errorf("ConversationResponseStrategy = %q, want %q", e.ConversationResponseStrategy, types.ConvOnQuestions)
	}
	if e.ResponseProbability != types.DefaultResponseProbability {
		t.Errorf("ResponseProbability = %v, want %v", e.ResponseProbability, types.DefaultResponseProbability)
	}
	if e.CooldownSeconds != nil {
		t.Errorf("CooldownSeconds = %v, want nil", *e.CooldownSeconds)
	}
	if err := e.Validate(); err != nil {
		t.Errorf("Validate() on defaults returned %v", err)
	}
}

func TestAIEntityValidate(t *testing.T) {
	cooldown := func(s int) *int { return &s }

	tests := []struct {
		name    string
		mutate  func(*types.AIEntity)
		wantErr bool
	}{
		{"valid defaults", func(e *types.AIEntity) {}, false},
		{"empty username", func(e *types.AIEntity) { e.Username = "" }, true},
		{"temperature too high", func(e *types.AIEntity) { e.Temperature = 2.5 }, true},
		{"temperature negative", func(e *types.AIEntity) { e.Temperature = -0.1 }, true},
		{"max tokens zero", func(e *types.AIEntity) { e.MaxTokens = 0 }, true},
		{"probability above one", func(e *types.AIEntity) { e.ResponseProbability = 1.1 }, true},
		{"cooldown negative", func(e *types.AIEntity) { e.CooldownSeconds = cooldown(-1) }, true},
		{"cooldown above max", func(e *types.AIEntity) { e.CooldownSeconds = cooldown(7200) }, true},
		{"cooldown at max", func(e *types.AIEntity) { e.CooldownSeconds = cooldown(3600) }, false},
		{"unknown room strategy", func(e *types.AIEntity) { e.RoomResponseStrategy = "room_bogus" }, true},
		{"unknown conversation strategy", func(e *types.AIEntity) { e.ConversationResponseStrategy = "conv_bogus" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := types.NewAIEntity("sokrates")
			tt.mutate(e)
			err := e.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestChatContextValidate(t *testing.T) {
	if err := types.RoomContext("r1").Validate(); err != nil {
		t.Errorf("room context: %v", err)
	}
	if err := types.ConversationContext("c1").Validate(); err != nil {
		t.Errorf("conversation context: %v", err)
	}
	if err := (types.ChatContext{}).Validate(); err == nil {
		t.Error("empty context validated, want error")
	}
	if err := (types.ChatContext{RoomID: "r1", ConversationID: "c1"}).Validate(); err == nil {
		t.Error("dual context validated, want error")
	}
}

func TestChatContextKey(t *testing.T) {
	if got := types.RoomContext("17").Key(); got != "room:17" {
		t.Errorf("room key = %q, want room:17", got)
	}
	if got := types.ConversationContext("42").Key(); got != "conv:42" {
		t.Errorf("conversation key = %q, want conv:42", got)
	}
}

func TestMessageValidate(t *testing.T) {
	base := func() *types.Message {
		return &types.Message{
			ID:           "m1",
			Content:      "hello",
			SenderUserID: "u1",
			RoomID:       "r1",
			Type:         types.MessageTypeText,
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}

	m := base()
	m.SenderAIID = "e1"
	if err := m.Validate(); err == nil {
		t.Error("dual sender accepted, want error")
	}

	m = base()
	m.SenderUserID = ""
	if err := m.Validate(); err == nil {
		t.Error("missing sender accepted, want error")
	}

	m = base()
	m.ConversationID = "c1"
	if err := m.Validate(); err == nil {
		t.Error("dual context accepted, want error")
	}
}

func TestMemoryAccessors(t *testing.T) {
	m := &types.Memory{
		Content: map[string]interface{}{
			"fact": map[string]interface{}{"text": "Ada likes chess"},
		},
		Metadata: map[string]interface{}{
			types.MetaType:       "long_term",
			types.MetaFactHash:   "abc123",
			types.MetaChunkIndex: float64(2), // as it arrives from a JSON round-trip
		},
	}

	if got := m.Type(); got != types.MemoryTypeLongTerm {
		t.Errorf("Type() = %q, want long_term", got)
	}
	if got := m.FactHash(); got != "abc123" {
		t.Errorf("FactHash() = %q, want abc123", got)
	}
	if got := m.ChunkIndex(); got != 2 {
		t.Errorf("ChunkIndex() = %d, want 2", got)
	}
	if got := m.FactText(); got != "Ada likes chess" {
		t.Errorf("FactText() = %q, want %q", got, "Ada likes chess")
	}

	empty := &types.Memory{}
	if got := empty.Type(); got != "" {
		t.Errorf("empty Type() = %q, want empty", got)
	}
	if got := empty.ChunkIndex(); got != -1 {
		t.Errorf("empty ChunkIndex() = %d, want -1", got)
	}
	if got := empty.FactText(); got != "" {
		t.Errorf("empty FactText() = %q, want empty", got)
	}
}
