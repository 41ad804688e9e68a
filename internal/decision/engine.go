package decision

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/chorus-chat/chorus/pkg/types"
)

// Engine evaluates whether an AI entity responds to a message. Evaluations
// are independent and safe to run concurrently for many entities; the only
// shared state is the cooldown record behind the tracker.
type Engine struct {
	cooldowns *CooldownTracker
	rand      func() float64
	now       func() time.Time
}

// NewEngine creates a decision engine using the package-global random source.
func NewEngine(cooldowns *CooldownTracker) *Engine {
	return &Engine{
		cooldowns: cooldowns,
		rand:      rand.Float64,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NewEngineWithRand creates a decision engine with an injected random source.
// Probabilistic strategies draw from randFn, which must return values in
// [0, 1).
func NewEngineWithRand(cooldowns *CooldownTracker, randFn func() float64) *Engine {
	e := NewEngine(cooldowns)
	e.rand = randFn
	return e
}

// ShouldRespond reports whether the entity responds to the message in the
// given context. A true result has already claimed the entity's cooldown
// slot; the caller's next step is generating the reply, not re-checking.
func (e *Engine) ShouldRespond(ctx context.Context, entity *types.AIEntity, msg *types.Message, chatCtx types.ChatContext) (bool, error) {
	trace, err := e.Evaluate(ctx, entity, msg, chatCtx)
	if err != nil {
		return false, err
	}
	return trace.Respond, nil
}

// Evaluate runs the full decision and returns its trace. Short-circuit order:
// own message, inactive entity, cooldown, then strategy dispatch. When the
// strategy answers yes and a cooldown is configured, the response slot is
// claimed atomically; losing the claim suppresses the response.
func (e *Engine) Evaluate(ctx context.Context, entity *types.AIEntity, msg *types.Message, chatCtx types.ChatContext) (*types.DecisionTrace, error) {
	return e.evaluate(ctx, entity, msg, chatCtx, true)
}

// DryRun evaluates without claiming the cooldown slot, so a would-respond
// answer leaves no trace in the cooldown store. Backs the ops dry-run
// endpoint.
func (e *Engine) DryRun(ctx context.Context, entity *types.AIEntity, msg *types.Message, chatCtx types.ChatContext) (*types.DecisionTrace, error) {
	return e.evaluate(ctx, entity, msg, chatCtx, false)
}

func (e *Engine) evaluate(ctx context.Context, entity *types.AIEntity, msg *types.Message, chatCtx types.ChatContext, claim bool) (*types.DecisionTrace, error) {
	if entity == nil {
		return nil, fmt.Errorf("decision: entity is required")
	}
	if msg == nil {
		return nil, fmt.Errorf("decision: message is required")
	}
	if err := chatCtx.Validate(); err != nil {
		return nil, fmt.Errorf("decision: %w", err)
	}

	trace := &types.DecisionTrace{
		EntityID:    entity.ID,
		MessageID:   msg.ID,
		ContextKey:  chatCtx.Key(),
		EvaluatedAt: e.now(),
	}

	if msg.SentBy(entity.ID) {
		trace.OwnMessage = true
		trace.Reason = "own message"
		return trace, nil
	}

	if !entity.IsActive {
		trace.Reason = "entity inactive"
		return trace, nil
	}

	trace.Mentioned = IsMentioned(msg.Content, entity.Username)
	trace.IsQuestion = IsQuestion(msg.Content)

	cooldown := time.Duration(0)
	if entity.CooldownSeconds != nil && *entity.CooldownSeconds > 0 {
		cooldown = time.Duration(*entity.CooldownSeconds) * time.Second
		if e.cooldowns.IsOnCooldown(ctx, entity.ID, cooldown, trace.ContextKey) {
			trace.OnCooldown = true
			trace.Reason = "on cooldown"
			return trace, nil
		}
	}

	in := strategyInputs{
		mentioned:  trace.Mentioned,
		isQuestion: trace.IsQuestion,
		content:    msg.Content,
		entity:     entity,
		rand:       e.rand,
	}

	var respond bool
	if chatCtx.IsRoom() {
		trace.Strategy = string(entity.RoomResponseStrategy)
		b, ok := roomBehaviors[entity.RoomResponseStrategy]
		if !ok {
			log.Printf("decision: unknown room strategy %q for entity %s, not responding", entity.RoomResponseStrategy, entity.ID)
			trace.Reason = "unknown room strategy"
			return trace, nil
		}
		respond, trace.Reason = b(in)
	} else {
		trace.Strategy = string(entity.ConversationResponseStrategy)
		b, ok := conversationBehaviors[entity.ConversationResponseStrategy]
		if !ok {
			log.Printf("decision: unknown conversation strategy %q for entity %s, not responding", entity.ConversationResponseStrategy, entity.ID)
			trace.Reason = "unknown conversation strategy"
			return trace, nil
		}
		respond, trace.Reason = b(in)
	}

	if !respond {
		return trace, nil
	}

	// The read check above is advisory; this claim is the race-safe gate.
	if claim && cooldown > 0 {
		accepted, err := e.cooldowns.TryMarkResponded(ctx, entity.ID, trace.ContextKey, cooldown)
		if err != nil {
			log.Printf("decision: cooldown claim failed for %s %s, suppressing response: %v", entity.ID, trace.ContextKey, err)
			trace.OnCooldown = true
			trace.Reason = "cooldown claim failed"
			return trace, nil
		}
		if !accepted {
			trace.OnCooldown = true
			trace.Reason = "lost cooldown race"
			return trace, nil
		}
	}

	trace.Respond = true
	return trace, nil
}
