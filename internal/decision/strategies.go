package decision

import (
	"github.com/chorus-chat/chorus/pkg/types"
)

// strategyInputs carries the precomputed predicates a behavior consults.
type strategyInputs struct {
	mentioned  bool
	isQuestion bool
	content    string
	entity     *types.AIEntity
	rand       func() float64
}

// behavior resolves one strategy to a decision and a short reason.
type behavior func(in strategyInputs) (respond bool, reason string)

// roomBehaviors maps each room strategy to its behavior. Unknown values fall
// through to the engine's degrade-to-silence path.
var roomBehaviors = map[types.RoomStrategy]behavior{
	types.RoomNoResponse: func(in strategyInputs) (bool, string) {
		return false, "room strategy is no-response"
	},
	types.RoomMentionOnly: func(in strategyInputs) (bool, string) {
		if in.mentioned {
			return true, "mentioned by username"
		}
		return false, "not mentioned"
	},
	types.RoomProbabilistic: func(in strategyInputs) (bool, string) {
		p := in.entity.ResponseProbability
		if in.mentioned {
			p = 1.0
		}
		if in.rand() < p {
			if in.mentioned {
				return true, "mentioned, responding unconditionally"
			}
			return true, "probability draw succeeded"
		}
		return false, "probability draw failed"
	},
	types.RoomActive: func(in strategyInputs) (bool, string) {
		if in.mentioned {
			return true, "mentioned by username"
		}
		if !isSubstantive(in.content) {
			return false, "message too short"
		}
		return true, "active in room"
	},
}

// conversationBehaviors maps each conversation strategy to its behavior.
var conversationBehaviors = map[types.ConversationStrategy]behavior{
	types.ConvNoResponse: func(in strategyInputs) (bool, string) {
		return false, "conversation strategy is no-response"
	},
	types.ConvEveryMessage: func(in strategyInputs) (bool, string) {
		return true, "responds to every message"
	},
	types.ConvOnQuestions: func(in strategyInputs) (bool, string) {
		if in.isQuestion {
			return true, "message is a question"
		}
		return false, "message is not a question"
	},
	types.ConvSmart: func(in strategyInputs) (bool, string) {
		if in.mentioned {
			return true, "mentioned by username"
		}
		if in.isQuestion {
			return true, "message is a question"
		}
		return false, "neither mentioned nor a question"
	},
}
