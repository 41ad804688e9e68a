package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/chorus-chat/chorus/internal/llm"
	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
)

// RetrieverConfig tunes hybrid retrieval. Zero values fall back to defaults
// in NewRetriever.
type RetrieverConfig struct {
	VectorWeight        float64 // weight of the vector rank in per-layer fusion
	KeywordWeight       float64 // weight of the keyword rank in per-layer fusion
	RRFK                int     // reciprocal rank fusion constant
	ShortTermBoost      float64 // cross-layer weight for short_term
	LongTermBoost       float64 // cross-layer weight for long_term
	PersonalityBoost    float64 // cross-layer weight for personality
	CandidatesPerLayer  int     // candidate pool size per layer
	MaxRetrieved        int     // total memories returned
	GuaranteedShortTerm int     // short_term slots reserved in the result
}

// DefaultRetrieverConfig returns the tuning used in production.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		VectorWeight:        0.7,
		KeywordWeight:       0.3,
		RRFK:                60,
		ShortTermBoost:      2.0,
		LongTermBoost:       1.0,
		PersonalityBoost:    1.0,
		CandidatesPerLayer:  5,
		MaxRetrieved:        7,
		GuaranteedShortTerm: 1,
	}
}

// TierResult groups retrieved memories by layer, each layer ordered by fused
// relevance descending.
type TierResult struct {
	ShortTerm   []*types.Memory
	LongTerm    []*types.Memory
	Personality []*types.Memory
}

// All returns every retrieved memory across layers.
func (r *TierResult) All() []*types.Memory {
	all := make([]*types.Memory, 0, len(r.ShortTerm)+len(r.LongTerm)+len(r.Personality))
	all = append(all, r.ShortTerm...)
	all = append(all, r.LongTerm...)
	all = append(all, r.Personality...)
	return all
}

// Empty reports whether no layer returned anything.
func (r *TierResult) Empty() bool {
	return len(r.ShortTerm) == 0 && len(r.LongTerm) == 0 && len(r.Personality) == 0
}

// Retriever selects the memories injected into a prompt. Each layer runs a
// hybrid vector+keyword search fused by reciprocal rank; the layers then
// compete in a second weighted fusion, with short-term boosted because the
// active conversation is usually what a reply needs most.
type Retriever struct {
	memories storage.MemoryStore
	embedder llm.EmbeddingGenerator
	cfg      RetrieverConfig
}

// NewRetriever creates a retriever. Zero fields in cfg take defaults.
func NewRetriever(memories storage.MemoryStore, embedder llm.EmbeddingGenerator, cfg RetrieverConfig) *Retriever {
	def := DefaultRetrieverConfig()
	if cfg.VectorWeight <= 0 {
		cfg.VectorWeight = def.VectorWeight
	}
	if cfg.KeywordWeight <= 0 {
		cfg.KeywordWeight = def.KeywordWeight
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = def.RRFK
	}
	if cfg.ShortTermBoost <= 0 {
		cfg.ShortTermBoost = def.ShortTermBoost
	}
	if cfg.LongTermBoost <= 0 {
		cfg.LongTermBoost = def.LongTermBoost
	}
	if cfg.PersonalityBoost <= 0 {
		cfg.PersonalityBoost = def.PersonalityBoost
	}
	if cfg.CandidatesPerLayer <= 0 {
		cfg.CandidatesPerLayer = def.CandidatesPerLayer
	}
	if cfg.MaxRetrieved <= 0 {
		cfg.MaxRetrieved = def.MaxRetrieved
	}
	if cfg.GuaranteedShortTerm < 0 {
		cfg.GuaranteedShortTerm = def.GuaranteedShortTerm
	}
	return &Retriever{memories: memories, embedder: embedder, cfg: cfg}
}

// scoredMemory is a fusion candidate with its cross-layer score.
type scoredMemory struct {
	memory *types.Memory
	layer  types.MemoryType
	score  float64
}

// RetrieveForPrompt returns the memories most relevant to query for the given
// entity, scoped to the user and conversation at hand. Short-term search stays
// inside the conversation; long-term explicitly excludes it (recent history is
// already in the prompt verbatim); personality is entity-global.
//
// The query is embedded exactly once. An embedding provider failure is
// returned to the caller, wrapping llm.ErrProviderFailure; callers on the
// reply path degrade by omitting memories rather than failing.
func (r *Retriever) RetrieveForPrompt(ctx context.Context, entityID, userID, conversationID, query string) (*TierResult, error) {
	if entityID == "" {
		return nil, fmt.Errorf("entity id is required")
	}
	if r.embedder == nil {
		return nil, fmt.Errorf("no embedding provider configured")
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	layers := []struct {
		layer types.MemoryType
		boost float64
		opts  storage.SearchOptions
	}{
		{
			layer: types.MemoryTypeShortTerm,
			boost: r.cfg.ShortTermBoost,
			opts: storage.SearchOptions{
				ConversationID: conversationID,
				UserID:         userID,
				MemoryType:     types.MemoryTypeShortTerm,
				Limit:          r.cfg.CandidatesPerLayer,
			},
		},
		{
			layer: types.MemoryTypeLongTerm,
			boost: r.cfg.LongTermBoost,
			opts: storage.SearchOptions{
				ExcludeConversationID: conversationID,
				UserID:                userID,
				MemoryType:            types.MemoryTypeLongTerm,
				Limit:                 r.cfg.CandidatesPerLayer,
			},
		},
		{
			layer: types.MemoryTypePersonality,
			boost: r.cfg.PersonalityBoost,
			opts: storage.SearchOptions{
				MemoryType: types.MemoryTypePersonality,
				Limit:      r.cfg.CandidatesPerLayer,
			},
		},
	}

	var fused []scoredMemory
	for _, l := range layers {
		// Short-term memory is conversation-scoped; without a conversation
		// (room contexts) there is no "this conversation" layer to search.
		if l.layer == types.MemoryTypeShortTerm && conversationID == "" {
			continue
		}
		ranked, err := r.fuseLayer(ctx, entityID, embedding, query, l.opts)
		if err != nil {
			return nil, err
		}
		for rank, m := range ranked {
			fused = append(fused, scoredMemory{
				memory: m,
				layer:  l.layer,
				score:  l.boost / float64(r.cfg.RRFK+rank+1),
			})
		}
	}

	sortByScore(fused)
	selected := r.selectWithGuarantee(fused)

	result := &TierResult{}
	for _, c := range selected {
		switch c.layer {
		case types.MemoryTypeShortTerm:
			result.ShortTerm = append(result.ShortTerm, c.memory)
		case types.MemoryTypeLongTerm:
			result.LongTerm = append(result.LongTerm, c.memory)
		case types.MemoryTypePersonality:
			result.Personality = append(result.Personality, c.memory)
		}
	}
	return result, nil
}

// fuseLayer runs the vector and keyword searches for one layer and fuses the
// two rankings by weighted reciprocal rank. Short-term memories carry no
// embedding, so their vector half is empty and keyword rank carries the layer.
func (r *Retriever) fuseLayer(ctx context.Context, entityID string, embedding []float32, query string, opts storage.SearchOptions) ([]*types.Memory, error) {
	vecResults, err := r.memories.VectorSearch(ctx, entityID, embedding, opts)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	kwResults, err := r.memories.KeywordSearch(ctx, entityID, query, opts)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	scores := make(map[string]float64)
	byID := make(map[string]*types.Memory)
	var order []string

	add := func(results []*types.Memory, weight float64) {
		for i, m := range results {
			scores[m.ID] += weight / float64(r.cfg.RRFK+i+1)
			if _, ok := byID[m.ID]; !ok {
				byID[m.ID] = m
				order = append(order, m.ID)
			}
		}
	}
	add(vecResults, r.cfg.VectorWeight)
	add(kwResults, r.cfg.KeywordWeight)

	scored := make([]scoredMemory, 0, len(order))
	for _, id := range order {
		scored = append(scored, scoredMemory{memory: byID[id], score: scores[id]})
	}
	sortByScore(scored)

	if len(scored) > r.cfg.CandidatesPerLayer {
		scored = scored[:r.cfg.CandidatesPerLayer]
	}
	ranked := make([]*types.Memory, len(scored))
	for i, s := range scored {
		ranked[i] = s.memory
	}
	return ranked, nil
}

// selectWithGuarantee takes the top MaxRetrieved candidates, then swaps in
// short-term entries for the lowest-ranked others until the short-term
// guarantee is met or candidates run out.
func (r *Retriever) selectWithGuarantee(fused []scoredMemory) []scoredMemory {
	n := r.cfg.MaxRetrieved
	if n > len(fused) {
		n = len(fused)
	}
	selected := make([]scoredMemory, n)
	copy(selected, fused[:n])

	guarantee := r.cfg.GuaranteedShortTerm
	if guarantee > n {
		guarantee = n
	}

	have := 0
	for _, c := range selected {
		if c.layer == types.MemoryTypeShortTerm {
			have++
		}
	}

	if have < guarantee {
		var pool []scoredMemory
		for _, c := range fused[n:] {
			if c.layer == types.MemoryTypeShortTerm {
				pool = append(pool, c)
			}
		}
		for _, cand := range pool {
			if have >= guarantee {
				break
			}
			idx := -1
			for i := len(selected) - 1; i >= 0; i-- {
				if selected[i].layer != types.MemoryTypeShortTerm {
					idx = i
					break
				}
			}
			if idx == -1 {
				break
			}
			selected[idx] = cand
			have++
		}
		sortByScore(selected)
	}
	return selected
}

// sortByScore orders candidates by fused score descending; ties break by
// importance, then recency, then ID for determinism.
func sortByScore(candidates []scoredMemory) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.memory.ImportanceScore != b.memory.ImportanceScore {
			return a.memory.ImportanceScore > b.memory.ImportanceScore
		}
		if !a.memory.CreatedAt.Equal(b.memory.CreatedAt) {
			return a.memory.CreatedAt.After(b.memory.CreatedAt)
		}
		return a.memory.ID < b.memory.ID
	})
}
