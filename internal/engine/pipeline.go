// Package engine runs the background consolidation pipeline and short-term
// retention. The pipeline turns conversation history into short-term chunks
// and chunks into long-term facts using worker pools and a bounded job queue,
// keeping provider latency off the message path.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chorus-chat/chorus/pkg/types"
)

var (
	// ErrQueueFull is returned by Enqueue when the job buffer is at
	// capacity. Callers drop or defer; enqueue never blocks.
	ErrQueueFull = errors.New("pipeline queue is full")

	// ErrNotRunning is returned by Enqueue outside Start/Stop.
	ErrNotRunning = errors.New("pipeline is not running")
)

// JobKind discriminates pipeline work.
type JobKind string

const (
	// JobChunkConversation chunks new complete message windows into
	// short-term memories.
	JobChunkConversation JobKind = "chunk_conversation"

	// JobConsolidate promotes a conversation's short-term chunks into
	// long-term facts.
	JobConsolidate JobKind = "consolidate"
)

// Job is one queued unit of consolidation work.
type Job struct {
	Kind           JobKind
	EntityID       string
	ConversationID string

	// UserIDs scope the facts produced by a consolidate job.
	UserIDs []string

	// EnqueuedAt is set by Enqueue.
	EnqueuedAt time.Time
}

// Result reports a completed job to the completion callback.
type Result struct {
	Job           Job
	ChunksCreated int
	FactsCreated  int
	Err           error
	Duration      time.Duration
}

// ShortTermProcessor chunks conversation history incrementally.
type ShortTermProcessor interface {
	ProcessConversation(ctx context.Context, entityID, conversationID string) (int, error)
}

// Consolidator promotes short-term chunks to long-term facts.
type Consolidator interface {
	CreateLongTermFromChunks(ctx context.Context, entityID string, userIDs []string, conversationID string, stmChunks []*types.Memory) ([]*types.Memory, error)
}

// ChunkLister loads a conversation's stored short-term chunks.
type ChunkLister interface {
	ShortTermChunks(ctx context.Context, entityID, conversationID string) ([]*types.Memory, error)
}

// Config holds pipeline tuning.
type Config struct {
	// NumWorkers is the number of worker goroutines (default: 2).
	NumWorkers int

	// QueueSize is the job buffer capacity (default: 100).
	QueueSize int

	// JobTimeout bounds one job's provider and store calls (default: 2m).
	JobTimeout time.Duration

	// ShutdownTimeout is the maximum wait for workers to drain (default: 30s).
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		NumWorkers:      2,
		QueueSize:       100,
		JobTimeout:      2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

func (c *Config) normalize() {
	if c.NumWorkers < 1 {
		c.NumWorkers = 2
	}
	if c.QueueSize < 1 {
		c.QueueSize = 100
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// Pipeline is the background consolidation worker pool.
type Pipeline struct {
	shortTerm ShortTermProcessor
	longTerm  Consolidator
	chunks    ChunkLister
	config    Config

	queue  chan Job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	started    bool
	onComplete func(Result)
}

// NewPipeline creates a consolidation pipeline. Zero config fields take
// defaults.
func NewPipeline(shortTerm ShortTermProcessor, longTerm Consolidator, chunks ChunkLister, config Config) *Pipeline {
	config.normalize()
	return &Pipeline{
		shortTerm: shortTerm,
		longTerm:  longTerm,
		chunks:    chunks,
		config:    config,
		queue:     make(chan Job, config.QueueSize),
	}
}

// SetOnComplete registers a callback invoked after every job, success or
// failure. Used to feed the ops activity websocket. Must be called before
// Start.
func (p *Pipeline) SetOnComplete(callback func(Result)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onComplete = callback
}

// Start launches the worker pool.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("pipeline already started")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.started = true

	log.Printf("pipeline: started %d worker(s), queue size %d", p.config.NumWorkers, p.config.QueueSize)
	return nil
}

// Stop closes the queue and waits for workers to drain buffered jobs, up to
// the shutdown timeout.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	p.cancel()
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("pipeline: all workers finished")
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		log.Printf("pipeline: shutdown timeout, %d job(s) may be dropped", len(p.queue))
		return nil
	case <-ctx.Done():
		log.Printf("pipeline: shutdown cancelled, %d job(s) may be dropped", len(p.queue))
		return ctx.Err()
	}
}

// Enqueue submits a job without blocking. Returns ErrQueueFull when the
// buffer is at capacity and ErrNotRunning outside the started state.
func (p *Pipeline) Enqueue(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started || p.ctx.Err() != nil {
		return ErrNotRunning
	}
	if job.EntityID == "" || job.ConversationID == "" {
		return fmt.Errorf("job requires entity and conversation ids")
	}

	job.EnqueuedAt = time.Now().UTC()
	select {
	case p.queue <- job:
		return nil
	default:
		log.Printf("pipeline: queue full (size=%d), dropping %s job for conversation %s", p.config.QueueSize, job.Kind, job.ConversationID)
		return ErrQueueFull
	}
}

// QueueLen reports the number of buffered jobs, for the ops stats surface.
func (p *Pipeline) QueueLen() int {
	return len(p.queue)
}

func (p *Pipeline) worker(id int) {
	defer p.wg.Done()

	log.Printf("pipeline: worker %d started", id)
	for job := range p.queue {
		p.process(id, job)
	}
	log.Printf("pipeline: worker %d stopped", id)
}

// process runs one job on a fresh timeout context. Jobs deliberately do not
// inherit the pipeline context: a job already running when Stop is called
// finishes its writes instead of being cancelled mid-consolidation.
func (p *Pipeline) process(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	start := time.Now()
	result := Result{Job: job}

	switch job.Kind {
	case JobChunkConversation:
		result.ChunksCreated, result.Err = p.shortTerm.ProcessConversation(ctx, job.EntityID, job.ConversationID)
	case JobConsolidate:
		result.FactsCreated, result.Err = p.consolidate(ctx, job)
	default:
		result.Err = fmt.Errorf("unknown job kind %q", job.Kind)
	}
	result.Duration = time.Since(start)

	if result.Err != nil {
		log.Printf("pipeline: worker %d %s failed for conversation %s: %v", workerID, job.Kind, job.ConversationID, result.Err)
	} else {
		log.Printf("pipeline: worker %d %s done for conversation %s (%d chunk(s), %d fact(s), %v)",
			workerID, job.Kind, job.ConversationID, result.ChunksCreated, result.FactsCreated, result.Duration.Round(time.Millisecond))
	}

	p.mu.RLock()
	callback := p.onComplete
	p.mu.RUnlock()
	if callback != nil {
		callback(result)
	}
}

func (p *Pipeline) consolidate(ctx context.Context, job Job) (int, error) {
	chunks, err := p.chunks.ShortTermChunks(ctx, job.EntityID, job.ConversationID)
	if err != nil {
		return 0, fmt.Errorf("failed to load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	facts, err := p.longTerm.CreateLongTermFromChunks(ctx, job.EntityID, job.UserIDs, job.ConversationID, chunks)
	if err != nil {
		return len(facts), err
	}
	return len(facts), nil
}
