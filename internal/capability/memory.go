package capability

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/helmd/internal/intent"
	"github.com/fyrsmithlabs/helmd/internal/privacy"
)

// MemoryRecord is one stored memory.
type MemoryRecord struct {
	ID         string             `json:"id"`
	Scope      intent.MemoryScope `json:"scope"`
	Summary    string             `json:"summary"`
	Confidence float64            `json:"confidence"`
	Redacted   bool               `json:"redacted"`
	CreatedAt  time.Time          `json:"createdAt"`
	Similarity float32            `json:"similarity,omitempty"`
}

// MemorySnapshot is the diagnostic view of the memory module.
type MemorySnapshot struct {
	Counts     map[intent.MemoryScope]int `json:"counts"`
	Writes     int                        `json:"writes"`
	Redactions int                        `json:"redactions"`
	Deduped    int                        `json:"deduplicated"`
	Locked     bool                       `json:"locked"`
}

// Memory stores approved memory proposals in an embedded vector database,
// one collection per scope.
type Memory struct {
	db       *chromem.DB
	embed    chromem.EmbeddingFunc
	redactor privacy.Redactor
	locks    *lockRef
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string

	dedupThreshold float32

	writeMu sync.Mutex

	mu           sync.Mutex
	collections  map[intent.MemoryScope]*chromem.Collection
	writes       int
	redactions   int
	deduplicated int
}

// NewMemory creates an in-memory store.
func NewMemory(opts ...Option) *Memory {
	o := buildOptions(opts)
	m := &Memory{
		db:             chromem.NewDB(),
		embed:          o.embedder.EmbeddingFunc(),
		redactor:       o.redactor,
		locks:          &lockRef{},
		logger:         o.logger.Named("memory"),
		now:            o.now,
		newID:          o.newID,
		dedupThreshold: o.dedupThreshold,
		collections:    make(map[intent.MemoryScope]*chromem.Collection),
	}
	m.locks.set(o.locks)
	return m
}

func (m *Memory) Name() string { return "memory" }

// BindLocks replaces the lock source.
func (m *Memory) BindLocks(l Locks) { m.locks.set(l) }

// Execute redacts the summary and stores it under its scope. A summary whose
// nearest neighbour in the scope meets the dedup threshold is not stored
// again; the outcome carries the existing record marked Deduplicated.
func (m *Memory) Execute(ctx context.Context, in intent.Intent) (Outcome, error) {
	mp, ok := in.(intent.MemoryProposal)
	if !ok {
		return Outcome{}, unsupported(m.Name(), in)
	}
	if m.locks.get().MemoryLocked() {
		return Outcome{}, &LockError{Domain: "memory"}
	}

	res := m.redactor.Redact(mp.Summary)
	record := MemoryRecord{
		Scope:      mp.Scope,
		Summary:    res.Redacted,
		Confidence: mp.Confidence,
		Redacted:   res.HasFindings(),
		CreatedAt:  m.now(),
	}

	coll, err := m.collection(mp.Scope)
	if err != nil {
		return Outcome{}, err
	}
	embedding, err := m.embed(ctx, record.Summary)
	if err != nil {
		return Outcome{}, fmt.Errorf("embedding memory: %w", err)
	}

	// Lookup and insert must not interleave with another write.
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if existing, ok, err := m.nearDuplicate(ctx, coll, embedding); err != nil {
		return Outcome{}, err
	} else if ok {
		m.mu.Lock()
		m.deduplicated++
		m.mu.Unlock()
		m.logger.Debug("memory deduplicated",
			zap.String("memory_id", existing.ID),
			zap.String("scope", string(existing.Scope)),
			zap.Float32("similarity", existing.Similarity),
		)
		return Outcome{ActionType: ActionMemoryWrite, Target: string(mp.Scope), Result: existing, Deduplicated: true}, nil
	}

	record.ID = m.newID()
	doc := chromem.Document{
		ID:        record.ID,
		Content:   record.Summary,
		Embedding: embedding,
		Metadata: map[string]string{
			"scope":      string(record.Scope),
			"confidence": strconv.FormatFloat(record.Confidence, 'f', -1, 64),
			"created_at": record.CreatedAt.UTC().Format(time.RFC3339Nano),
			"redacted":   strconv.FormatBool(record.Redacted),
		},
	}
	if err := coll.AddDocument(ctx, doc); err != nil {
		return Outcome{}, fmt.Errorf("storing memory: %w", err)
	}

	m.mu.Lock()
	m.writes++
	if record.Redacted {
		m.redactions++
	}
	m.mu.Unlock()

	if record.Redacted {
		m.logger.Info("memory summary redacted",
			zap.String("memory_id", record.ID),
			zap.Strings("rules", res.RuleIDs()),
		)
	}
	m.logger.Debug("memory stored",
		zap.String("memory_id", record.ID),
		zap.String("scope", string(record.Scope)),
	)

	return Outcome{ActionType: ActionMemoryWrite, Target: string(mp.Scope), Result: record}, nil
}

// nearDuplicate returns the stored record closest to embedding when its
// similarity reaches the dedup threshold.
func (m *Memory) nearDuplicate(ctx context.Context, coll *chromem.Collection, embedding []float32) (MemoryRecord, bool, error) {
	if m.dedupThreshold <= 0 || coll.Count() == 0 {
		return MemoryRecord{}, false, nil
	}
	results, err := coll.QueryEmbedding(ctx, embedding, 1, nil, nil)
	if err != nil {
		return MemoryRecord{}, false, fmt.Errorf("checking for duplicate memory: %w", err)
	}
	if len(results) == 0 || results[0].Similarity < m.dedupThreshold {
		return MemoryRecord{}, false, nil
	}
	return recordFrom(results[0]), true, nil
}

// Search returns up to k memories in scope most similar to query.
func (m *Memory) Search(ctx context.Context, scope intent.MemoryScope, query string, k int) ([]MemoryRecord, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	m.mu.Lock()
	coll := m.collections[scope]
	m.mu.Unlock()
	if coll == nil {
		return []MemoryRecord{}, nil
	}

	count := coll.Count()
	if count == 0 {
		return []MemoryRecord{}, nil
	}
	if k > count {
		k = count
	}
	results, err := coll.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying %s memories: %w", scope, err)
	}

	records := make([]MemoryRecord, 0, len(results))
	for _, r := range results {
		records = append(records, recordFrom(r))
	}
	return records, nil
}

func recordFrom(r chromem.Result) MemoryRecord {
	conf, _ := strconv.ParseFloat(r.Metadata["confidence"], 64)
	created, _ := time.Parse(time.RFC3339Nano, r.Metadata["created_at"])
	redacted, _ := strconv.ParseBool(r.Metadata["redacted"])
	return MemoryRecord{
		ID:         r.ID,
		Scope:      intent.MemoryScope(r.Metadata["scope"]),
		Summary:    r.Content,
		Confidence: conf,
		Redacted:   redacted,
		CreatedAt:  created,
		Similarity: r.Similarity,
	}
}

func (m *Memory) Snapshot() any {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[intent.MemoryScope]int, len(m.collections))
	for scope, coll := range m.collections {
		counts[scope] = coll.Count()
	}
	return MemorySnapshot{
		Counts:     counts,
		Writes:     m.writes,
		Redactions: m.redactions,
		Deduped:    m.deduplicated,
		Locked:     m.locks.get().MemoryLocked(),
	}
}

func (m *Memory) collection(scope intent.MemoryScope) (*chromem.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if coll, ok := m.collections[scope]; ok {
		return coll, nil
	}
	coll, err := m.db.GetOrCreateCollection("memories_"+string(scope), map[string]string{"scope": string(scope)}, m.embed)
	if err != nil {
		return nil, fmt.Errorf("opening %s collection: %w", scope, err)
	}
	m.collections[scope] = coll
	return coll, nil
}
