package facilitator

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentswarm/types"
)

// delegationBucket is the persistence bucket for delegation records.
const delegationBucket = "delegations"

// emaAlpha is the smoothing factor for the running completion-time average.
const emaAlpha = 0.2

// DelegationRecord is the cumulative performance aggregate for one agent. It
// is an exponentially updateable summary, not a raw history log.
type DelegationRecord struct {
	AgentID           string        `json:"agent_id"`
	TaskCount         int           `json:"task_count"`
	SuccessCount      int           `json:"success_count"`
	SuccessRate       float64       `json:"success_rate"`
	AvgCompletionTime time.Duration `json:"avg_completion_time"`
	LastUpdated       time.Time     `json:"last_updated"`
}

// performanceTracker maintains delegation records with write-through
// persistence.
type performanceTracker struct {
	mu      sync.RWMutex
	records map[string]*DelegationRecord

	kv     kvPutter
	logger *zap.Logger
}

type kvPutter interface {
	Put(ctx context.Context, bucket, key string, value any) error
}

func newPerformanceTracker(kv kvPutter, logger *zap.Logger) *performanceTracker {
	return &performanceTracker{
		records: make(map[string]*DelegationRecord),
		kv:      kv,
		logger:  logger,
	}
}

// record folds one delegation outcome into the agent's aggregate. The first
// outcome seeds the completion-time average; later ones blend in with an
// exponential moving average.
func (p *performanceTracker) record(ctx context.Context, agentID string, success bool, completionTime time.Duration) *DelegationRecord {
	now := time.Now()

	p.mu.Lock()
	rec, ok := p.records[agentID]
	if !ok {
		rec = &DelegationRecord{AgentID: agentID}
		p.records[agentID] = rec
	}
	rec.TaskCount++
	if success {
		rec.SuccessCount++
	}
	rec.SuccessRate = float64(rec.SuccessCount) / float64(rec.TaskCount)
	if rec.TaskCount == 1 {
		rec.AvgCompletionTime = completionTime
	} else {
		rec.AvgCompletionTime = time.Duration(
			float64(rec.AvgCompletionTime)*(1-emaAlpha) + float64(completionTime)*emaAlpha,
		)
	}
	rec.LastUpdated = now
	out := *rec
	p.mu.Unlock()

	if p.kv != nil {
		if err := p.kv.Put(ctx, delegationBucket, agentID, &out); err != nil {
			p.logger.Warn("failed to persist delegation record",
				zap.String("agent_id", agentID),
				zap.Error(err),
			)
		}
	}
	return &out
}

// get returns a copy of the agent's record.
func (p *performanceTracker) get(agentID string) (*DelegationRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.records[agentID]
	if !ok {
		return nil, types.NotFoundf("no delegation record for agent %s", agentID)
	}
	out := *rec
	return &out, nil
}

// rankedAgents returns agent ids ordered by success rate, best first, for
// biasing provider selection toward proven performers.
func (p *performanceTracker) rankedAgents(minTasks int) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	type scored struct {
		id   string
		rate float64
	}
	var all []scored
	for id, rec := range p.records {
		if rec.TaskCount >= minTasks {
			all = append(all, scored{id, rec.SuccessRate})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].rate != all[j].rate {
			return all[i].rate > all[j].rate
		}
		return all[i].id < all[j].id
	})
	out := make([]string, len(all))
	for i, s := range all {
		out[i] = s.id
	}
	return out
}
