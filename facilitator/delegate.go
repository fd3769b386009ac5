package facilitator

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentswarm/breakdown"
	"github.com/BaSui01/agentswarm/negotiate"
	"github.com/BaSui01/agentswarm/types"
)

// RunBreakdown decomposes a task with its contracted team, collects every
// member's ballot, and returns the decided breakdown. The proposer is the
// facilitator itself; the team members are the collaborators.
func (f *Facilitator) RunBreakdown(ctx context.Context, taskID string) (*breakdown.Breakdown, error) {
	task, err := f.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.ContractID == "" {
		return nil, types.InvalidStatef("task %s has no team contract, form a team first", taskID)
	}
	contract, err := f.recruiter.GetContract(ctx, task.ContractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != negotiate.ContractActive {
		return nil, types.InvalidStatef("contract %s is %s, breakdown needs an active team", contract.ID, contract.Status)
	}

	collaborators := make([]string, 0, len(contract.Participants))
	for _, p := range contract.Participants {
		collaborators = append(collaborators, p.AgentID)
	}

	b, err := f.breakdowns.Initiate(ctx, taskID, task.Description, "facilitator", collaborators, task.RequiredCapabilities)
	if err != nil {
		return nil, err
	}
	b, err = f.breakdowns.StartVoting(ctx, b.ID)
	if err != nil {
		return nil, err
	}

	f.setTaskStatus(taskID, TaskInProgress, func(t *Task) { t.BreakdownID = b.ID })

	// The facilitator backs its own proposal. The vote may close early once
	// enough member ballots land, so late casts hitting a closed voting are
	// expected, not failures.
	if err := f.breakdowns.Vote(ctx, b.ID, "facilitator", breakdown.ChoiceApprove); err != nil && !types.IsInvalidState(err) {
		return nil, err
	}
	f.collectBallots(ctx, b, collaborators)

	return f.breakdowns.Get(ctx, b.ID)
}

// collectBallots asks every collaborator to vote. Agents that fail or return
// no choice simply do not vote; the quorum rules decide what that means.
func (f *Facilitator) collectBallots(ctx context.Context, b *breakdown.Breakdown, collaborators []string) {
	g, gctx := errgroup.WithContext(ctx)
	for _, agentID := range collaborators {
		g.Go(func() error {
			resp, err := f.callAgent(gctx, agentID, &types.BallotRequest{
				VotingID: b.VotingID,
				Topic:    "task breakdown approval",
				Choices:  []string{breakdown.ChoiceApprove, breakdown.ChoiceReject},
				Deadline: time.Now().Add(f.config.AgentCallTimeout),
			})
			if err != nil {
				f.logger.Warn("ballot request failed",
					zap.String("agent_id", agentID),
					zap.Error(err),
				)
				return nil
			}
			if resp.Choice == "" {
				return nil
			}
			if err := f.breakdowns.Vote(gctx, b.ID, agentID, resp.Choice); err != nil && !types.IsInvalidState(err) {
				f.logger.Warn("ballot rejected",
					zap.String("agent_id", agentID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// DelegateSubtask sends one subtask of an approved breakdown to an agent and
// folds the outcome into the agent's delegation record.
func (f *Facilitator) DelegateSubtask(ctx context.Context, taskID, breakdownID, subtaskID, agentID string) (*types.Response, error) {
	b, err := f.breakdowns.Get(ctx, breakdownID)
	if err != nil {
		return nil, err
	}
	if b.Status != breakdown.StatusApproved {
		return nil, types.InvalidStatef("breakdown %s is %s, only approved breakdowns are delegated", breakdownID, b.Status)
	}

	var subtask *breakdown.Subtask
	for i := range b.Subtasks {
		if b.Subtasks[i].ID == subtaskID {
			subtask = &b.Subtasks[i]
			break
		}
	}
	if subtask == nil {
		return nil, types.NotFoundf("subtask %s not found in breakdown %s", subtaskID, breakdownID)
	}

	start := time.Now()
	resp, err := f.callAgent(ctx, agentID, &types.SubtaskRequest{
		SubtaskID:            subtask.ID,
		TaskID:               taskID,
		Description:          subtask.Description,
		RequiredCapabilities: subtask.RequiredCapabilities,
	})
	elapsed := time.Since(start)

	if err != nil {
		f.perf.record(ctx, agentID, false, elapsed)
		return nil, err
	}
	f.perf.record(ctx, agentID, resp.Accepted, elapsed)
	return resp, nil
}
