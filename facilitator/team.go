package facilitator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentswarm/capability"
	"github.com/BaSui01/agentswarm/negotiate"
	"github.com/BaSui01/agentswarm/types"
)

// maxFormationAttempts bounds how many times provider selection is retried
// with declined providers excluded.
const maxFormationAttempts = 3

// TeamFormation is the outcome of FormTeam.
type TeamFormation struct {
	TaskID    string                  `json:"task_id"`
	Contract  *negotiate.TeamContract `json:"contract"`
	Recruited []string                `json:"recruited"`
	Declined  []string                `json:"declined,omitempty"`
	Uncovered []string                `json:"uncovered,omitempty"`
}

// FormTeam assembles a team for a task: greedy provider selection biased by
// delegation history, a concurrent inquiry round, recruitment of the willing
// providers, and finally a draft contract activated once every recruit has
// accepted. At least one accepted recruit is required for success.
func (f *Facilitator) FormTeam(ctx context.Context, taskID string) (*TeamFormation, error) {
	task, err := f.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != TaskOpen {
		return nil, types.InvalidStatef("task %s is %s, team formation needs an open task", taskID, task.Status)
	}

	// A declined provider is excluded and selection retried, so an unwilling
	// agent does not shadow an equivalent willing one.
	formation := &TeamFormation{TaskID: taskID}
	var participants []negotiate.Participant
	var excluded []string
	for attempt := 0; attempt < maxFormationAttempts; attempt++ {
		search, err := f.registry.FindProvidersForCapabilities(ctx, &capability.ProviderSearchRequest{
			Capabilities:      task.RequiredCapabilities,
			Required:          task.RequiredCapabilities,
			ExcludedProviders: excluded,
			MaxProviders:      f.config.MaxTeamSize,
			AllowPartial:      true,
		})
		if err != nil || len(search.Providers) == 0 {
			break
		}
		formation.Uncovered = search.Missing

		// Delegation history breaks ties between otherwise equivalent
		// providers: proven performers are inquired first.
		ranked := f.perf.rankedAgents(f.config.MinPerformanceTasks)
		assignments := orderByHistory(search.Providers, ranked)

		willing, declined := f.inquiryRound(ctx, task, assignments)
		formation.Declined = append(formation.Declined, declined...)
		excluded = append(excluded, declined...)

		for _, a := range willing {
			recruited, err := f.recruitProvider(ctx, task, a)
			if err != nil {
				f.logger.Warn("recruitment failed",
					zap.String("task_id", taskID),
					zap.String("agent_id", a.AgentID),
					zap.Error(err),
				)
			}
			if err != nil || !recruited {
				formation.Declined = append(formation.Declined, a.AgentID)
				excluded = append(excluded, a.AgentID)
				continue
			}
			formation.Recruited = append(formation.Recruited, a.AgentID)
			excluded = append(excluded, a.AgentID)
			participants = append(participants, negotiate.Participant{
				AgentID:              a.AgentID,
				Role:                 f.config.DefaultRole,
				RequiredCapabilities: a.Capabilities,
			})
		}
		if len(participants) > 0 {
			break
		}
	}
	if len(participants) == 0 {
		return nil, types.NotFoundf("no provider could be recruited for task %s", taskID)
	}

	contract, err := f.recruiter.CreateTeamContract(ctx, taskID, "team-"+taskID, participants,
		negotiate.Terms{StartTime: time.Now()}, nil)
	if err != nil {
		return nil, err
	}
	contract, err = f.recruiter.ActivateContract(ctx, contract.ID)
	if err != nil {
		return nil, err
	}
	formation.Contract = contract

	f.setTaskStatus(taskID, TaskTeamFormed, func(t *Task) { t.ContractID = contract.ID })
	f.logger.Info("team formed",
		zap.String("task_id", taskID),
		zap.String("contract_id", contract.ID),
		zap.Int("members", len(participants)),
	)
	return formation, nil
}

// inquiryRound asks every candidate concurrently whether it can cover its
// assigned capabilities. Agent failures drop the candidate, they never abort
// the round.
func (f *Facilitator) inquiryRound(ctx context.Context, task *Task, assignments []capability.ProviderAssignment) (willing []capability.ProviderAssignment, declined []string) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, a := range assignments {
		g.Go(func() error {
			available := true
			for _, capName := range a.Capabilities {
				ok, err := f.inquireOne(gctx, task, a.AgentID, capName)
				if err != nil {
					f.logger.Warn("inquiry failed",
						zap.String("agent_id", a.AgentID),
						zap.String("capability", capName),
						zap.Error(err),
					)
					available = false
					break
				}
				if !ok {
					available = false
					break
				}
			}
			mu.Lock()
			if available {
				willing = append(willing, a)
			} else {
				declined = append(declined, a.AgentID)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return willing, declined
}

// inquireOne runs one inquiry end to end: create it, ask the agent, record
// the answer, and read the selection result.
func (f *Facilitator) inquireOne(ctx context.Context, task *Task, agentID, capName string) (bool, error) {
	inq, err := f.negotiator.CreateInquiry(ctx, "facilitator", capName, negotiate.InquiryOptions{
		Context: task.Description,
	})
	if err != nil {
		return false, err
	}

	resp, err := f.callAgent(ctx, agentID, &types.InquiryRequest{
		InquiryID:  inq.ID,
		Capability: capName,
		Context:    task.Description,
		Deadline:   inq.ExpiresAt,
	})
	if err != nil {
		return false, err
	}

	commitment := resp.Commitment
	if resp.Accepted && commitment == "" {
		commitment = negotiate.CommitmentTentative
	}
	if err := f.negotiator.ProcessResponse(ctx, negotiate.InquiryResponse{
		InquiryID:       inq.ID,
		FromAgent:       agentID,
		Available:       resp.Accepted,
		ConfidenceLevel: resp.Confidence,
		CommitmentLevel: commitment,
	}); err != nil {
		return false, err
	}

	result, err := f.negotiator.GetResult(ctx, inq.ID)
	if err != nil {
		return false, err
	}
	return result.Success && result.SelectedProvider == agentID, nil
}

// recruitProvider runs the recruitment protocol against one willing
// provider: inquiry record, proposal, and the agent's accept or reject.
func (f *Facilitator) recruitProvider(ctx context.Context, task *Task, a capability.ProviderAssignment) (bool, error) {
	if _, err := f.recruiter.StartRecruitment(ctx, task.ID, a.AgentID, ""); err != nil {
		return false, err
	}
	rec, err := f.recruiter.SendProposal(ctx, negotiate.Proposal{
		TaskID:               task.ID,
		TargetAgent:          a.AgentID,
		Role:                 f.config.DefaultRole,
		RequiredCapabilities: a.Capabilities,
	})
	if err != nil {
		return false, err
	}

	resp, err := f.callAgent(ctx, a.AgentID, &types.ProposalRequest{
		ProposalID:           rec.Proposal.ID,
		TaskID:               task.ID,
		Role:                 rec.Proposal.Role,
		RequiredCapabilities: rec.Proposal.RequiredCapabilities,
		ExpiresAt:            rec.Proposal.ExpiresAt,
	})
	if err != nil {
		return false, err
	}

	if !resp.Accepted {
		if _, err := f.recruiter.Reject(ctx, task.ID, a.AgentID, resp.Content); err != nil {
			return false, err
		}
		return false, nil
	}
	if _, err := f.recruiter.Accept(ctx, task.ID, a.AgentID); err != nil {
		return false, err
	}
	return true, nil
}

// orderByHistory moves assignments whose agents rank high in delegation
// history to the front, preserving the greedy selection order otherwise.
func orderByHistory(assignments []capability.ProviderAssignment, ranked []string) []capability.ProviderAssignment {
	rank := make(map[string]int, len(ranked))
	for i, id := range ranked {
		rank[id] = i + 1
	}
	out := make([]capability.ProviderAssignment, 0, len(assignments))
	for _, id := range ranked {
		for _, a := range assignments {
			if a.AgentID == id {
				out = append(out, a)
			}
		}
	}
	for _, a := range assignments {
		if rank[a.AgentID] == 0 {
			out = append(out, a)
		}
	}
	return out
}
