// Command agentswarm wires the coordination stack and runs a small
// demonstration: three agents register their capabilities, a team is formed
// for a research task, the team votes on a task breakdown, and the subtasks
// are delegated.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/BaSui01/agentswarm"
	"github.com/BaSui01/agentswarm/breakdown"
	"github.com/BaSui01/agentswarm/types"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "agentswarm:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	swarm, err := agentswarm.New(agentswarm.WithConfigPath(configPath))
	if err != nil {
		return err
	}
	defer swarm.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := swarm.Start(ctx); err != nil {
		return err
	}

	agents := []*demoAgent{
		newDemoAgent("researcher-1", "Researcher",
			types.CapabilitySummary{Name: "web_research", Description: "search the web and collect relevant sources", ConfidenceScore: 0.9}),
		newDemoAgent("analyst-1", "Analyst",
			types.CapabilitySummary{Name: "data_analysis", Description: "analyze collected data and extract findings", ConfidenceScore: 0.85}),
		newDemoAgent("writer-1", "Writer",
			types.CapabilitySummary{Name: "report_writing", Description: "write clear reports from analyzed findings", ConfidenceScore: 0.8}),
	}
	for _, a := range agents {
		if err := swarm.Facilitator.RegisterAgent(ctx, a); err != nil {
			return fmt.Errorf("register %s: %w", a.id, err)
		}
	}

	task, err := swarm.Facilitator.CreateTask(ctx,
		"research the agent coordination market, analyze the data, and write a report",
		[]string{"web_research", "data_analysis", "report_writing"})
	if err != nil {
		return err
	}

	formation, err := swarm.Facilitator.FormTeam(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("form team: %w", err)
	}
	fmt.Printf("team formed: contract %s with %d members\n",
		formation.Contract.ID, len(formation.Contract.Participants))

	b, err := swarm.Facilitator.RunBreakdown(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("run breakdown: %w", err)
	}
	fmt.Printf("breakdown %s: status=%s subtasks=%d\n", b.ID, b.Status, len(b.Subtasks))
	if b.Status != breakdown.StatusApproved {
		return fmt.Errorf("breakdown was not approved")
	}
	fmt.Printf("quality: overall=%.2f completeness=%.2f parallelization=%.2f\n",
		b.Metrics.OverallScore, b.Metrics.Completeness, b.Metrics.ParallelizationScore)

	for i, st := range b.Subtasks {
		agentID := formation.Recruited[i%len(formation.Recruited)]
		if _, err := swarm.Facilitator.DelegateSubtask(ctx, task.ID, b.ID, st.ID, agentID); err != nil {
			return fmt.Errorf("delegate %s: %w", st.ID, err)
		}
		rec, err := swarm.Facilitator.GetDelegationRecord(ctx, agentID)
		if err != nil {
			return err
		}
		fmt.Printf("delegated %s to %s (success rate %.2f over %d tasks)\n",
			st.ID, agentID, rec.SuccessRate, rec.TaskCount)
	}
	return nil
}

// demoAgent is a scripted in-process agent: always available, always votes
// to approve, always completes its subtasks.
type demoAgent struct {
	id           string
	name         string
	capabilities []types.CapabilitySummary
}

func newDemoAgent(id, name string, capabilities ...types.CapabilitySummary) *demoAgent {
	return &demoAgent{id: id, name: name, capabilities: capabilities}
}

func (a *demoAgent) ID() string   { return a.id }
func (a *demoAgent) Name() string { return a.name }

func (a *demoAgent) ReportCapabilities(ctx context.Context) ([]types.CapabilitySummary, error) {
	return a.capabilities, nil
}

func (a *demoAgent) HandleRequest(ctx context.Context, req types.Request) (*types.Response, error) {
	switch r := req.(type) {
	case *types.InquiryRequest:
		confidence := 0.5
		for _, c := range a.capabilities {
			if c.Name == r.Capability {
				confidence = c.ConfidenceScore
			}
		}
		return &types.Response{Accepted: true, Confidence: confidence, Commitment: "firm"}, nil
	case *types.ProposalRequest:
		return &types.Response{Accepted: true}, nil
	case *types.BallotRequest:
		return &types.Response{Choice: breakdown.ChoiceApprove}, nil
	case *types.SubtaskRequest:
		return &types.Response{Accepted: true, Content: "completed " + r.SubtaskID}, nil
	default:
		return nil, fmt.Errorf("unsupported request kind %s", req.Kind())
	}
}
