// Command agentsim simulates an executor agent: it registers against
// schedulerd's ops API, then listens on its own agent.<id>.job subject
// for assignments and plays back the step lifecycle events a real
// executor would publish.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/codeready-toolchain/orcaci/internal/bus"
	"github.com/codeready-toolchain/orcaci/internal/domain"
	"github.com/codeready-toolchain/orcaci/pkg/version"
)

func main() {
	name := flag.String("name", getEnv("AGENT_NAME", "agentsim-1"), "agent name")
	labelsFlag := flag.String("labels", getEnv("AGENT_LABELS", "linux,amd64"), "comma-separated labels")
	apiAddr := flag.String("api", getEnv("SCHEDULERD_API", "http://localhost:8080"), "schedulerd ops API base URL")
	natsURL := flag.String("nats", getEnv("NATS_URL", "nats://localhost:4222"), "NATS server URL")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Printf("starting agentsim %s", version.Full())

	labels := strings.Split(*labelsFlag, ",")
	agentID, err := register(ctx, *apiAddr, *name, labels)
	if err != nil {
		log.Fatalf("agent registration failed: %v", err)
	}
	log.Printf("registered as %s (%s)", *name, agentID)

	b, err := bus.ConnectNats(bus.NatsConfig{URLs: []string{*natsURL}})
	if err != nil {
		log.Fatalf("failed to connect to event bus: %v", err)
	}
	defer func() { _ = b.Close() }()

	jobs, err := b.Subscribe(ctx, fmt.Sprintf("agent.%s.job", agentID), bus.SubscribeOptions{})
	if err != nil {
		log.Fatalf("failed to subscribe to job assignments: %v", err)
	}
	defer func() { _ = jobs.Close() }()

	go heartbeatLoop(ctx, *apiAddr, agentID)

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-jobs.Deliveries():
			evt, ok := d.Event.(domain.JobAssignedEvent)
			if !ok {
				_ = d.Nak()
				continue
			}
			runJob(ctx, b, agentID, evt)
			_ = d.Ack()
		}
	}
}

// runJob plays back a plausible step lifecycle for one assigned job,
// then reports stage completion.
func runJob(ctx context.Context, b *bus.NatsBus, agentID domain.ID, evt domain.JobAssignedEvent) {
	log.Printf("run %s: executing stage %q (stage_index=%d)", evt.RunID, evt.Stage.Name, evt.StageIndex)

	for _, step := range evt.Stage.Steps {
		publish(ctx, b, domain.StepStartedEvent{RunID: evt.RunID, StageName: evt.Stage.Name, StepName: step.Name})
		publish(ctx, b, domain.StepOutputEvent{
			RunID: evt.RunID, StageName: evt.Stage.Name, StepName: step.Name,
			Line: fmt.Sprintf("running: %s", step.Run), Stream: "stdout",
		})
		time.Sleep(50 * time.Millisecond)
		publish(ctx, b, domain.StepCompletedEvent{
			RunID: evt.RunID, StageName: evt.Stage.Name, StepName: step.Name,
			Status: domain.StepSuccess,
		})
	}

	publish(ctx, b, domain.StageCompletedEvent{
		RunID: evt.RunID, StageName: evt.Stage.Name, Status: domain.StageSuccess, AgentID: agentID,
	})
}

func publish(ctx context.Context, b *bus.NatsBus, event domain.Event) {
	if err := b.Publish(ctx, event); err != nil {
		slog.Error("failed to publish event", "type", event.Type(), "error", err)
	}
}

func heartbeatLoop(ctx context.Context, apiAddr string, agentID domain.ID) {
	ticker := time.NewTicker(domain.DefaultHeartbeatIntervalSeconds * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics := map[string]float64{"cpu_load": rand.Float64()}
			if err := sendHeartbeat(ctx, apiAddr, agentID, metrics); err != nil {
				slog.Error("heartbeat failed", "error", err)
			}
		}
	}
}

func register(ctx context.Context, apiAddr, name string, labels []string) (domain.ID, error) {
	body, _ := json.Marshal(map[string]any{
		"name":   name,
		"labels": labels,
		"os":     "linux",
		"arch":   "amd64",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiAddr+"/agents/register", bytes.NewReader(body))
	if err != nil {
		return domain.ID{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return domain.ID{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return domain.ID{}, fmt.Errorf("register: unexpected status %d", resp.StatusCode)
	}
	var out struct {
		AgentID string `json:"agent_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.ID{}, err
	}
	return domain.ParseID(out.AgentID, domain.KindAgent)
}

func sendHeartbeat(ctx context.Context, apiAddr string, agentID domain.ID, metrics map[string]float64) error {
	body, _ := json.Marshal(map[string]any{"metrics": metrics})
	url := fmt.Sprintf("%s/agents/%s/heartbeat", apiAddr, agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
