package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/examsentry/backend/internal/analysis/risk"
	"github.com/examsentry/backend/internal/model/session"
)

// Config controls the report service.
type Config struct {
	Enabled bool
}

// Report is the integrity summary produced for one session.
type Report struct {
	SessionID   string                    `json:"sessionId"`
	RiskLevel   risk.Level                `json:"riskLevel"`
	Counts      map[session.AlertType]int `json:"counts"`
	Summary     string                    `json:"summary"`
	GeneratedAt time.Time                 `json:"generatedAt"`
}

// Service produces session integrity reports. When a chat model is
// configured it asks the model to write the narrative summary; otherwise,
// or on any model failure, it falls back to the heuristic risk analyzer.
type Service struct {
	enabled   bool
	generator compose.Runnable[map[string]any, *schema.Message]
	fallback  func(session.Session) risk.Assessment
}

// NewService creates the report service. chatModel may be nil, in which case
// only the heuristic path is used.
func NewService(ctx context.Context, chatModel model.ChatModel, cfg Config) (*Service, error) {
	svc := &Service{
		enabled:  cfg.Enabled && chatModel != nil,
		fallback: risk.Assess,
	}

	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(reportSystemPrompt),
		schema.UserMessage(reportUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile report chain: %w", err)
	}

	svc.generator = runnable
	return svc, nil
}

// Enabled reports whether the model-backed path is available.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.generator != nil
}

// Generate builds the integrity report for a session snapshot.
func (s *Service) Generate(ctx context.Context, sess session.Session) Report {
	assessment := s.fallback(sess)
	rep := Report{
		SessionID:   sess.ID,
		RiskLevel:   assessment.Level,
		Counts:      assessment.Counts,
		Summary:     assessment.Summary,
		GeneratedAt: time.Now().UTC(),
	}

	if !s.Enabled() {
		return rep
	}

	input := map[string]any{
		"candidate":   sess.CandidateName,
		"alert_log":   formatAlerts(sess.Alerts),
		"alert_count": sess.AlertCount,
		"risk_level":  string(assessment.Level),
	}

	msg, err := s.generator.Invoke(ctx, input)
	if err != nil {
		log.Printf("[report] model invoke failed, using heuristic summary: %v", err)
		return rep
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return rep
	}

	payload, err := parseGeneratorOutput(msg.Content)
	if err != nil {
		log.Printf("[report] model output parse failed, using heuristic summary: %v", err)
		return rep
	}

	if summary := strings.TrimSpace(payload.Summary); summary != "" {
		rep.Summary = summary
	}
	if level, ok := parseLevel(payload.Risk); ok {
		rep.RiskLevel = level
	}
	return rep
}

type generatorPayload struct {
	Risk    string `json:"risk"`
	Summary string `json:"summary"`
}

// parseGeneratorOutput extracts the JSON object from the model reply,
// tolerating surrounding prose.
func parseGeneratorOutput(content string) (*generatorPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &generatorPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func parseLevel(raw string) (risk.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return risk.LevelLow, true
	case "elevated":
		return risk.LevelElevated, true
	case "high":
		return risk.LevelHigh, true
	default:
		return "", false
	}
}

func formatAlerts(alerts []session.Alert) string {
	if len(alerts) == 0 {
		return "no alerts recorded"
	}

	var builder strings.Builder
	for i, alert := range alerts {
		builder.WriteString(fmt.Sprintf("%s %s: %s",
			alert.Timestamp.Format(time.RFC3339), alert.Type, alert.Message))
		if i < len(alerts)-1 {
			builder.WriteString("\n")
		}
	}
	return builder.String()
}

const reportSystemPrompt = "You are an exam integrity reviewer. You receive the alert log of one remote examination session and must produce a short, factual report for a human proctor. Respond with a single JSON object and nothing else, with fields: risk (one of low/elevated/high) and summary (2-3 plain sentences describing what was observed, without speculation about guilt)."

const reportUserPrompt = "Candidate: {candidate}\nTotal alerts: {alert_count}\nHeuristic risk grade: {risk_level}\n\nAlert log:\n{alert_log}\n\nProduce the JSON report."
