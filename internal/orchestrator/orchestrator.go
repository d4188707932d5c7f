package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"diagbot/internal/classifier"
	"diagbot/internal/memory"
	"diagbot/pkg"
)

const (
	// maxHistoryWindow is the number of prior messages embedded in the prompt.
	maxHistoryWindow = 15
	// maxRepairerHints is the number of nearby repairers embedded in the prompt.
	maxRepairerHints = 5
	// defaultTimeout bounds one provider call. There is no retry: past the
	// bound the rule classifier answers instead.
	defaultTimeout = 8 * time.Second
)

// providerError records why the provider path failed. It never leaves the
// orchestrator; the caller only sees the rule-classifier response.
type providerError struct {
	reason string
	err    error
}

func (e *providerError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.reason, e.err)
	}
	return e.reason
}

// Orchestrator attempts a classification through the language-model provider
// and degrades to the rule classifier on any failure. The cascade only runs
// in that direction: rules never escalate back to the provider.
type Orchestrator struct {
	chain     compose.Runnable[map[string]any, *schema.Message]
	rules     *classifier.RuleClassifier
	modelName string
	timeout   time.Duration
}

// New creates an orchestrator over the given chat model. A nil model is
// allowed and yields a rules-only orchestrator, which keeps the engine usable
// without provider credentials.
func New(ctx context.Context, chatModel model.BaseChatModel, rules *classifier.RuleClassifier, cfg pkg.ProviderConfig) (*Orchestrator, error) {
	o := &Orchestrator{
		rules:     rules,
		modelName: cfg.Model,
		timeout:   defaultTimeout,
	}
	if cfg.TimeoutSec > 0 {
		o.timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	if chatModel == nil {
		return o, nil
	}

	chain, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(diagnosticTemplate()).
		AppendChatModel(chatModel).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("error compiling provider chain: %w", err)
	}
	o.chain = chain

	return o, nil
}

// Classify returns a structured response for the user text. It never fails:
// every provider-side problem is absorbed and answered by the rule
// classifier.
func (o *Orchestrator) Classify(ctx context.Context, text string, history []pkg.ConversationMessage, mem memory.Memory) pkg.ClassifiedResponse {
	if o.chain == nil {
		return o.fallback(text, &providerError{reason: "provider_not_configured"})
	}

	response, err := o.callProvider(ctx, text, history, mem)
	if err != nil {
		return o.fallback(text, err)
	}
	return response
}

func (o *Orchestrator) callProvider(ctx context.Context, text string, history []pkg.ConversationMessage, mem memory.Memory) (pkg.ClassifiedResponse, *providerError) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	out, err := o.chain.Invoke(callCtx, templateVars(text, history, mem))
	if err != nil {
		log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("provider call failed, falling back to rules")
		return pkg.ClassifiedResponse{}, &providerError{reason: "provider_unavailable", err: err}
	}

	response, perr := parseProviderOutput(out.Content)
	if perr != nil {
		log.Warn().Err(perr).Msg("provider output rejected, falling back to rules")
		return pkg.ClassifiedResponse{}, perr
	}

	if response.Metadata == nil {
		response.Metadata = make(map[string]any)
	}
	response.Metadata["ai_model"] = o.modelName

	log.Debug().
		Str("model", o.modelName).
		Float64("confidence", response.Confidence).
		Dur("elapsed", time.Since(start)).
		Msg("provider classification accepted")

	return response, nil
}

func (o *Orchestrator) fallback(text string, perr *providerError) pkg.ClassifiedResponse {
	response := o.rules.Classify(text)
	if response.Metadata == nil {
		response.Metadata = make(map[string]any)
	}
	response.Metadata["fallback_reason"] = perr.reason
	return response
}

// parseProviderOutput validates the provider's JSON. Any deviation from the
// expected shape, including a missing content field, rejects the output.
func parseProviderOutput(raw string) (pkg.ClassifiedResponse, *providerError) {
	payload := extractJSON(raw)
	if payload == "" {
		return pkg.ClassifiedResponse{}, &providerError{reason: "malformed_output", err: fmt.Errorf("no JSON object in provider output")}
	}

	var response pkg.ClassifiedResponse
	if err := sonic.Unmarshal([]byte(payload), &response); err != nil {
		return pkg.ClassifiedResponse{}, &providerError{reason: "malformed_output", err: err}
	}

	if strings.TrimSpace(response.Content) == "" {
		return pkg.ClassifiedResponse{}, &providerError{reason: "malformed_output", err: fmt.Errorf("provider output missing content")}
	}

	if response.Confidence < 0 {
		response.Confidence = 0
	}
	if response.Confidence > 1 {
		response.Confidence = 1
	}
	if response.Suggestions == nil {
		response.Suggestions = []string{}
	}
	if response.Actions == nil {
		response.Actions = []pkg.SuggestedAction{}
	}
	if response.DiagnosticData.SymptomsDetected == nil {
		response.DiagnosticData.SymptomsDetected = []string{}
	}

	return response, nil
}

// extractJSON returns the outermost JSON object in the text, tolerating code
// fences and prose around it.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
