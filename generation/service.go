package generation

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/internal/metrics"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/llm"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/version"
)

// emitSectionTool is the single tool exposed to the provider in streaming
// mode. Each call carries one section of the structured document.
var emitSectionTool = llm.ToolSchema{
	Name:        "emit_section",
	Description: "Emit one section of the adapted assignment document.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"key":  {"type": "string", "description": "Section key, e.g. instructionsHtml or supportTools.toolsHtml"},
			"html": {"type": "string", "description": "HTML fragment for the section"}
		},
		"required": ["key", "html"]
	}`),
}

// AssignmentResolver resolves which student an assignment belongs to.
type AssignmentResolver interface {
	GetAssignmentStudentID(ctx context.Context, id string) (string, error)
}

// ServiceConfig carries the provider and pacing knobs the facade needs.
type ServiceConfig struct {
	Model             string
	MaxTokens         int
	Timeout           time.Duration
	RequestsPerMinute int
}

// GenerateRequest is one generation call against an assignment. When
// PriorVersionID is set the new version replays the prior version's options;
// otherwise Options seeds a fresh version.
type GenerateRequest struct {
	AssignmentID      string
	PriorVersionID    string
	Options           []types.GeneratedOption
	SelectedOptionIDs []string
	Notes             string
	ModifierID        string
	Mode              Mode
}

// Service is the facade the transport layer calls: generate, edit, finalize,
// rate, render, and migrate, each returning the updated version document or
// one named error kind.
type Service struct {
	provider   llm.Provider
	aggregator *Aggregator
	prompts    *PromptBuilder
	assembler  *Assembler
	validator  *Validator
	versions   *version.Manager
	resolver   AssignmentResolver
	limiter    *rate.Limiter
	metrics    *metrics.Collector
	tracer     trace.Tracer
	logger     *zap.Logger
	cfg        ServiceConfig
}

// NewService wires the generation facade. tracer may be nil for a no-op
// tracer; RequestsPerMinute <= 0 disables provider rate limiting.
func NewService(
	provider llm.Provider,
	aggregator *Aggregator,
	prompts *PromptBuilder,
	assembler *Assembler,
	validator *Validator,
	versions *version.Manager,
	resolver AssignmentResolver,
	collector *metrics.Collector,
	tracer trace.Tracer,
	logger *zap.Logger,
	cfg ServiceConfig,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collector == nil {
		collector = metrics.NewCollector("ipse", nil)
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("generation")
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}
	return &Service{
		provider:   provider,
		aggregator: aggregator,
		prompts:    prompts,
		assembler:  assembler,
		validator:  validator,
		versions:   versions,
		resolver:   resolver,
		limiter:    limiter,
		metrics:    collector,
		tracer:     tracer,
		logger:     logger.With(zap.String("component", "generation_service")),
		cfg:        cfg,
	}
}

// Generate runs a single-shot or streaming generation without progress
// notifications and persists the validated result as a new version.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*types.VersionDocument, error) {
	return s.generate(ctx, req, nil)
}

// GenerateStream runs a generation and forwards section/terminal
// notifications to notify while the stream is assembled.
func (s *Service) GenerateStream(ctx context.Context, req GenerateRequest, notify func(Notification)) (*types.VersionDocument, error) {
	if req.Mode == "" {
		req.Mode = ModeStreaming
	}
	return s.generate(ctx, req, notify)
}

func (s *Service) generate(ctx context.Context, req GenerateRequest, notify func(Notification)) (_ *types.VersionDocument, err error) {
	if req.Mode == "" {
		req.Mode = ModeSingleShot
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "generation.generate",
		trace.WithAttributes(
			attribute.String("assignment.id", req.AssignmentID),
			attribute.String("generation.mode", string(req.Mode)),
		))
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.SetStatus(codes.Error, err.Error())
		}
		s.metrics.ObserveGeneration(string(req.Mode), status, time.Since(start))
		span.End()
	}()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrUpstream, "rate limit wait aborted").
				WithCause(err).WithRetryable(true)
		}
	}

	studentID, err := s.resolver.GetAssignmentStudentID(ctx, req.AssignmentID)
	if err != nil {
		return nil, err
	}
	record, err := s.aggregator.Aggregate(ctx, req.AssignmentID, studentID)
	if err != nil {
		return nil, err
	}

	var prior *types.VersionDocument
	options := req.Options
	if req.PriorVersionID != "" {
		prior, err = s.versions.Get(ctx, req.PriorVersionID)
		if err != nil {
			return nil, err
		}
		options = prior.GeneratedOptions
	}
	selected, labels := selectOptions(options, req.SelectedOptionIDs)
	templateRequired := TemplateRequired(record.Assignment.Type, labels)
	span.SetAttributes(attribute.Bool("generation.template_required", templateRequired))

	prompt, err := s.prompts.Build(PromptRequest{
		Context:           record,
		SelectedOptions:   selected,
		SelectedOptionIDs: req.SelectedOptionIDs,
		Notes:             req.Notes,
		Mode:              req.Mode,
		PriorVersion:      prior,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePromptTokens(prompt.TokenCount)

	doc, err := s.callProvider(ctx, req.Mode, prompt.Messages, templateRequired, notify)
	if err != nil {
		return nil, err
	}

	var verDoc *types.VersionDocument
	if prior != nil {
		verDoc, err = s.versions.Replay(ctx, req.AssignmentID, prior.ID, req.ModifierID)
	} else {
		verDoc, err = s.versions.Create(ctx, req.AssignmentID, studentID, req.ModifierID, options)
	}
	if err != nil {
		return nil, err
	}
	if len(req.SelectedOptionIDs) > 0 || req.Notes != "" {
		if verDoc, err = s.versions.SetSelection(ctx, verDoc.ID, req.SelectedOptionIDs, req.Notes); err != nil {
			return nil, err
		}
	}
	return s.versions.ApplyGeneration(ctx, verDoc.ID, doc, req.ModifierID)
}

// callProvider runs one bounded provider round trip and returns the validated
// document.
func (s *Service) callProvider(ctx context.Context, mode Mode, messages []llm.Message, templateRequired bool, notify func(Notification)) (*types.StructuredDocument, error) {
	chatReq := &llm.ChatRequest{
		Model:     s.cfg.Model,
		Messages:  messages,
		MaxTokens: s.cfg.MaxTokens,
		Timeout:   s.cfg.Timeout,
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	if mode == ModeStreaming {
		chatReq.Tools = []llm.ToolSchema{emitSectionTool}
		chatReq.ToolChoice = "auto"
		events, err := s.provider.Stream(ctx, chatReq)
		if err != nil {
			return nil, types.NewError(types.ErrUpstream, "open provider stream").
				WithCause(err).WithRetryable(true)
		}

		// The complete frame is held back until the assembled document
		// passes validation, so a client never sees complete followed by
		// nothing persisted.
		var complete *Notification
		wrapped := notify
		if notify != nil {
			wrapped = func(n Notification) {
				if n.Kind == NotificationComplete {
					complete = &n
					return
				}
				notify(n)
			}
		}
		doc, err := s.assembler.Run(ctx, events, wrapped)
		if err != nil {
			return nil, err
		}
		if err := s.validator.ValidateDocument(doc, templateRequired); err != nil {
			if notify != nil {
				notify(Notification{Kind: NotificationError, Err: err})
			}
			return nil, err
		}
		if notify != nil && complete != nil {
			notify(*complete)
		}
		return doc, nil
	}

	resp, err := s.provider.Completion(ctx, chatReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstream, "provider completion failed").
			WithCause(err).WithRetryable(true)
	}
	return s.validator.ValidateRaw([]byte(resp.Content), templateRequired)
}

// selectOptions filters options by the selected ids and collects their labels
// for the template-policy decision.
func selectOptions(options []types.GeneratedOption, ids []string) ([]types.GeneratedOption, []string) {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	var selected []types.GeneratedOption
	var labels []string
	for _, opt := range options {
		if set[opt.InternalID] || opt.Selected {
			selected = append(selected, opt)
			labels = append(labels, opt.Name)
		}
	}
	return selected, labels
}

// Edit applies operator-supplied HTML as the version's new content. The HTML
// passes the fragment check but not the full schema check; manual edits are a
// single blob, not the five-key structure.
func (s *Service) Edit(ctx context.Context, versionID, html, modifierID string) (*types.VersionDocument, error) {
	ctx, span := s.tracer.Start(ctx, "generation.edit",
		trace.WithAttributes(attribute.String("version.id", versionID)))
	defer span.End()

	if err := CheckFragment("html_content", html); err != nil {
		s.metrics.ValidationFailure("fragment_violation")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return s.versions.ApplyEdit(ctx, versionID, html, modifierID)
}

// Finalize sets or clears the finalized flag, keeping at most one finalized
// version per assignment.
func (s *Service) Finalize(ctx context.Context, versionID string, finalized bool) (*types.VersionDocument, error) {
	ctx, span := s.tracer.Start(ctx, "generation.finalize",
		trace.WithAttributes(
			attribute.String("version.id", versionID),
			attribute.Bool("finalized", finalized),
		))
	defer span.End()
	return s.versions.SetFinalized(ctx, versionID, finalized)
}

// Rate merges a partial rating payload into the version's rating data.
func (s *Service) Rate(ctx context.Context, versionID, raterID string, ratings map[string]any) (*types.VersionDocument, error) {
	ctx, span := s.tracer.Start(ctx, "generation.rate",
		trace.WithAttributes(attribute.String("version.id", versionID)))
	defer span.End()
	return s.versions.SubmitRating(ctx, versionID, raterID, ratings)
}

// RenderHTML returns the version's content as HTML regardless of its stored
// shape, migrating legacy documents opportunistically.
func (s *Service) RenderHTML(ctx context.Context, versionID string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "generation.render",
		trace.WithAttributes(attribute.String("version.id", versionID)))
	defer span.End()
	return s.versions.RenderHTML(ctx, versionID)
}

// MigrateVersion migrates one legacy document.
func (s *Service) MigrateVersion(ctx context.Context, versionID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "generation.migrate_version",
		trace.WithAttributes(attribute.String("version.id", versionID)))
	defer span.End()
	return s.versions.MigrateVersion(ctx, versionID)
}

// MigrateAll sweeps every legacy document in the store.
func (s *Service) MigrateAll(ctx context.Context) (*version.MigrationSummary, error) {
	ctx, span := s.tracer.Start(ctx, "generation.migrate_all")
	defer span.End()
	return s.versions.MigrateAll(ctx)
}
