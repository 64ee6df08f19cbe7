package notice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dshills/editalindex/internal/classifier"
	"github.com/dshills/editalindex/internal/extractor"
	"github.com/dshills/editalindex/internal/llm"
	"github.com/dshills/editalindex/internal/normalizer"
	"github.com/dshills/editalindex/internal/storage"
	"github.com/dshills/editalindex/pkg/types"
)

// Extraction limits
const (
	MaxPromptChars      = 80000
	ExtractionMaxTokens = 4096
)

// Job stages and their fixed progress checkpoints
const (
	StageExtracting = "Extracting text"
	StageAnalysing  = "Analysing notice"
	StageMapping    = "Cross-referencing disciplines"
	StagePlanning   = "Generating study plan"
	StageDone       = "Done"
)

var stageProgress = map[string]int{
	StageExtracting: 15,
	StageAnalysing:  35,
	StageMapping:    60,
	StagePlanning:   80,
	StageDone:       100,
}

var (
	// ErrLeaseHeld is returned when the notice already left QUEUED, so another
	// job owns it
	ErrLeaseHeld = errors.New("notice is already being processed")
	// ErrMalformedResponse is returned when the extraction model does not
	// answer with the expected JSON object
	ErrMalformedResponse = errors.New("malformed extraction response")
	// ErrNoText is returned when the uploaded document has no text layer
	ErrNoText = errors.New("no usable text in notice")
)

// ProcessorDeps are the collaborators of a Processor
type ProcessorDeps struct {
	Store     storage.Storage
	Extractor extractor.Extractor
	LLM       llm.Client
	Model     string // Optional model override
	Logger    *slog.Logger
	Now       func() time.Time
}

// Processor runs the notice pipeline for one task at a time:
// QUEUED -> PARSING -> MAPPING -> PLANNING -> ACTIVE
type Processor struct {
	deps   ProcessorDeps
	logger *slog.Logger
}

// NewProcessor creates a processor
func NewProcessor(deps ProcessorDeps) *Processor {
	if deps.Extractor == nil {
		deps.Extractor = extractor.NewPDF()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Processor{deps: deps, logger: logger}
}

// run carries per-task state through the stages
type run struct {
	task   Task
	stage  string
	notice *types.ExamNotice
	meta   *Metadata
	links  []types.ExamDiscipline
}

// Process drives one notice to ACTIVE. Any stage failure moves the notice to
// ERROR and the job to FAILED with the captured diagnostics. Nothing is
// retried.
func (p *Processor) Process(ctx context.Context, t Task) (err error) {
	log := p.logger.With("notice_id", t.NoticeID, "job_id", t.JobID)
	if p.deps.Store == nil || p.deps.LLM == nil {
		err = fmt.Errorf("processor: store and language model are required")
		p.failJob(ctx, t.JobID, "", err)
		return err
	}

	// Leaving QUEUED is a compare-and-set, so only one job can own a notice
	if err := p.deps.Store.TransitionNotice(ctx, t.NoticeID, types.NoticeQueued, types.NoticeParsing); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			err = fmt.Errorf("%w: %s", ErrLeaseHeld, t.NoticeID)
		}
		log.Warn("could not lease notice", "error", err)
		p.failJob(ctx, t.JobID, "lease", err)
		return err
	}

	r := &run{task: t}
	defer func() {
		if err != nil {
			log.Error("notice processing failed", "stage", r.stage, "error", err)
			p.fail(ctx, r, err)
		}
	}()

	steps := []struct {
		stage string
		fn    func(context.Context, *run) error
		next  types.NoticeStatus
	}{
		{StageExtracting, p.extractText, ""},
		{StageAnalysing, p.analyse, types.NoticeMapping},
		{StageMapping, p.mapDisciplines, types.NoticePlanning},
		{StagePlanning, p.plan, types.NoticeActive},
	}

	from := types.NoticeParsing
	for _, s := range steps {
		r.stage = s.stage
		if err := p.advance(ctx, t.JobID, s.stage, types.JobProcessing); err != nil {
			return err
		}
		if err := s.fn(ctx, r); err != nil {
			return err
		}
		if s.next != "" {
			if err := p.deps.Store.TransitionNotice(ctx, t.NoticeID, from, s.next); err != nil {
				return fmt.Errorf("transition to %s: %w", s.next, err)
			}
			from = s.next
		}
	}

	r.stage = StageDone
	if err := p.advance(ctx, t.JobID, StageDone, types.JobDone); err != nil {
		return err
	}
	log.Info("notice active", "disciplines", len(r.links))
	return nil
}

func (p *Processor) advance(ctx context.Context, jobID, stage string, status types.JobStatus) error {
	err := p.deps.Store.UpdateJobProgress(ctx, jobID, storage.JobUpdate{
		Stage:    stage,
		Progress: stageProgress[stage],
		Status:   status,
	})
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// extractText reads the uploaded document and stores its raw text
func (p *Processor) extractText(ctx context.Context, r *run) error {
	n, err := p.deps.Store.GetNotice(ctx, r.task.NoticeID)
	if err != nil {
		return fmt.Errorf("load notice: %w", err)
	}
	r.notice = n

	res, err := p.deps.Extractor.Extract(r.task.Content)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if !res.Usable {
		return ErrNoText
	}

	n.RawText = res.Text
	if err := p.deps.Store.UpdateNotice(ctx, n); err != nil {
		return fmt.Errorf("save text: %w", err)
	}
	return nil
}

// analyse asks the model for the structured metadata and stores it
func (p *Processor) analyse(ctx context.Context, r *run) error {
	resp, err := p.deps.LLM.Complete(ctx, llm.Request{
		Model:     p.deps.Model,
		System:    extractionSystemPrompt,
		Prompt:    extractionPrompt(normalizer.Truncate(r.notice.RawText, MaxPromptChars)),
		MaxTokens: ExtractionMaxTokens,
	})
	if err != nil {
		return fmt.Errorf("extraction request: %w", err)
	}

	meta, raw, err := ParseMetadata(resp)
	if err != nil {
		return err
	}
	r.meta = meta

	n := r.notice
	n.IssuingBody = meta.IssuingBody
	n.Agency = meta.Agency
	n.Role = meta.Role
	n.NoticeNumber = meta.NoticeNumber
	n.PublishedAt = ParseDate(meta.PublishedAt)
	n.ExamDate = ParseDate(meta.ExamDate)
	n.Salary = meta.Salary
	n.Vacancies = meta.Vacancies
	n.TotalQuestions = meta.TotalQuestions
	n.MetadataJSON = raw
	if err := p.deps.Store.UpdateNotice(ctx, n); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

// mapDisciplines links every extracted discipline to a known one when a
// fuzzy match exists. Unmatched disciplines are stored unlinked.
func (p *Processor) mapDisciplines(ctx context.Context, r *run) error {
	known, err := p.deps.Store.ListDisciplines(ctx)
	if err != nil {
		return fmt.Errorf("list disciplines: %w", err)
	}

	links := make([]types.ExamDiscipline, 0, len(r.meta.Disciplines))
	for _, d := range r.meta.Disciplines {
		link := types.ExamDiscipline{
			NoticeID:      r.task.NoticeID,
			Name:          strings.TrimSpace(d.Name),
			Weight:        d.Weight,
			QuestionCount: d.QuestionCount,
			Topics:        d.Topics,
		}
		if match := classifier.MatchName(d.Name, known); match != nil {
			id := match.ID
			link.DisciplineID = &id
		}
		links = append(links, link)
	}

	if err := p.deps.Store.ReplaceExamDisciplines(ctx, r.task.NoticeID, links); err != nil {
		return fmt.Errorf("save disciplines: %w", err)
	}
	r.links = links
	return nil
}

// plan generates and stores the study plan
func (p *Processor) plan(ctx context.Context, r *run) error {
	plan := GeneratePlan(PlanInput{
		OwnerID:     r.notice.OwnerID,
		NoticeID:    r.task.NoticeID,
		ExamDate:    r.notice.ExamDate,
		Disciplines: r.links,
		Now:         p.deps.Now(),
	})
	if err := p.deps.Store.CreatePlan(ctx, &plan); err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

// fail records a stage failure on both the notice and the job
func (p *Processor) fail(ctx context.Context, r *run, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := p.deps.Store.FailNotice(ctx, r.task.NoticeID, cause.Error()); err != nil {
		p.logger.Error("failed to record notice error", "notice_id", r.task.NoticeID, "error", err)
	}
	p.failJob(ctx, r.task.JobID, r.stage, cause)
}

func (p *Processor) failJob(ctx context.Context, jobID, stage string, cause error) {
	if p.deps.Store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := p.deps.Store.FailJob(ctx, jobID, cause.Error(), errorTrace(stage, cause)); err != nil {
		p.logger.Error("failed to record job error", "job_id", jobID, "error", err)
	}
}

// errorTrace renders the stage and the unwrapped error chain
func errorTrace(stage string, err error) string {
	var b strings.Builder
	if stage != "" {
		fmt.Fprintf(&b, "stage: %s\n", stage)
	}
	for depth := 0; err != nil; depth++ {
		fmt.Fprintf(&b, "%s%T: %s\n", strings.Repeat("  ", depth), err, err.Error())
		err = errors.Unwrap(err)
	}
	return strings.TrimRight(b.String(), "\n")
}
