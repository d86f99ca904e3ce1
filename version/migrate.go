package version

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

// maxMigrationErrors caps how many per-document failures a bulk migration
// summary carries back to the caller.
const maxMigrationErrors = 10

// MigrationSummary reports the outcome of a bulk legacy migration.
type MigrationSummary struct {
	Scanned  int      `json:"scanned"`
	Migrated int      `json:"migrated"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// RenderDocumentHTML renders a structured document to a single deterministic
// HTML fragment: five fixed section headings in canonical order, with the
// support-tool fields nested under "Tools and Resources". Rendering the same
// document always yields the same bytes.
func RenderDocumentHTML(doc *types.StructuredDocument) string {
	if doc == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<article class="assignment-version">`)
	writeSection(&b, "Instructions", doc.InstructionsHTML)
	writeSection(&b, "Step-by-Step Plan", doc.StepByStepPlanHTML)
	writeSection(&b, "Prompts", doc.PromptsHTML)

	b.WriteString(`<section><h2>Tools and Resources</h2>`)
	writeSubsection(&b, "Tools", doc.SupportTools.ToolsHTML)
	writeSubsection(&b, "AI Prompting", doc.SupportTools.AIPromptingHTML)
	writeSubsection(&b, "AI Policy", doc.SupportTools.AIPolicyHTML)
	b.WriteString(`</section>`)

	writeSection(&b, "Motivational Message", doc.MotivationalMessageHTML)
	b.WriteString(`</article>`)
	return b.String()
}

func writeSection(b *strings.Builder, heading, html string) {
	b.WriteString(`<section><h2>`)
	b.WriteString(heading)
	b.WriteString(`</h2>`)
	b.WriteString(html)
	b.WriteString(`</section>`)
}

func writeSubsection(b *strings.Builder, heading, html string) {
	if html == "" {
		return
	}
	b.WriteString(`<h3>`)
	b.WriteString(heading)
	b.WriteString(`</h3>`)
	b.WriteString(html)
}

// RenderHTML resolves a version's content to renderable HTML. Legacy
// json_content documents are rendered and the rendered form is persisted back
// best-effort; a persistence failure is logged and the rendered HTML is still
// returned.
func (m *Manager) RenderHTML(ctx context.Context, versionID string) (string, error) {
	doc, err := m.store.Get(ctx, versionID)
	if err != nil {
		return "", err
	}
	switch {
	case doc.FinalContent.HTMLContent != "":
		return doc.FinalContent.HTMLContent, nil
	case doc.FinalContent.Document != nil:
		return RenderDocumentHTML(doc.FinalContent.Document), nil
	case doc.FinalContent.JSONContent != nil:
		html := RenderDocumentHTML(doc.FinalContent.JSONContent)
		doc.FinalContent.HTMLContent = html
		doc.DateModified = m.now()
		if err := m.store.Replace(ctx, doc); err != nil {
			m.logger.Warn("legacy render persist-back failed",
				zap.String("version_id", versionID), zap.Error(err))
		} else {
			m.metrics.MigrationResult("migrated")
		}
		return html, nil
	default:
		return "", nil
	}
}

// MigrateVersion migrates a single legacy document in place. It reports
// whether a migration happened; a document already in a current shape is a
// no-op.
func (m *Manager) MigrateVersion(ctx context.Context, versionID string) (bool, error) {
	doc, err := m.store.Get(ctx, versionID)
	if err != nil {
		return false, err
	}
	if !doc.FinalContent.IsLegacy() {
		return false, nil
	}
	doc.FinalContent.HTMLContent = RenderDocumentHTML(doc.FinalContent.JSONContent)
	doc.DateModified = m.now()
	if err := m.store.Replace(ctx, doc); err != nil {
		m.metrics.MigrationResult("failed")
		return false, err
	}
	m.metrics.MigrationResult("migrated")
	return true, nil
}

// MigrateAll migrates every legacy document in the store. Documents migrate
// independently and in parallel; one failure never stops the sweep.
func (m *Manager) MigrateAll(ctx context.Context) (*MigrationSummary, error) {
	legacy, err := m.store.ListLegacy(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MigrationSummary{Scanned: len(legacy)}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MigrateParallelism)
	for _, doc := range legacy {
		g.Go(func() error {
			migrated, err := m.MigrateVersion(ctx, doc.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				if len(summary.Errors) < maxMigrationErrors {
					summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", doc.ID, err))
				}
				return nil
			}
			if migrated {
				summary.Migrated++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	m.logger.Info("legacy migration sweep complete",
		zap.Int("scanned", summary.Scanned),
		zap.Int("migrated", summary.Migrated),
		zap.Int("failed", summary.Failed))
	return summary, nil
}
