package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"invest-guru/internal/config"
	"invest-guru/internal/indexer"
	"invest-guru/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1).
			Bold(true)

	questionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	answerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	sourcesStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD93D"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
)

func renderAnswer(question string, turn models.ConversationTurn, answer *models.Answer) string {
	var sb strings.Builder
	sb.WriteString(questionStyle.Render("❓ " + question))
	sb.WriteString("\n")

	if turn.Failed {
		sb.WriteString(errorStyle.Render(turn.Content))
	} else {
		sb.WriteString(answerStyle.Render(turn.Content))
	}
	sb.WriteString("\n")

	sources := "📚 Fontes:\n" + turn.Sources
	if answer != nil {
		sources += fmt.Sprintf("\n⏱️ Tempo de resposta: %.2fs", answer.Elapsed.Seconds())
	}
	sb.WriteString(sourcesStyle.Render(sources))
	return sb.String()
}

func renderSources(sources []models.SourceSummary) string {
	if len(sources) == 0 {
		return warnStyle.Render("Nenhum documento indexado.")
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("📄 Documentos indexados"))
	for _, s := range sources {
		fmt.Fprintf(&sb, "\n%-40s %-14s %4d págs %6d chunks", s.Name, s.Module, s.Pages, s.ChunkCount)
	}
	return sb.String()
}

func renderResults(results map[string]int, batchErr *indexer.BatchError) string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	total := 0
	for _, name := range names {
		total += results[name]
		sb.WriteString(successStyle.Render(fmt.Sprintf("✅ %s: %d chunks", name, results[name])))
		sb.WriteString("\n")
	}
	if batchErr != nil {
		failed := make([]string, 0, len(batchErr.Failures))
		for name := range batchErr.Failures {
			failed = append(failed, name)
		}
		sort.Strings(failed)
		for _, name := range failed {
			sb.WriteString(errorStyle.Render(fmt.Sprintf("❌ %s: %v", name, batchErr.Failures[name])))
			sb.WriteString("\n")
		}
	}
	sb.WriteString(fmt.Sprintf("%d documentos, %d chunks", len(results), total))
	return sb.String()
}

func renderStatus(cfg *config.Config, hasPDFs bool, chunks int) string {
	mark := func(ok bool) string {
		if ok {
			return successStyle.Render("✅")
		}
		return errorStyle.Render("❌")
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("📊 Status"))
	fmt.Fprintf(&sb, "\n%s PDFs em %s", mark(hasPDFs), cfg.Paths.PDFDir)
	fmt.Fprintf(&sb, "\n%s Índice (%s): %d chunks", mark(chunks > 0), cfg.VectorStore.Backend, chunks)
	return sb.String()
}
