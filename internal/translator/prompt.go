package translator

import (
	"fmt"
	"strings"

	"github.com/valpere/gtrans/internal/placeholder"
	"github.com/valpere/gtrans/internal/postprocess"
)

// buildSystemPrompt is shared by the LLM-backed services.
func buildSystemPrompt(sourceLang, targetLang, previousContext string, protected bool) string {
	if isAuto(sourceLang) {
		sourceLang = "the detected language"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("You are a professional translator. Translate the text of a file from %s to %s.\n", sourceLang, targetLang))
	sb.WriteString("Only respond with the translation, nothing else. No explanations, no quotes, just the translation. ")
	sb.WriteString("Keep every line break and blank line exactly where it is.")

	if protected {
		sb.WriteString("\n")
		sb.WriteString(placeholder.Hint)
	}

	if previousContext != "" {
		sb.WriteString(fmt.Sprintf("\n\nCONTEXT (previous passage of the same file, do NOT retranslate this):\n...%s", previousContext))
	}

	return sb.String()
}

// llmPrompt is the user text and system prompt sent to an LLM, plus the
// markup hidden from it when protection is on.
type llmPrompt struct {
	text    string
	system  string
	markers placeholder.Markers
}

func newLLMPrompt(req TranslateRequest, protect bool) llmPrompt {
	text := req.Text
	var markers placeholder.Markers
	if protect {
		text, markers = placeholder.Protect(text)
	}
	return llmPrompt{
		text:    text,
		system:  buildSystemPrompt(req.SourceLang, req.TargetLang, req.PreviousContext, len(markers) > 0),
		markers: markers,
	}
}

// finish cleans raw model output and restores protected markup.
func (p llmPrompt) finish(raw string) (string, error) {
	return p.markers.Restore(postprocess.Clean(raw))
}
