package rag

import (
	"strings"

	wl "github.com/abadojack/whatlanggo"
)

// detectLang picks the answer language from the query text. French is the
// default for the Congolese tax code.
func detectLang(s string) string {
	info := wl.Detect(s)
	if info.Lang == wl.Eng && info.IsReliable() {
		return "en"
	}
	return "fr"
}

func answerLanguage(lang string) string {
	if lang == "en" {
		return "English"
	}
	return "French"
}

// buildGroundedPrompt is the system prompt used when retrieval produced
// context: the model must answer only from the provided articles and cite
// them by their numero.
func buildGroundedPrompt(lang, userName string, intent QueryIntent) string {
	var sys strings.Builder

	sys.WriteString("You are a tax-law assistant specialized in the General Tax Code of the Democratic Republic of the Congo. ")
	sys.WriteString(answerLanguage(lang))
	sys.WriteString(" is the target language for all responses. ")
	if userName != "" {
		sys.WriteString("Address the user as ")
		sys.WriteString(userName)
		sys.WriteString(". ")
	}
	sys.WriteString("Answer ONLY from the statutory articles provided in the context. ")
	sys.WriteString("Cite every article you rely on by its number, e.g. (Art. 86A). ")
	sys.WriteString("Never invent article numbers, rates or deadlines. ")
	sys.WriteString("If the provided articles do not answer the question, say so explicitly. ")
	if intent.IsComparison {
		sys.WriteString("The user asks for a comparison between the 2025 and 2026 editions: structure the answer edition by edition, then summarize what changed. ")
	} else if intent.TargetYear != nil {
		sys.WriteString("The question concerns the ")
		if *intent.TargetYear == editionPrevious {
			sys.WriteString("2025")
		} else {
			sys.WriteString("2026")
		}
		sys.WriteString(" edition of the code; do not mix in provisions from other editions. ")
	}
	sys.WriteString("When useful, structure the answer as:\n")
	sys.WriteString("- Applicable rule\n")
	sys.WriteString("- Rate / threshold / deadline\n")
	sys.WriteString("- Cited articles\n")
	sys.WriteString("- Practical notes\n")

	return sys.String()
}

// buildFallbackPrompt is the terse variant used when retrieval found nothing:
// the model must decline rather than answer from memory.
func buildFallbackPrompt(lang string) string {
	var sys strings.Builder
	sys.WriteString("You are a tax-law assistant for the Congolese General Tax Code. ")
	sys.WriteString(answerLanguage(lang))
	sys.WriteString(" is the target language. ")
	sys.WriteString("No relevant statutory article was found for this question. ")
	sys.WriteString("Say that the indexed code contains no applicable provision, invite the user to rephrase, and do NOT answer from memory or cite any article.")
	return sys.String()
}
