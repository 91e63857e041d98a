package telegram

import (
	"fmt"
	"strings"

	"ielts-speaking/internal/speaking"
)

// fetchFailedText replaces the controller's fetch alert, which points at a
// backend server the bot does not have.
const fetchFailedText = "Could not prepare the questions for this part. Use /retry to try again."

// maxChunkSize leaves room under Telegram's 4096 character limit.
const maxChunkSize = 3500

const helpText = `🎓 *IELTS Speaking Practice*

*Commands:*
/start - Start a new speaking test
/stop - Finish your current answer
/status - Show your progress
/retry - Reload questions after an error
/finish - End the test now and get a report
/restart - Discard the current test
/report - Show your last report
/help - Show this message

*How it works:*
1. Part 1: %d to %d short questions about yourself
2. Part 2: a cue card, %s to prepare and %s to talk
3. Part 3: %d to %d discussion questions

Type your answer after each question. You can use several messages; send /stop when you are done or wait for the timer.`

func formatDuration(seconds int) string {
	switch {
	case seconds == 60:
		return "1 minute"
	case seconds > 60 && seconds%60 == 0:
		return fmt.Sprintf("%d minutes", seconds/60)
	default:
		return fmt.Sprintf("%d seconds", seconds)
	}
}

func formatQuestion(part speaking.Part, index int, text string) string {
	if part == speaking.Part2 {
		return fmt.Sprintf("🗣 *Part 2*\n\n%s", text)
	}
	return fmt.Sprintf("❓ *Part %d, question %d:*\n\n%s", part, index+1, text)
}

func formatCueCard(card *speaking.CueCard, prepSeconds int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🗂 *Cue card*\n\n*%s*\n\nYou should say:\n", card.Topic)
	for _, p := range card.CuePoints {
		fmt.Fprintf(&b, "• %s\n", p)
	}
	if prepSeconds > 0 {
		fmt.Fprintf(&b, "\n⏳ You have %s to prepare your notes.", formatDuration(prepSeconds))
	}
	return b.String()
}

func formatRecording(seconds int) string {
	return fmt.Sprintf("🎙 Answer now. You have %s. Send /stop when you are done.", formatDuration(seconds))
}

func formatReport(r *speaking.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Your IELTS Speaking report*\n\n🏅 *Overall band: %.1f*\n", r.OverallScore)
	for _, c := range r.Criteria() {
		fmt.Fprintf(&b, "\n*%s: %.1f*\n%s\n", c.Name, c.Score, c.Feedback)
	}
	if r.Summary != "" {
		fmt.Fprintf(&b, "\n📝 %s\n", r.Summary)
	}
	b.WriteString("\n_Pronunciation is estimated from the transcript only._")
	return b.String()
}

func formatStatus(snap speaking.Snapshot) string {
	switch snap.State {
	case speaking.StateStart:
		return "No test in progress. Use /start to begin."
	case speaking.StateFinished:
		if snap.Evaluation == nil {
			return "✅ Test complete. Your report is being generated."
		}
		return "✅ Test complete. Use /report to see your report or /start for a new test."
	}

	answered := 0
	for _, t := range snap.History {
		if t.Answer != "" {
			answered++
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Progress*\n\n🆔 `%s`\n📋 %s\n", snap.ID, snap.Status.Title)
	fmt.Fprintf(&b, "❓ Part %d, question %d\n✍️ Answers given: %d", snap.Part, snap.QuestionIndex+1, answered)
	if snap.Timer != nil {
		fmt.Fprintf(&b, "\n⏱ %s left", formatDuration(snap.Timer.TimeLeft))
	}
	return b.String()
}

// splitMessage cuts text into chunks of at most size bytes, preferring line
// breaks and never splitting a UTF-8 sequence.
func splitMessage(text string, size int) []string {
	var chunks []string
	for len(text) > size {
		cut := strings.LastIndex(text[:size], "\n")
		if cut <= 0 {
			cut = size
			for cut > 0 && !isRuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = size
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
