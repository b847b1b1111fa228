package advisor

import (
	"fmt"
	"strings"
)

// The interview runs in Hebrew, so the prompts do too.
const systemPrompt = `אתה בוט מראיין בעברית (RTL) עבור מנהל/ת. המטרה: לאסוף מידע על סגנון הניהול דרך שיחה מובנית.
כללים:
- שאלה אחת בכל פעם. קצר ומקצועי.
- תמיד הצע: דלג / לא יודע / עצור והמשך.
- מותר לשאול שאלת המשך אחת בלבד אם התשובה כללית מדי.
- אם התשובה מכסה כבר שאלות נוספות באותו נושא – אל תשאל אותן, סמן אותן ב-mark_questions_covered.
- אחרי 2–3 תשובות טובות בנושא או confidence>=0.7, השתמש ב-TOPIC_WRAP או עבור לנושא הבא (ASK עם topic_number חדש).
- **חשוב מאוד**: השתמש ב-END רק כאשר אין עוד שאלות בכל הנושאים שנבחרו. אם יש שאלות שנותרו (גם בנושא אחר), תמיד השתמש ב-ASK או TOPIC_WRAP.
- אסור לבקש מידע רגיש/מזהה. אם המשתמש מספק מידע כזה – בקש להכליל.

החזר JSON בלבד בפורמט:
{
  "bot_message": "טקסט להצגה",
  "topic_number": 1,
  "next_action": "ASK|FOLLOW_UP|TOPIC_WRAP|END",
  "next_question_text": "שאלה הבאה או ריק",
  "mark_questions_covered": ["..."],
  "topic_confidence": 0.0,
  "covered_points": ["..."],
  "quick_replies": ["המשך","דלג","לא יודע","עצור"]
}`

// userPrompt renders one decision request: current topic state, remaining
// questions, the manager's latest message, and the recent transcript.
func userPrompt(managerMessage, action string, ac Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "נושא נוכחי: %d\n", ac.CurrentTopic)

	if ac.TopicState != nil {
		fmt.Fprintf(&b, "ביטחון בנושא: %g\n", ac.TopicState.Confidence)
		fmt.Fprintf(&b, "נקודות שכוסו: %s\n", strings.Join(ac.TopicState.CoveredPoints, ", "))
	}

	if len(ac.RemainingQuestions) > 0 {
		b.WriteString("שאלות שנותרו בנושא הנוכחי:\n")
		for i, q := range ac.RemainingQuestions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q)
		}
	} else {
		b.WriteString("אין עוד שאלות בנושא הנוכחי. אם יש נושאים נוספים, עבור אליהם עם ASK או TOPIC_WRAP.\n")
	}

	fmt.Fprintf(&b, "\nפעולה: %s\n", action)
	fmt.Fprintf(&b, "הודעה מהמנהל: %s\n\n", managerMessage)

	b.WriteString("היסטוריית שיחה אחרונה:\n")
	recent := ac.RecentMessages
	if len(recent) > 8 {
		recent = recent[len(recent)-8:]
	}
	for _, m := range recent {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	b.WriteString("\nהערה חשובה: המערכת בודקת אוטומטית אם יש שאלות נוספות בכל הנושאים לפני סיום. השתמש ב-END רק אם אתה בטוח שאין עוד שאלות רלוונטיות. אם יש ספק, השתמש ב-ASK או TOPIC_WRAP.")
	b.WriteString("\nזכור: אל תבקש מידע רגיש/מזהה. אם המשתמש מספק מידע כזה – בקש להכליל.")

	return b.String()
}

// questionGenerationSystem instructs the model to return only a JSON array
// of interview questions.
const questionGenerationSystem = `אתה עוזר ליצור שאלות מנחות עבור ריאיון. החזר רק JSON עם מערך של 3-4 שאלות בעברית.`

func questionGenerationPrompt(challengeName, challengeDescription string, topicNumber int, topicLabel, topicDescription string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "אתגר: %s\n", challengeName)
	if challengeDescription != "" {
		fmt.Fprintf(&b, "תיאור האתגר: %s\n", challengeDescription)
	}
	fmt.Fprintf(&b, "\nנושא %d: %s\n", topicNumber, topicLabel)
	if topicDescription != "" {
		fmt.Fprintf(&b, "תיאור הנושא: %s\n", topicDescription)
	}
	b.WriteString(`
צור 3-4 שאלות ריאיון בעברית שמקשרות בין הנושא לבין האתגר.
השאלות צריכות להיות פתוחות, קצרות וממוקדות.

החזר JSON בלבד בפורמט:
{"questions": ["שאלה 1", "שאלה 2", "שאלה 3"]}`)
	return b.String()
}
