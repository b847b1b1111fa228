package mailer

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/raayon/raayon/internal/storage"
)

// skipRateRisk is the skip share above which the summary flags a risk.
const skipRateRisk = 0.3

// SummaryData is everything the summary template renders.
type SummaryData struct {
	Interview storage.Interview
	Session   storage.Session
	Topics    []TopicSummary
	Stats     SummaryStats
	// Conclusions
	LowConfidenceTopics []TopicSummary
	SkipRateHigh        bool
	SkipRatePercent     int
	SkippedTotal        int
}

type TopicSummary struct {
	Number            int
	Label             string
	ConfidencePercent int
	CoveredPoints     []string
	Answers           []storage.Answer
}

type SummaryStats struct {
	Answered int
	Skipped  int
	Total    int
}

// BuildSummary assembles the template data: answers grouped per selected
// topic in topic order, plus the conclusions the admin skims first.
func BuildSummary(iv storage.Interview, sess storage.Session, topics []storage.Topic, states []storage.TopicState, answers []storage.Answer) SummaryData {
	labels := make(map[int]string, len(topics))
	for _, t := range topics {
		labels[t.Number] = t.Label
	}
	byTopic := make(map[int][]storage.Answer)
	for _, a := range answers {
		byTopic[a.TopicNumber] = append(byTopic[a.TopicNumber], a)
	}

	data := SummaryData{Interview: iv, Session: sess}
	for _, ts := range states {
		summary := TopicSummary{
			Number:            ts.TopicNumber,
			Label:             labels[ts.TopicNumber],
			ConfidencePercent: int(ts.Confidence * 100),
			CoveredPoints:     ts.CoveredPoints,
			Answers:           byTopic[ts.TopicNumber],
		}
		data.Topics = append(data.Topics, summary)
		if ts.Confidence < 0.5 {
			data.LowConfidenceTopics = append(data.LowConfidenceTopics, summary)
		}
	}

	var skipped int
	for _, a := range answers {
		if a.Skipped {
			skipped++
		}
	}
	data.Stats = SummaryStats{
		Answered: sess.AnsweredCount,
		Skipped:  sess.SkippedCount,
		Total:    sess.AnsweredCount + sess.SkippedCount,
	}
	data.SkippedTotal = skipped
	if data.Stats.Total > 0 {
		rate := float64(skipped) / float64(data.Stats.Total)
		data.SkipRateHigh = rate > skipRateRisk
		data.SkipRatePercent = int(rate * 100)
	}
	return data
}

// Subject returns the summary email subject line.
func Subject(iv storage.Interview) string {
	return fmt.Sprintf("סיכום ריאיון: %s", iv.ManagerName)
}

// RenderSummary produces the RTL HTML body.
func RenderSummary(data SummaryData) (string, error) {
	var b strings.Builder
	if err := summaryTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("rendering summary: %w", err)
	}
	return b.String(), nil
}

var summaryTmpl = template.Must(template.New("summary").Parse(`<!DOCTYPE html>
<html dir="rtl" lang="he">
<head>
  <meta charset="UTF-8">
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
    .container { max-width: 800px; margin: 0 auto; padding: 20px; }
    .header { background: #f4f4f4; padding: 20px; border-radius: 8px; margin-bottom: 20px; }
    .topic-section { margin: 30px 0; padding: 20px; border: 1px solid #ddd; border-radius: 8px; }
    .qa-card { background: #f9f9f9; padding: 15px; margin: 10px 0; border-radius: 5px; }
    .question { font-weight: bold; color: #2c3e50; }
    .answer { margin-top: 10px; color: #555; }
    .skipped { color: #999; font-style: italic; }
    .stats { display: flex; gap: 20px; margin: 20px 0; }
    .stat-item { flex: 1; text-align: center; padding: 15px; background: #e8f4f8; border-radius: 5px; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>סיכום ריאיון: {{.Interview.ManagerName}}</h1>
      {{if .Interview.ManagerRole}}<p><strong>תפקיד:</strong> {{.Interview.ManagerRole}}</p>{{end}}
      <p><strong>סטטוס:</strong> {{.Interview.Status}}</p>
      <p><strong>תאריך:</strong> {{.Interview.CreatedAt.Format "02/01/2006"}}</p>
    </div>

    <div class="stats">
      <div class="stat-item"><h3>{{.Stats.Answered}}</h3><p>נענו</p></div>
      <div class="stat-item"><h3>{{.Stats.Skipped}}</h3><p>דולגו</p></div>
      <div class="stat-item"><h3>{{.Stats.Total}}</h3><p>סה"כ</p></div>
    </div>

    {{range .Topics}}
    <div class="topic-section">
      <h2>נושא {{.Number}}{{if .Label}}: {{.Label}}{{end}}</h2>
      <p><strong>ביטחון:</strong> {{.ConfidencePercent}}%</p>
      {{if .CoveredPoints}}
      <h3>מה למדנו:</h3>
      <ul>{{range .CoveredPoints}}<li>{{.}}</li>{{end}}</ul>
      {{end}}
      <h3>שאלות ותשובות:</h3>
      {{if .Answers}}{{range .Answers}}
      <div class="qa-card">
        <div class="question">{{.QuestionText}}</div>
        {{if .Skipped}}<div class="skipped">דולג</div>{{else}}<div class="answer">{{if .AnswerText}}{{.AnswerText}}{{else}}ללא תשובה{{end}}</div>{{end}}
      </div>
      {{end}}{{else}}<p>אין תשובות בנושא זה</p>{{end}}
    </div>
    {{end}}

    <div class="topic-section">
      <h2>מסקנות</h2>
      {{if .LowConfidenceTopics}}
      <h3>חסמים</h3>
      <ul>{{range .LowConfidenceTopics}}<li>נושא {{.Number}}: ביטחון נמוך ({{.ConfidencePercent}}%) - ייתכן שדורש הבהרה נוספת</li>{{end}}</ul>
      {{end}}
      {{if .SkipRateHigh}}
      <h3>סיכונים</h3>
      <ul><li>שיעור דילוגים גבוה ({{.SkipRatePercent}}%) - {{.SkippedTotal}} מתוך {{.Stats.Total}} שאלות דולגו. ייתכן שיש נושאים שדורשים המשך שיחה.</li></ul>
      {{end}}
      <h3>Action Items</h3>
      <ul>
        {{if .LowConfidenceTopics}}<li>להמשיך לפתח את הנושאים עם ביטחון נמוך: {{range $i, $t := .LowConfidenceTopics}}{{if $i}}, {{end}}נושא {{$t.Number}}{{end}}</li>{{end}}
        {{if .SkipRateHigh}}<li>לבחון את השאלות שדולגו ולשקול לחזור אליהן בפגישה נוספת</li>{{end}}
        {{if and (not .LowConfidenceTopics) (not .SkipRateHigh)}}<li>הריאיון הושלם בהצלחה. כל הנושאים כוסו ברמה מספקת.</li>{{end}}
        <li>לבדוק את המידע שנאסף ולהשתמש בו לבניית תמונת מצב ניהולית</li>
      </ul>
    </div>
  </div>
</body>
</html>
`))
