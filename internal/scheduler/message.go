package scheduler

import (
	"bytes"
	"html/template"

	"leetmail/internal/leetcode"
	"leetmail/internal/mail"
	"leetmail/internal/slot"
)

type urgency int

const (
	urgencyFirst urgency = iota
	urgencyReminder
	urgencyFinal
)

func urgencyOf(t slot.Table, s slot.Slot) urgency {
	i := t.Index(s.Name)
	switch {
	case i <= 0:
		return urgencyFirst
	case i == len(t)-1:
		return urgencyFinal
	default:
		return urgencyReminder
	}
}

var bodyTmpl = template.Must(template.New("body").Parse(`<p>{{.Lead}} <b><a href="{{.ProblemURL}}">{{.Title}}</a></b></p>
<p style="color:#888;font-size:12px"><a href="{{.UnsubscribeURL}}">Unsubscribe</a></p>
`))

// compose builds the slot-specific email. Subject and lead escalate with the
// slot's position in the table.
func compose(t slot.Table, s slot.Slot, p leetcode.Problem, to, unsubscribeURL string) (mail.Message, error) {
	var subject, lead string
	switch urgencyOf(t, s) {
	case urgencyFirst:
		subject, lead = "Today's LeetCode: "+p.Title, "Today's problem:"
	case urgencyReminder:
		subject, lead = "Reminder: "+p.Title, "Still open today:"
	default:
		subject, lead = "Final reminder: "+p.Title, "Last chance today:"
	}

	var b bytes.Buffer
	err := bodyTmpl.Execute(&b, map[string]string{
		"Lead":           lead,
		"Title":          p.Title,
		"ProblemURL":     p.URL(),
		"UnsubscribeURL": unsubscribeURL,
	})
	if err != nil {
		return mail.Message{}, err
	}
	return mail.Message{To: to, Subject: subject, HTML: b.String()}, nil
}
