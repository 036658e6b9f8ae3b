// Package template renders reminder messages from {{placeholder}} templates.
package template

import (
	"html"
	"net/url"
	"sort"
	"strings"

	"github.com/hray3182/Followup/internal/models"
)

// Placeholder names available to every reminder template.
const (
	VarClientName     = "clientName"
	VarProjectName    = "projectName"
	VarTestimonialURL = "testimonialUrl"
	VarCompanyName    = "companyName"
)

var (
	DefaultEmail = models.MessageTemplate{
		Subject: "How did we do, {{clientName}}?",
		Body: "Hi {{clientName}},\n\n" +
			"Thank you for choosing {{companyName}} for {{projectName}}. " +
			"We would love to hear about your experience. It only takes a minute:\n\n" +
			"{{testimonialUrl}}\n\n" +
			"Thanks,\n{{companyName}}",
	}

	DefaultSMS = models.MessageTemplate{
		Body: "Hi {{clientName}}, thanks for working with {{companyName}}! " +
			"Would you share a quick testimonial? {{testimonialUrl}}",
	}
)

// Render replaces every {{key}} whose key is in vars. Placeholders without a
// value are left as they are. Substituted values are not expanded again.
func Render(tmpl string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(tmpl, "{{") {
		return tmpl
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Resolve picks the template for a reminder: the templateKey override, then
// the project's template for the channel, then the built-in default.
func Resolve(project *models.Project, channel models.Channel, templateKey *string) models.MessageTemplate {
	if project != nil {
		templates := project.Settings.Templates
		if templateKey != nil && *templateKey != "" {
			if t, ok := templates[*templateKey]; ok && t.Body != "" {
				return withDefaultSubject(t, channel)
			}
		}
		if t, ok := templates[string(channel)]; ok && t.Body != "" {
			return withDefaultSubject(t, channel)
		}
	}
	if channel == models.ChannelSMS {
		return DefaultSMS
	}
	return DefaultEmail
}

func withDefaultSubject(t models.MessageTemplate, channel models.Channel) models.MessageTemplate {
	if channel == models.ChannelEmail && t.Subject == "" {
		t.Subject = DefaultEmail.Subject
	}
	return t
}

// Vars builds the placeholder values for one client of a project.
func Vars(project *models.Project, client *models.Client, testimonialURL string) map[string]string {
	return map[string]string{
		VarClientName:     client.Name,
		VarProjectName:    project.Name,
		VarTestimonialURL: testimonialURL,
		VarCompanyName:    project.Company(),
	}
}

// TestimonialURL links to the testimonial form of a project with the email pre-filled.
func TestimonialURL(base, projectID, email string) string {
	return strings.TrimRight(base, "/") +
		"/testimonials/" + url.PathEscape(projectID) +
		"?email=" + url.QueryEscape(email)
}

// Message is a rendered template.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// RenderMessage renders both parts of t. HTML is only produced for email.
func RenderMessage(t models.MessageTemplate, channel models.Channel, vars map[string]string) Message {
	msg := Message{Text: Render(t.Body, vars)}
	if channel == models.ChannelEmail {
		msg.Subject = Render(t.Subject, vars)
		msg.HTML = TextToHTML(msg.Text)
	}
	return msg
}

// TextToHTML escapes text and turns blank-line separated blocks into paragraphs.
func TextToHTML(text string) string {
	var b strings.Builder
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		for i, line := range lines {
			lines[i] = linkify(html.EscapeString(line))
		}
		b.WriteString("<p>")
		b.WriteString(strings.Join(lines, "<br>"))
		b.WriteString("</p>\n")
	}
	return b.String()
}

// linkify wraps a line that is a bare http(s) URL in an anchor.
func linkify(line string) string {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		if !strings.ContainsAny(trimmed, " \t") {
			return `<a href="` + trimmed + `">` + trimmed + `</a>`
		}
	}
	return line
}
